package q2

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cyndis/q2/ircmsg"
	"github.com/cyndis/q2/store"
)

// NetworkState is the per-network connection state machine (spec §4.3).
type NetworkState int

const (
	NetworkDisconnected NetworkState = iota
	NetworkConnecting
	NetworkConnected
)

func (s NetworkState) String() string {
	switch s {
	case NetworkDisconnected:
		return "disconnected"
	case NetworkConnecting:
		return "connecting"
	case NetworkConnected:
		return "connected"
	default:
		return "?"
	}
}

// NetworkConfig is the persisted server/nickname pair. A nil *NetworkConfig
// on Network means the network is unconfigured (spec §3 invariant:
// "config=None ⇒ state=Disconnected and Connect is rejected").
type NetworkConfig struct {
	Server   string
	Nickname string
}

// --- commands (handle_command inputs) ---

type NetworkCommand interface{ isNetworkCommand() }

type ConnectCmd struct{}
type DisconnectCmd struct{}
type JoinChannelCmd struct{ Channel string }
type SendPrivmsgCmd struct{ Target, Text string }
type GetBufferListCmd struct{}
type SetConfigurationCmd struct{ Config NetworkConfig }
type GetConfigurationCmd struct{}
type GetBufferMessageRangeCmd struct {
	BufferID uint64
	Count    int
	BeforeID *uint64
}

func (ConnectCmd) isNetworkCommand()                 {}
func (DisconnectCmd) isNetworkCommand()               {}
func (JoinChannelCmd) isNetworkCommand()              {}
func (SendPrivmsgCmd) isNetworkCommand()              {}
func (GetBufferListCmd) isNetworkCommand()            {}
func (SetConfigurationCmd) isNetworkCommand()         {}
func (GetConfigurationCmd) isNetworkCommand()         {}
func (GetBufferMessageRangeCmd) isNetworkCommand()    {}

// --- replies (handle_command outputs; exactly one per command, spec P4) ---

type NetworkReply interface{ isNetworkReply() }

type SuccessReply struct{}
type ErrorReply struct{ Reason string }
type ConfigurationReply struct{ Config *NetworkConfig }
type BufferListReply struct{ Buffers []Buffer }
type BufferMessageRangeReply struct {
	BufferID uint64
	Messages []Message
}

func (SuccessReply) isNetworkReply()             {}
func (ErrorReply) isNetworkReply()               {}
func (ConfigurationReply) isNetworkReply()        {}
func (BufferListReply) isNetworkReply()           {}
func (BufferMessageRangeReply) isNetworkReply()   {}

// --- asynchronous events (spec §4.3; always carried with an empty envelope) ---

type NetworkEvent interface{ isNetworkEvent() }

type ConnectedEvent struct{}
type DisconnectedEvent struct{ Reason string }
type NewBufferEvent struct {
	BufferID uint64
	Role     Role
}
type BufferMessageEvent struct {
	BufferID uint64
	Msg      Message
}

func (ConnectedEvent) isNetworkEvent()    {}
func (DisconnectedEvent) isNetworkEvent() {}
func (NewBufferEvent) isNetworkEvent()    {}
func (BufferMessageEvent) isNetworkEvent() {}

// Network is one configured upstream IRC connection, its buffers, and its
// protocol state machine (spec §4.3). It is single-threaded: all exported
// methods are called synchronously by the owning Session's select loop, so
// Network itself holds no internal lock.
type Network struct {
	ID        uint64
	SessionID uint64

	Config          *NetworkConfig
	State           NetworkState
	CurrentNickname string
	Encoding        EncodingPolicy
	Buffers         []Buffer
	Upstream        *Upstream

	// Transcript, when non-nil, mirrors every persisted message to a
	// per-buffer log file; see TranscriptLogger.
	Transcript *TranscriptLogger

	logger Logger
	store  *store.Store
}

// NewNetwork constructs a network actor from persisted state (used both for
// freshly created networks and for reconstruction via store.LoadCore).
func NewNetwork(id, sessionID uint64, cfg *NetworkConfig, buffers []Buffer, logger Logger, st *store.Store) *Network {
	return &Network{
		ID:        id,
		SessionID: sessionID,
		Config:    cfg,
		State:     NetworkDisconnected,
		Buffers:   buffers,
		logger:    logger,
		store:     st,
	}
}

// getOrCreate implements spec §4.3's buffer lookup: a linear scan comparing
// roles by irc-equality, creating (and persisting) a new buffer on miss.
func (n *Network) getOrCreate(role Role) (Buffer, bool, error) {
	for _, b := range n.Buffers {
		if b.Role.Equal(role) {
			return b, false, nil
		}
	}

	sr := store.Role{Kind: store.RoleKind(role.Kind), Name: role.Name}
	sb, err := n.store.CreateBuffer(context.Background(), n.ID, sr)
	if err != nil {
		return Buffer{}, false, err
	}
	buf := Buffer{ID: sb.ID, Role: role}
	n.Buffers = append(n.Buffers, buf)
	return buf, true, nil
}

func (n *Network) appendMessage(buf *Buffer, contents MessageContents) (Message, error) {
	var sm store.Message
	sm.TimeNS = uint64(time.Now().UnixNano())
	switch c := contents.(type) {
	case Information:
		sm.Kind = store.KindInformation
		sm.Text = c.Text
	case JoinContents:
		sm.Kind = store.KindJoin
		sm.Who = c.Who
	case PrivmsgContents:
		sm.Kind = store.KindPrivmsg
		sm.Who = c.Sender
		sm.Text = c.Text
	default:
		return Message{}, fmt.Errorf("network: unknown message contents %T", contents)
	}

	stored, err := n.store.AppendMessage(context.Background(), buf.ID, sm)
	if err != nil {
		return Message{}, err
	}

	for i := range n.Buffers {
		if n.Buffers[i].ID == buf.ID {
			n.Buffers[i].StoredMessages++
		}
	}

	out := Message{ID: stored.ID, TimeNS: stored.TimeNS, Contents: contents}
	if n.Transcript != nil {
		if err := n.Transcript.Append(n.SessionID, n.ID, buf.Role, out); err != nil {
			n.logger.Printf("transcript: %v", err)
		}
	}
	return out, nil
}

// HandleMessage drains one event from the upstream reader channel and
// returns the (possibly empty) sequence of asynchronous events it produces,
// in order. Every NewBufferEvent for a buffer precedes every
// BufferMessageEvent for that buffer within the returned slice (spec §4.3
// ordering invariant).
func (n *Network) HandleMessage(ev UpstreamEvent) []NetworkEvent {
	switch e := ev.(type) {
	case UpstreamConnectionError:
		n.Upstream.Close()
		n.Upstream = nil
		n.State = NetworkDisconnected
		return []NetworkEvent{DisconnectedEvent{Reason: e.Err.Error()}}

	case UpstreamMessage:
		return n.handleClassified(e.Msg)
	}
	return nil
}

func (n *Network) handleClassified(msg ircmsg.Message) []NetworkEvent {
	switch m := msg.(type) {
	case ircmsg.Ping:
		if n.Upstream != nil {
			n.Upstream.SendPong(m.Target)
		}
		return nil

	case ircmsg.Welcome:
		n.State = NetworkConnected
		if n.Config != nil {
			n.CurrentNickname = n.Config.Nickname
		}

		events := []NetworkEvent{ConnectedEvent{}}

		buf, isNew, err := n.getOrCreate(Role{Kind: RoleStatus})
		if err != nil {
			n.logger.Printf("failed to get/create status buffer: %v", err)
			return events
		}
		if isNew {
			events = append(events, NewBufferEvent{BufferID: buf.ID, Role: buf.Role})
		}
		out, err := n.appendMessage(&buf, Information{Text: "Welcome to IRC!"})
		if err != nil {
			n.logger.Printf("failed to persist welcome message: %v", err)
			return events
		}
		return append(events, BufferMessageEvent{BufferID: buf.ID, Msg: out})

	case ircmsg.Join:
		role := Role{Kind: RoleChannel, Name: ircmsg.CasemapRFC1459(m.Channel)}
		buf, isNew, err := n.getOrCreate(role)
		if err != nil {
			n.logger.Printf("failed to get/create channel buffer: %v", err)
			return nil
		}
		var events []NetworkEvent
		if isNew {
			events = append(events, NewBufferEvent{BufferID: buf.ID, Role: buf.Role})
		}
		who := n.Encoding.DecodeNetwork([]byte(m.Prefix))
		out, err := n.appendMessage(&buf, JoinContents{Who: who})
		if err != nil {
			n.logger.Printf("failed to persist join message: %v", err)
			return events
		}
		return append(events, BufferMessageEvent{BufferID: buf.ID, Msg: out})

	case ircmsg.Privmsg:
		var role Role
		if n.CurrentNickname != "" && ircmsg.IRCEqual(m.Target, n.CurrentNickname) {
			peer := m.Prefix
			if i := strings.IndexAny(peer, "!@"); i >= 0 {
				peer = peer[:i]
			}
			role = Role{Kind: RoleQuery, Name: ircmsg.CasemapRFC1459(peer)}
		} else {
			role = Role{Kind: RoleChannel, Name: ircmsg.CasemapRFC1459(m.Target)}
		}
		buf, isNew, err := n.getOrCreate(role)
		if err != nil {
			n.logger.Printf("failed to get/create buffer: %v", err)
			return nil
		}
		var events []NetworkEvent
		if isNew {
			events = append(events, NewBufferEvent{BufferID: buf.ID, Role: buf.Role})
		}
		sender := n.Encoding.DecodeNetwork([]byte(m.Prefix))
		text := n.Encoding.DecodeIncoming([]byte(m.Text))
		out, err := n.appendMessage(&buf, PrivmsgContents{Sender: sender, Text: text})
		if err != nil {
			n.logger.Printf("failed to persist privmsg: %v", err)
			return events
		}
		return append(events, BufferMessageEvent{BufferID: buf.ID, Msg: out})

	default:
		return nil
	}
}

// HandleCommand processes one command, producing exactly one terminal
// reply envelope preserving client_tag/remote_tag (spec §4.3, P4).
func (n *Network) HandleCommand(env Envelope[NetworkCommand]) Envelope[NetworkReply] {
	switch cmd := env.Contents.(type) {
	case ConnectCmd:
		if n.Config == nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{"network not configured"})
		}
		if _, _, err := net.SplitHostPort(n.Config.Server); err != nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{fmt.Sprintf("invalid server address: %v", err)})
		}

		n.State = NetworkConnecting
		up, err := ConnectUpstream(context.Background(), n.Config.Server, n.logger)
		if err != nil {
			n.State = NetworkDisconnected
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{err.Error()})
		}
		n.Upstream = up
		up.SendNick(n.Config.Nickname)
		up.SendUser(n.Config.Nickname, 0, n.Config.Nickname)
		return CopyWith[NetworkCommand, NetworkReply](env, SuccessReply{})

	case DisconnectCmd:
		if n.Upstream != nil {
			n.Upstream.SendQuit("")
			n.Upstream.Close()
			n.Upstream = nil
		}
		n.State = NetworkDisconnected
		return CopyWith[NetworkCommand, NetworkReply](env, SuccessReply{})

	case JoinChannelCmd:
		if n.Upstream == nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{"network not configured"})
		}
		channel := string(n.Encoding.EncodeNetwork(cmd.Channel))
		n.Upstream.SendJoin(channel)
		return CopyWith[NetworkCommand, NetworkReply](env, SuccessReply{})

	case SendPrivmsgCmd:
		if n.Upstream == nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{"network not configured"})
		}
		target := string(n.Encoding.EncodeNetwork(cmd.Target))
		text := string(n.Encoding.EncodeOutgoing(cmd.Text))
		n.Upstream.SendPrivmsg(target, text)
		return CopyWith[NetworkCommand, NetworkReply](env, SuccessReply{})

	case GetBufferListCmd:
		return CopyWith[NetworkCommand, NetworkReply](env, BufferListReply{Buffers: append([]Buffer(nil), n.Buffers...)})

	case SetConfigurationCmd:
		if err := n.store.UpdateNetworkConfiguration(context.Background(), n.ID, cmd.Config.Server, cmd.Config.Nickname); err != nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{err.Error()})
		}
		n.Config = &cmd.Config
		return CopyWith[NetworkCommand, NetworkReply](env, SuccessReply{})

	case GetConfigurationCmd:
		return CopyWith[NetworkCommand, NetworkReply](env, ConfigurationReply{Config: n.Config})

	case GetBufferMessageRangeCmd:
		var target *Buffer
		for i := range n.Buffers {
			if n.Buffers[i].ID == cmd.BufferID {
				target = &n.Buffers[i]
				break
			}
		}
		if target == nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{"invalid buffer specified"})
		}

		var (
			stored []store.Message
			err    error
		)
		if cmd.BeforeID != nil {
			stored, err = n.store.FetchMessagesBefore(context.Background(), cmd.BufferID, *cmd.BeforeID, cmd.Count)
		} else {
			stored, err = n.store.FetchLatest(context.Background(), cmd.BufferID, cmd.Count)
		}
		if err != nil {
			return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{err.Error()})
		}

		msgs := make([]Message, len(stored))
		for i, sm := range stored {
			msgs[i] = fromStoreMessage(sm)
		}
		return CopyWith[NetworkCommand, NetworkReply](env, BufferMessageRangeReply{BufferID: cmd.BufferID, Messages: msgs})

	default:
		return CopyWith[NetworkCommand, NetworkReply](env, ErrorReply{fmt.Sprintf("unsupported command %T", cmd)})
	}
}

func fromStoreMessage(sm store.Message) Message {
	var contents MessageContents
	switch sm.Kind {
	case store.KindInformation:
		contents = Information{Text: sm.Text}
	case store.KindJoin:
		contents = JoinContents{Who: sm.Who}
	case store.KindPrivmsg:
		contents = PrivmsgContents{Sender: sm.Who, Text: sm.Text}
	}
	return Message{ID: sm.ID, TimeNS: sm.TimeNS, Contents: contents}
}
