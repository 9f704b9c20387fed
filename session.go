package q2

import (
	"context"
	"reflect"
)

// SessionCommand is what a session's inbound channel carries (spec §4.5).
type SessionCommand interface{ isSessionCommand() }

type NetworkCommandEnvelope struct {
	NetID uint64
	Cmd   NetworkCommand
}

type GetNetworkListCmd struct{}

func (NetworkCommandEnvelope) isSessionCommand() {}
func (GetNetworkListCmd) isSessionCommand()      {}

// SessionEvent is what a session's outbound channel carries toward
// RemoteControl.
type SessionEvent interface{ isSessionEvent() }

// NetworkMessage wraps either a NetworkReply (in response to a
// NetworkCommandEnvelope) or a NetworkEvent (asynchronous), tagged with the
// originating network's id, per spec §4.5: "reply envelopes from the
// network are wrapped as NetworkMessage(net_id, ...) keeping tags."
type NetworkMessage struct {
	NetID    uint64
	Contents interface{} // NetworkReply or NetworkEvent
}

type NetworkListEntry struct {
	ID    uint64
	State NetworkState
}

type NetworkListReply struct{ Networks []NetworkListEntry }

// SessionErrorEvent surfaces protocol/client-misuse errors raised by the
// session itself rather than by a network (e.g. an unknown net_id).
type SessionErrorEvent struct{ Reason string }

func (NetworkMessage) isSessionEvent()     {}
func (NetworkListReply) isSessionEvent()   {}
func (SessionErrorEvent) isSessionEvent()  {}

// Session owns a set of networks and multiplexes across all of their event
// channels plus its own inbound command channel (spec §4.5). Its main loop
// performs a dynamic multi-way select: Go has no native variadic select, so
// this is built with reflect.Select, rebuilding the case set every
// iteration so that a network whose upstream just connected (or just
// disconnected) is picked up on the very next iteration (spec §5).
type Session struct {
	ID uint64

	// SecretHash, when non-empty, is a bcrypt hash an AttachSession request
	// must satisfy before RemoteControl attaches the requesting remote to
	// this session (SPEC_FULL.md's supplemented shared-secret feature).
	SecretHash string

	Inbound  chan Envelope[SessionCommand]
	Outbound chan Envelope[SessionEvent]

	networks map[uint64]*Network
	order    []uint64 // stable iteration order for network IDs

	logger Logger
}

func NewSession(id uint64, logger Logger) *Session {
	return &Session{
		ID:       id,
		Inbound:  make(chan Envelope[SessionCommand], 64),
		Outbound: make(chan Envelope[SessionEvent], 64),
		networks: make(map[uint64]*Network),
		logger:   logger,
	}
}

// AddNetwork registers a network with this session. Not safe to call
// concurrently with Run; callers add networks before starting Run, or
// arrange their own synchronization for later additions.
func (s *Session) AddNetwork(n *Network) {
	if _, exists := s.networks[n.ID]; !exists {
		s.order = append(s.order, n.ID)
	}
	s.networks[n.ID] = n
}

func (s *Session) networkList() []NetworkListEntry {
	list := make([]NetworkListEntry, 0, len(s.order))
	for _, id := range s.order {
		if n, ok := s.networks[id]; ok {
			list = append(list, NetworkListEntry{ID: id, State: n.State})
		}
	}
	return list
}

// Run is the session actor's main loop. It returns when ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	for {
		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.Inbound)},
		}
		// netIDs[i] corresponds to cases[i+2].
		netIDs := make([]uint64, 0, len(s.order))
		for _, id := range s.order {
			n, ok := s.networks[id]
			if !ok || n.Upstream == nil {
				continue
			}
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(n.Upstream.Events)})
			netIDs = append(netIDs, id)
		}

		chosen, recv, recvOK := reflect.Select(cases)
		switch chosen {
		case 0: // ctx.Done()
			return
		case 1: // inbound command
			if !recvOK {
				return
			}
			env := recv.Interface().(Envelope[SessionCommand])
			s.handleCommand(env)
		default:
			if !recvOK {
				// The network's upstream channel closed without a terminal
				// ConnectionError event; nothing further to do for it this
				// round, the select set is rebuilt next iteration anyway.
				continue
			}
			netID := netIDs[chosen-2]
			ev := recv.Interface().(UpstreamEvent)
			s.handleNetworkEvent(netID, ev)
		}
	}
}

func (s *Session) handleCommand(env Envelope[SessionCommand]) {
	switch cmd := env.Contents.(type) {
	case NetworkCommandEnvelope:
		n, ok := s.networks[cmd.NetID]
		if !ok {
			s.Outbound <- CopyWith[SessionCommand, SessionEvent](env, SessionErrorEvent{"invalid network"})
			return
		}
		reply := n.HandleCommand(Envelope[NetworkCommand]{ClientTag: env.ClientTag, RemoteTag: env.RemoteTag, Contents: cmd.Cmd})
		s.Outbound <- Envelope[SessionEvent]{
			ClientTag: reply.ClientTag,
			RemoteTag: reply.RemoteTag,
			Contents:  NetworkMessage{NetID: cmd.NetID, Contents: reply.Contents},
		}

	case GetNetworkListCmd:
		s.Outbound <- CopyWith[SessionCommand, SessionEvent](env, NetworkListReply{Networks: s.networkList()})
	}
}

func (s *Session) handleNetworkEvent(netID uint64, ev UpstreamEvent) {
	n, ok := s.networks[netID]
	if !ok {
		return
	}
	events := n.HandleMessage(ev)
	for _, e := range events {
		s.Outbound <- Envelope[SessionEvent]{Contents: NetworkMessage{NetID: netID, Contents: e}}
	}
}
