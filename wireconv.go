package q2

import (
	"fmt"

	"github.com/cyndis/q2/wire"
)

// defaultBufferRangeCount is used when a GetBufferMessageRange packet omits
// count.
const defaultBufferRangeCount = 50

// parsePacket translates one wire.Packet into an Envelope[RemoteCommand],
// grounded on remotecontrol.rs's parse_remote_packet. false means the
// packet is malformed (unknown type or missing a required field for its
// type) and should be answered with Error("invalid packet").
func parsePacket(p *wire.Packet) (Envelope[RemoteCommand], bool) {
	switch p.Type {
	case wire.PacketAttachSession:
		if p.SessionID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		return Envelope[RemoteCommand]{
			ClientTag: p.Tag,
			Contents:  AttachSessionCmd{SessionID: *p.SessionID, Secret: p.Secret},
		}, true

	case wire.PacketGetNetworkList:
		return wrapSessionCmd(p.Tag, GetNetworkListCmd{}), true

	case wire.PacketConnect:
		if p.NetworkID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, ConnectCmd{}), true

	case wire.PacketDisconnect:
		if p.NetworkID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, DisconnectCmd{}), true

	case wire.PacketJoinChannel:
		if p.NetworkID == nil || p.Channel == "" {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, JoinChannelCmd{Channel: p.Channel}), true

	case wire.PacketSendPrivmsg:
		if p.NetworkID == nil || p.Target == "" {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, SendPrivmsgCmd{Target: p.Target, Text: p.Msg}), true

	case wire.PacketGetBufferList:
		if p.NetworkID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, GetBufferListCmd{}), true

	case wire.PacketSetNetworkConfiguration:
		if p.NetworkID == nil || p.Server == "" {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, SetConfigurationCmd{
			Config: NetworkConfig{Server: p.Server, Nickname: p.Nickname},
		}), true

	case wire.PacketGetNetworkConfiguration:
		if p.NetworkID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, GetConfigurationCmd{}), true

	case wire.PacketGetBufferMessageRange:
		if p.NetworkID == nil || p.BufferID == nil {
			return Envelope[RemoteCommand]{}, false
		}
		count := defaultBufferRangeCount
		if p.Count != nil {
			count = *p.Count
		}
		return wrapNetworkCmd(p.Tag, *p.NetworkID, GetBufferMessageRangeCmd{
			BufferID: *p.BufferID, Count: count, BeforeID: p.BeforeID,
		}), true

	default:
		return Envelope[RemoteCommand]{}, false
	}
}

func wrapSessionCmd(tag *uint64, cmd SessionCommand) Envelope[RemoteCommand] {
	return Envelope[RemoteCommand]{ClientTag: tag, Contents: SessionCommandWrapper{Cmd: cmd}}
}

func wrapNetworkCmd(tag *uint64, nid uint64, cmd NetworkCommand) Envelope[RemoteCommand] {
	return wrapSessionCmd(tag, NetworkCommandEnvelope{NetID: nid, Cmd: cmd})
}

func packError(reason string, tag *uint64) *wire.Packet {
	return &wire.Packet{Type: wire.PacketError, Tag: tag, Reason: reason}
}

func packSuccess(tag *uint64) *wire.Packet {
	return &wire.Packet{Type: wire.PacketSuccess, Tag: tag}
}

// packSessionEvent translates one outbound session envelope into a
// wire.Packet, grounded on remotecontrol.rs's pack_remote_packet.
func packSessionEvent(env Envelope[SessionEvent]) *wire.Packet {
	p := &wire.Packet{Tag: env.ClientTag}

	switch c := env.Contents.(type) {
	case NetworkMessage:
		nid := c.NetID
		p.NetworkID = &nid
		packNetworkContents(p, c.Contents)

	case NetworkListReply:
		p.Type = wire.PacketNetworkList
		p.Networks = networkInfos(c.Networks)

	case SessionErrorEvent:
		p.Type = wire.PacketError
		p.Reason = c.Reason
	}

	return p
}

func packNetworkContents(p *wire.Packet, contents interface{}) {
	switch inner := contents.(type) {
	case SuccessReply:
		p.Type = wire.PacketSuccess

	case ErrorReply:
		p.Type = wire.PacketError
		p.Reason = inner.Reason

	case ConfigurationReply:
		p.Type = wire.PacketConfiguration
		if inner.Config != nil {
			p.Server = inner.Config.Server
			p.Nickname = inner.Config.Nickname
		}

	case BufferListReply:
		p.Type = wire.PacketBufferList
		p.Buffers = bufferInfos(inner.Buffers)

	case BufferMessageRangeReply:
		p.Type = wire.PacketBufferMessageRange
		bid := inner.BufferID
		p.BufferID = &bid
		p.Messages = messagesWithID(inner.Messages)

	case ConnectedEvent:
		p.Type = wire.PacketConnected

	case DisconnectedEvent:
		p.Type = wire.PacketDisconnected
		p.Reason = inner.Reason

	case NewBufferEvent:
		p.Type = wire.PacketNewBuffer
		bid := inner.BufferID
		p.BufferID = &bid
		ri := roleInfo(inner.Role)
		p.Role = &ri

	case BufferMessageEvent:
		p.Type = wire.PacketBufferMessage
		bid := inner.BufferID
		p.BufferID = &bid
		mid := inner.Msg.ID
		p.MessageID = &mid
		tns := inner.Msg.TimeNS
		p.TimeNS = &tns
		v := messageVariant(inner.Msg.Contents)
		p.Variant = &v

	default:
		p.Type = wire.PacketError
		p.Reason = fmt.Sprintf("internal: unhandled network message %T", inner)
	}
}

func roleInfo(r Role) wire.RoleInfo {
	kind := "status"
	switch r.Kind {
	case RoleChannel:
		kind = "channel"
	case RoleQuery:
		kind = "query"
	}
	return wire.RoleInfo{Kind: kind, Name: r.Name}
}

func bufferInfos(bufs []Buffer) []wire.BufferInfo {
	out := make([]wire.BufferInfo, len(bufs))
	for i, b := range bufs {
		out[i] = wire.BufferInfo{ID: b.ID, Role: roleInfo(b.Role)}
	}
	return out
}

func networkInfos(entries []NetworkListEntry) []wire.NetworkInfo {
	out := make([]wire.NetworkInfo, len(entries))
	for i, e := range entries {
		out[i] = wire.NetworkInfo{ID: e.ID, State: e.State.String()}
	}
	return out
}

func messageVariant(c MessageContents) wire.MessageVariant {
	switch m := c.(type) {
	case Information:
		return wire.MessageVariant{Kind: "information", Text: m.Text}
	case JoinContents:
		return wire.MessageVariant{Kind: "join", Who: m.Who}
	case PrivmsgContents:
		return wire.MessageVariant{Kind: "privmsg", Who: m.Sender, Text: m.Text}
	default:
		return wire.MessageVariant{Kind: "unknown"}
	}
}

func messagesWithID(msgs []Message) []wire.MessageWithID {
	out := make([]wire.MessageWithID, len(msgs))
	for i, m := range msgs {
		out[i] = wire.MessageWithID{ID: m.ID, TimeNS: m.TimeNS, Variant: messageVariant(m.Contents)}
	}
	return out
}
