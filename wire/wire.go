// Package wire implements the length-prefixed record framing used between
// the bouncer and its remote clients (spec §6). This protocol is an
// external, fixed-contract boundary per spec §1 ("not as a component"); the
// framing itself (4-byte little-endian length + a structured payload) uses
// only the standard library, and the payload is encoded as JSON -- the
// simplest structured schema that carries a packet_type discriminator, an
// optional correlation tag, and per-type fields without hand-rolling a
// binary encoder for a boundary this spec treats as fixed.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize is the over-long-frame ceiling spec §6 requires ("recommended
// 1 MiB").
const MaxFrameSize = 1 << 20

type PacketType string

const (
	// Inbound (client -> bouncer)
	PacketAttachSession            PacketType = "AttachSession"
	PacketGetNetworkList            PacketType = "GetNetworkList"
	PacketConnect                   PacketType = "Connect"
	PacketDisconnect                PacketType = "Disconnect"
	PacketJoinChannel               PacketType = "JoinChannel"
	PacketSendPrivmsg               PacketType = "SendPrivmsg"
	PacketGetBufferList             PacketType = "GetBufferList"
	PacketSetNetworkConfiguration   PacketType = "SetNetworkConfiguration"
	PacketGetNetworkConfiguration   PacketType = "GetNetworkConfiguration"
	PacketGetBufferMessageRange     PacketType = "GetBufferMessageRange"

	// Outbound (bouncer -> client)
	PacketSuccess            PacketType = "Success"
	PacketError              PacketType = "Error"
	PacketDisconnected       PacketType = "Disconnected"
	PacketConnected          PacketType = "Connected"
	PacketNewBuffer          PacketType = "NewBuffer"
	PacketBufferList         PacketType = "BufferList"
	PacketBufferMessage      PacketType = "BufferMessage"
	PacketNetworkList        PacketType = "NetworkList"
	PacketConfiguration      PacketType = "Configuration"
	PacketBufferMessageRange PacketType = "BufferMessageRange"
)

// MessageVariant is the wire shape of a persisted message body. Kind selects
// the variant; Who is set for join and privmsg, Text for information and
// privmsg.
type MessageVariant struct {
	Kind   string `json:"kind"` // "information", "join", or "privmsg"
	Who    string `json:"who,omitempty"`
	Text   string `json:"text,omitempty"`
}

type RoleInfo struct {
	Kind string `json:"kind"` // "status", "channel", or "query"
	Name string `json:"name,omitempty"`
}

type NetworkInfo struct {
	ID    uint64 `json:"id"`
	State string `json:"state"` // "disconnected", "connecting", "connected"
}

type BufferInfo struct {
	ID   uint64   `json:"id"`
	Role RoleInfo `json:"role"`
}

// Packet is the flattened payload schema: a packet_type discriminator plus
// every field any packet type may carry. Unused fields are omitted on the
// wire via omitempty.
type Packet struct {
	Type PacketType `json:"type"`
	Tag  *uint64    `json:"tag,omitempty"`

	SessionID *uint64 `json:"session_id,omitempty"`
	Secret    string  `json:"secret,omitempty"`
	NetworkID *uint64 `json:"network_id,omitempty"`
	Channel   string  `json:"channel,omitempty"`
	Target    string  `json:"target,omitempty"`
	Msg       string  `json:"msg,omitempty"`
	Server    string  `json:"server,omitempty"`
	Nickname  string  `json:"nickname,omitempty"`

	Reason   string        `json:"reason,omitempty"`
	Networks []NetworkInfo `json:"networks,omitempty"`
	Buffers  []BufferInfo  `json:"buffers,omitempty"`

	BufferID  *uint64 `json:"buffer_id,omitempty"`
	MessageID *uint64 `json:"message_id,omitempty"`
	TimeNS    *uint64 `json:"time_ns,omitempty"`

	Variant  *MessageVariant  `json:"variant,omitempty"`
	Messages []MessageWithID  `json:"messages,omitempty"`
	Role     *RoleInfo        `json:"role,omitempty"`

	BeforeID *uint64 `json:"before_id,omitempty"`
	Count    *int    `json:"count,omitempty"`
}

// MessageWithID is one entry of a BufferMessageRange reply.
type MessageWithID struct {
	ID      uint64         `json:"id"`
	TimeNS  uint64         `json:"time_ns"`
	Variant MessageVariant `json:"variant"`
}

// WriteFrame writes p as a length-prefixed JSON record.
func WriteFrame(w io.Writer, p *Packet) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("wire: marshal packet: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("wire: packet too large (%d bytes)", len(body))
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON record, rejecting frames larger
// than MaxFrameSize.
func ReadFrame(r io.Reader) (*Packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: frame too large (%d bytes)", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read body: %w", err)
	}

	var p Packet
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("wire: invalid packet: %w", err)
	}
	return &p, nil
}
