package q2

import (
	"fmt"

	"github.com/cyndis/q2/ircmsg"
)

// Role is the kind of conversation a Buffer represents. It is grounded on
// original_source/buffer.rs's Role enum (Status / Channel(name) /
// Query(peer)).
type Role struct {
	Kind RoleKind
	Name string // empty for Status, channel name for Channel, peer nick for Query
}

type RoleKind int

const (
	RoleStatus RoleKind = iota
	RoleChannel
	RoleQuery
)

// Normalized returns a Role suitable for deduplication: its Name is
// rfc1459-lowercased, matching "Role as identity" in spec §9.
func (r Role) Normalized() Role {
	return Role{Kind: r.Kind, Name: ircmsg.CasemapRFC1459(r.Name)}
}

func (r Role) Equal(other Role) bool {
	if r.Kind != other.Kind {
		return false
	}
	return ircmsg.IRCEqual(r.Name, other.Name)
}

func (r Role) String() string {
	switch r.Kind {
	case RoleStatus:
		return "*"
	case RoleChannel:
		return fmt.Sprintf("channel:%s", r.Name)
	case RoleQuery:
		return fmt.Sprintf("query:%s", r.Name)
	default:
		return "?"
	}
}

// MessageContents is the tagged variant stored for every message.
// Additional variants are additive; each maps to exactly one integer
// discriminant persisted in the store (see store.ContentsKind).
type MessageContents interface{ isMessageContents() }

type Information struct{ Text string }

type JoinContents struct{ Who string }

type PrivmsgContents struct {
	Sender string
	Text   string
}

func (Information) isMessageContents()     {}
func (JoinContents) isMessageContents()     {}
func (PrivmsgContents) isMessageContents()  {}

// Message is a single persisted event in a buffer. ID is assigned by the
// persistence facade on append and is monotonically increasing within a
// buffer (spec §3 invariant).
type Message struct {
	ID       uint64
	TimeNS   uint64
	Contents MessageContents
}

// Buffer identifies one conversation within a network. It owns no message
// data itself -- messages live in the persistence store, addressed by
// BufferID.
type Buffer struct {
	ID              uint64
	Role            Role
	StoredMessages  uint64
}
