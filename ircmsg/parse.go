// Package ircmsg implements the byte-level IRC line codec used by the
// upstream connection: tokenizing a raw line into prefix/command/parameters
// and classifying a small set of recognized commands into structured
// values. It builds on gopkg.in/irc.v3 for the on-wire Message
// representation.
package ircmsg

import (
	"strings"

	"gopkg.in/irc.v3"
)

// Raw is the result of tokenizing a single IRC line, before any command
// classification is applied.
type Raw struct {
	Prefix     string // empty if the line had no prefix
	Command    string
	Parameters []string
}

// Parse tokenizes a single IRC line (without the trailing CRLF) into a Raw
// message. It returns false if the line is empty or has no command.
//
// Tokens are split on single SPs. Empty tokens (runs of SPs) are silently
// skipped, except once a trailing parameter has begun -- the first token
// starting with ':' after the command -- at which point everything
// remaining in the line, SPs included, belongs to that parameter verbatim.
func Parse(line []byte) (*Raw, bool) {
	s := string(line)

	var prefix string
	if strings.HasPrefix(s, ":") {
		sp := strings.IndexByte(s, ' ')
		if sp < 0 {
			// Prefix with no command.
			return nil, false
		}
		prefix = s[1:sp]
		s = s[sp+1:]
	}

	var command string
	var params []string
	for s != "" {
		if s[0] == ' ' {
			s = s[1:]
			continue
		}
		if command != "" && s[0] == ':' {
			params = append(params, s[1:])
			break
		}

		var tok string
		if sp := strings.IndexByte(s, ' '); sp < 0 {
			tok, s = s, ""
		} else {
			tok, s = s[:sp], s[sp+1:]
		}

		if command == "" {
			command = tok
		} else {
			params = append(params, tok)
		}
	}

	if command == "" {
		return nil, false
	}
	return &Raw{Prefix: prefix, Command: command, Parameters: params}, true
}

// Message is the classification of a parsed Raw line into a small,
// structured set of recognized commands. Anything not recognized becomes
// Unknown, carrying the original Raw.
type Message interface{ isMessage() }

type Welcome struct{ Text string }

type Ping struct{ Target string }

type Join struct {
	Prefix  string
	Channel string
}

type Privmsg struct {
	Prefix string
	Target string
	Text   string
}

type Unknown struct{ Raw *Raw }

func (Welcome) isMessage() {}
func (Ping) isMessage()    {}
func (Join) isMessage()    {}
func (Privmsg) isMessage() {}
func (Unknown) isMessage() {}

// Classify maps a parsed Raw message to its structured variant.
func Classify(r *Raw) Message {
	switch strings.ToUpper(r.Command) {
	case "001":
		if len(r.Parameters) == 0 {
			return Unknown{r}
		}
		return Welcome{Text: r.Parameters[0]}
	case "PING":
		if len(r.Parameters) == 0 {
			return Unknown{r}
		}
		return Ping{Target: r.Parameters[0]}
	case "JOIN":
		if len(r.Parameters) == 0 {
			return Unknown{r}
		}
		return Join{Prefix: r.Prefix, Channel: r.Parameters[0]}
	case "PRIVMSG":
		if len(r.Parameters) < 2 {
			return Unknown{r}
		}
		return Privmsg{Prefix: r.Prefix, Target: r.Parameters[0], Text: r.Parameters[1]}
	default:
		return Unknown{r}
	}
}

// ToIRC converts a Raw message into a gopkg.in/irc.v3 Message. This is the
// re-serialization half of the P1 round-trip property: parsing a line,
// converting to *irc.Message and back via String() must preserve the
// parsed-domain semantics (prefix, command, parameters, trailing rules).
func (r *Raw) ToIRC() *irc.Message {
	msg := &irc.Message{Command: r.Command, Params: append([]string(nil), r.Parameters...)}
	if r.Prefix != "" {
		msg.Prefix = irc.ParsePrefix(r.Prefix)
	}
	return msg
}
