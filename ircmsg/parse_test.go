package ircmsg

import "testing"

func TestParseBasic(t *testing.T) {
	tests := []struct {
		line    string
		prefix  string
		command string
		params  []string
	}{
		{"PING :tungsten.libera.chat", "", "PING", []string{"tungsten.libera.chat"}},
		{":nick!user@host JOIN #test", "nick!user@host", "JOIN", []string{"#test"}},
		{":server 001 mynick :Welcome to the network", "server", "001", []string{"mynick", "Welcome to the network"}},
		{":nick!user@host PRIVMSG #test :hello   there", "nick!user@host", "PRIVMSG", []string{"#test", "hello   there"}},
		{"PRIVMSG #test :", "", "PRIVMSG", []string{"#test", ""}},
		{"CAP   LS   302", "", "CAP", []string{"LS", "302"}},
	}

	for _, tt := range tests {
		raw, ok := Parse([]byte(tt.line))
		if !ok {
			t.Fatalf("Parse(%q) failed unexpectedly", tt.line)
		}
		if raw.Prefix != tt.prefix {
			t.Errorf("Parse(%q).Prefix = %q, want %q", tt.line, raw.Prefix, tt.prefix)
		}
		if raw.Command != tt.command {
			t.Errorf("Parse(%q).Command = %q, want %q", tt.line, raw.Command, tt.command)
		}
		if len(raw.Parameters) != len(tt.params) {
			t.Fatalf("Parse(%q).Parameters = %v, want %v", tt.line, raw.Parameters, tt.params)
		}
		for i, p := range tt.params {
			if raw.Parameters[i] != p {
				t.Errorf("Parse(%q).Parameters[%d] = %q, want %q", tt.line, i, raw.Parameters[i], p)
			}
		}
	}
}

func TestParseEmptyOrPrefixOnly(t *testing.T) {
	for _, line := range []string{"", "   ", ":onlyprefix"} {
		if _, ok := Parse([]byte(line)); ok {
			t.Errorf("Parse(%q) should have failed", line)
		}
	}
}

// TestParseRoundTrip is the P1 property: parsing a line and converting it
// to a gopkg.in/irc.v3 Message via ToIRC preserves command and parameters
// (the prefix and the serialized string are not checked here, since
// irc.v3's own formatting is out of scope).
func TestParseRoundTrip(t *testing.T) {
	lines := []string{
		"PING :chat.freenode.net",
		":nick!user@host PRIVMSG #channel :hello world",
		":nick!user@host JOIN #channel",
		"CAP LS 302",
	}

	for _, line := range lines {
		raw, ok := Parse([]byte(line))
		if !ok {
			t.Fatalf("Parse(%q) failed", line)
		}
		msg := raw.ToIRC()
		if msg.Command != raw.Command {
			t.Errorf("round trip command mismatch for %q: %q != %q", line, msg.Command, raw.Command)
		}
		if len(msg.Params) != len(raw.Parameters) {
			t.Fatalf("round trip params mismatch for %q: %v != %v", line, msg.Params, raw.Parameters)
		}
		for i := range raw.Parameters {
			if msg.Params[i] != raw.Parameters[i] {
				t.Errorf("round trip param %d mismatch for %q: %q != %q", i, line, msg.Params[i], raw.Parameters[i])
			}
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		line string
		want interface{}
	}{
		{":server 001 nick :Welcome", Welcome{Text: "nick"}},
		{"PING :token", Ping{Target: "token"}},
		{":nick!u@h JOIN #chan", Join{Prefix: "nick!u@h", Channel: "#chan"}},
		{":nick!u@h PRIVMSG #chan :hi", Privmsg{Prefix: "nick!u@h", Target: "#chan", Text: "hi"}},
	}

	for _, c := range cases {
		raw, ok := Parse([]byte(c.line))
		if !ok {
			t.Fatalf("Parse(%q) failed", c.line)
		}
		got := Classify(raw)
		if got != c.want {
			t.Errorf("Classify(%q) = %#v, want %#v", c.line, got, c.want)
		}
	}
}

func TestClassifyUnknownOnMissingParams(t *testing.T) {
	raw, ok := Parse([]byte("PING"))
	if !ok {
		t.Fatal("Parse failed")
	}
	if _, isUnknown := Classify(raw).(Unknown); !isUnknown {
		t.Errorf("Classify(PING with no params) should be Unknown")
	}
}
