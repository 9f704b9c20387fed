package q2

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/cyndis/q2/ircmsg"
	"github.com/cyndis/q2/store"
)

var ctxBg = context.Background()

type testLogger struct{ t *testing.T }

func (l testLogger) Print(v ...interface{})                { l.t.Log(v...) }
func (l testLogger) Printf(format string, v ...interface{}) { l.t.Logf(format, v...) }

func newTestNetwork(t *testing.T, cfg *NetworkConfig) (*Network, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sid, err := st.CreateSession(ctxBg)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	netID := uint64(1)
	if cfg != nil {
		rec, err := st.CreateNetwork(ctxBg, sid, cfg.Server, cfg.Nickname)
		if err != nil {
			t.Fatalf("CreateNetwork: %v", err)
		}
		netID = rec.ID
	}

	n := NewNetwork(netID, sid, cfg, nil, testLogger{t}, st)
	return n, st
}

func TestHandleCommandConnectUnconfigured(t *testing.T) {
	n, _ := newTestNetwork(t, nil)
	reply := n.HandleCommand(Empty[NetworkCommand](ConnectCmd{}))
	if _, ok := reply.Contents.(ErrorReply); !ok {
		t.Fatalf("Connect on unconfigured network: got %#v, want ErrorReply", reply.Contents)
	}
}

func TestHandleCommandJoinWithoutUpstream(t *testing.T) {
	n, _ := newTestNetwork(t, &NetworkConfig{Server: "irc.example.org:6667", Nickname: "bot"})
	reply := n.HandleCommand(Empty[NetworkCommand](JoinChannelCmd{Channel: "#test"}))
	errReply, ok := reply.Contents.(ErrorReply)
	if !ok {
		t.Fatalf("Join without upstream: got %#v, want ErrorReply", reply.Contents)
	}
	if errReply.Reason != "network not configured" {
		t.Errorf("unexpected reason: %q", errReply.Reason)
	}
}

func TestHandleCommandGetConfiguration(t *testing.T) {
	cfg := &NetworkConfig{Server: "irc.example.org:6667", Nickname: "bot"}
	n, _ := newTestNetwork(t, cfg)
	reply := n.HandleCommand(Empty[NetworkCommand](GetConfigurationCmd{}))
	confReply, ok := reply.Contents.(ConfigurationReply)
	if !ok {
		t.Fatalf("got %#v, want ConfigurationReply", reply.Contents)
	}
	if confReply.Config == nil || confReply.Config.Nickname != "bot" {
		t.Errorf("got %#v", confReply.Config)
	}
}

// fakeUpstream starts a TCP listener acting as the other half of an
// Upstream connection, to drive Network through a real Connect handshake.
func fakeUpstream(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestNetworkConnectAndWelcome(t *testing.T) {
	ln := fakeUpstream(t)
	cfg := &NetworkConfig{Server: ln.Addr().String(), Nickname: "bot"}
	n, _ := newTestNetwork(t, cfg)

	connCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			connCh <- c
		}
	}()

	reply := n.HandleCommand(Empty[NetworkCommand](ConnectCmd{}))
	if _, ok := reply.Contents.(SuccessReply); !ok {
		t.Fatalf("Connect reply = %#v, want SuccessReply", reply.Contents)
	}
	if n.Upstream == nil {
		t.Fatal("Upstream should be set after a successful Connect")
	}

	var conn net.Conn
	select {
	case conn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake upstream to accept")
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	nickLine, _ := r.ReadString('\n')
	nickMsg := mustClassifyRaw(t, nickLine)
	if nickMsg.Command != "NICK" || len(nickMsg.Parameters) != 1 || nickMsg.Parameters[0] != "bot" {
		t.Errorf("first message from network = %#v, want NICK bot", nickMsg)
	}
	userLine, _ := r.ReadString('\n')
	userMsg := mustClassifyRaw(t, userLine)
	if userMsg.Command != "USER" || len(userMsg.Parameters) != 4 || userMsg.Parameters[0] != "bot" {
		t.Errorf("second message from network = %#v, want USER bot ...", userMsg)
	}

	fmt.Fprintf(conn, ":irc.example.org 001 bot :Welcome to IRC\r\n")

	ev := <-n.Upstream.Events
	events := n.HandleMessage(ev)

	var gotConnected, gotBufferMsg bool
	for _, e := range events {
		switch e.(type) {
		case ConnectedEvent:
			gotConnected = true
		case BufferMessageEvent:
			gotBufferMsg = true
		}
	}
	if !gotConnected || !gotBufferMsg {
		t.Fatalf("events = %#v, want ConnectedEvent and BufferMessageEvent", events)
	}
	if n.State != NetworkConnected {
		t.Errorf("network state = %v, want Connected", n.State)
	}
	if len(n.Buffers) != 1 || n.Buffers[0].Role.Kind != RoleStatus {
		t.Errorf("buffers = %#v, want one status buffer", n.Buffers)
	}
}

func TestNetworkJoinEmitsNewBufferOnce(t *testing.T) {
	n, _ := newTestNetwork(t, &NetworkConfig{Server: "irc.example.org:6667", Nickname: "bot"})
	n.State = NetworkConnected
	n.CurrentNickname = "bot"

	first := n.handleClassified(mustClassifyJoin(t, ":alice!a@h JOIN #test"))
	second := n.handleClassified(mustClassifyJoin(t, ":bob!b@h JOIN #test"))

	if !hasNewBuffer(first) {
		t.Errorf("first join should emit NewBufferEvent: %#v", first)
	}
	if hasNewBuffer(second) {
		t.Errorf("second join on same channel should not emit NewBufferEvent: %#v", second)
	}
}

func mustClassifyRaw(t *testing.T, line string) *ircmsg.Raw {
	t.Helper()
	raw, ok := ircmsg.Parse([]byte(trimCRLF(line)))
	if !ok {
		t.Fatalf("failed to parse %q", line)
	}
	return raw
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func mustClassifyJoin(t *testing.T, line string) ircmsg.Message {
	t.Helper()
	raw, ok := ircmsg.Parse([]byte(line))
	if !ok {
		t.Fatalf("failed to parse %q", line)
	}
	return ircmsg.Classify(raw)
}

func hasNewBuffer(events []NetworkEvent) bool {
	for _, e := range events {
		if _, ok := e.(NewBufferEvent); ok {
			return true
		}
	}
	return false
}
