package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateSessionAndNetwork(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	sid, err := st.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	net, err := st.CreateNetwork(ctx, sid, "irc.example.org:6697", "tester")
	if err != nil {
		t.Fatalf("CreateNetwork: %v", err)
	}
	if net.SessionID != sid {
		t.Errorf("network session id = %d, want %d", net.SessionID, sid)
	}

	if err := st.UpdateNetworkConfiguration(ctx, net.ID, "irc.example.org:6697", "tester2"); err != nil {
		t.Fatalf("UpdateNetworkConfiguration: %v", err)
	}

	core, err := st.LoadCore(ctx)
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	if len(core.Sessions) != 1 {
		t.Fatalf("LoadCore returned %d sessions, want 1", len(core.Sessions))
	}
	if len(core.Sessions[0].Networks) != 1 {
		t.Fatalf("LoadCore returned %d networks, want 1", len(core.Sessions[0].Networks))
	}
	if got := core.Sessions[0].Networks[0].Nickname; got != "tester2" {
		t.Errorf("reloaded nickname = %q, want %q", got, "tester2")
	}
}

func TestBufferAndMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	sid, err := st.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	net, err := st.CreateNetwork(ctx, sid, "irc.example.org:6697", "tester")
	if err != nil {
		t.Fatalf("CreateNetwork: %v", err)
	}

	buf, err := st.CreateBuffer(ctx, net.ID, Role{Kind: RoleChannel, Name: "#test"})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}

	var appended []Message
	for i := 0; i < 5; i++ {
		m, err := st.AppendMessage(ctx, buf.ID, Message{
			TimeNS: uint64(i + 1),
			Kind:   KindPrivmsg,
			Who:    "alice",
			Text:   "hello",
		})
		if err != nil {
			t.Fatalf("AppendMessage #%d: %v", i, err)
		}
		appended = append(appended, m)
	}

	latest, err := st.FetchLatest(ctx, buf.ID, 3)
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("FetchLatest returned %d messages, want 3", len(latest))
	}
	if latest[0].ID != appended[4].ID {
		t.Errorf("FetchLatest not newest-first: got id %d, want %d", latest[0].ID, appended[4].ID)
	}

	before, err := st.FetchMessagesBefore(ctx, buf.ID, appended[4].ID, 10)
	if err != nil {
		t.Fatalf("FetchMessagesBefore: %v", err)
	}
	if len(before) != 4 {
		t.Fatalf("FetchMessagesBefore returned %d messages, want 4", len(before))
	}
	for _, m := range before {
		if m.ID >= appended[4].ID {
			t.Errorf("FetchMessagesBefore returned message id %d not strictly before %d", m.ID, appended[4].ID)
		}
	}

	core, err := st.LoadCore(ctx)
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	bufs := core.Sessions[0].Buffers[net.ID]
	if len(bufs) != 1 || bufs[0].Role.Name != "#test" {
		t.Errorf("LoadCore buffers = %+v, want one #test channel buffer", bufs)
	}
}

func TestSessionSecret(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	sid, err := st.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.SetSessionSecret(ctx, sid, "hashed-value"); err != nil {
		t.Fatalf("SetSessionSecret: %v", err)
	}

	core, err := st.LoadCore(ctx)
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	if core.Sessions[0].SecretHash != "hashed-value" {
		t.Errorf("SecretHash = %q, want %q", core.Sessions[0].SecretHash, "hashed-value")
	}
}
