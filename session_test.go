package q2

import (
	"context"
	"testing"
	"time"
)

func TestSessionGetNetworkList(t *testing.T) {
	n1, _ := newTestNetwork(t, &NetworkConfig{Server: "irc.example.org:6667", Nickname: "bot"})
	n1.ID = 1
	n2, _ := newTestNetwork(t, nil)
	n2.ID = 2

	sess := NewSession(1, testLogger{t})
	sess.AddNetwork(n1)
	sess.AddNetwork(n2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	tag := uint64(42)
	sess.Inbound <- Envelope[SessionCommand]{ClientTag: &tag, Contents: GetNetworkListCmd{}}

	select {
	case env := <-sess.Outbound:
		list, ok := env.Contents.(NetworkListReply)
		if !ok {
			t.Fatalf("got %#v, want NetworkListReply", env.Contents)
		}
		if len(list.Networks) != 2 {
			t.Fatalf("got %d networks, want 2", len(list.Networks))
		}
		if env.ClientTag == nil || *env.ClientTag != tag {
			t.Errorf("client_tag not preserved: %#v", env.ClientTag)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NetworkListReply")
	}
}

func TestSessionUnknownNetworkID(t *testing.T) {
	sess := NewSession(1, testLogger{t})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.Inbound <- Envelope[SessionCommand]{Contents: NetworkCommandEnvelope{NetID: 999, Cmd: GetBufferListCmd{}}}

	select {
	case env := <-sess.Outbound:
		if _, ok := env.Contents.(SessionErrorEvent); !ok {
			t.Fatalf("got %#v, want SessionErrorEvent", env.Contents)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SessionErrorEvent")
	}
}

func TestSessionForwardsNetworkCommand(t *testing.T) {
	n, _ := newTestNetwork(t, &NetworkConfig{Server: "irc.example.org:6667", Nickname: "bot"})
	n.ID = 7

	sess := NewSession(1, testLogger{t})
	sess.AddNetwork(n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	sess.Inbound <- Envelope[SessionCommand]{Contents: NetworkCommandEnvelope{NetID: 7, Cmd: GetConfigurationCmd{}}}

	select {
	case env := <-sess.Outbound:
		msg, ok := env.Contents.(NetworkMessage)
		if !ok {
			t.Fatalf("got %#v, want NetworkMessage", env.Contents)
		}
		if msg.NetID != 7 {
			t.Errorf("NetID = %d, want 7", msg.NetID)
		}
		if _, ok := msg.Contents.(ConfigurationReply); !ok {
			t.Errorf("wrapped contents = %#v, want ConfigurationReply", msg.Contents)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NetworkMessage")
	}
}
