package q2

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"gopkg.in/irc.v3"

	"github.com/cyndis/q2/ircmsg"
)

// UpstreamEvent is what the reader task feeds the network actor (spec
// §4.2): either a successfully classified message, or a terminal
// connection error.
type UpstreamEvent interface{ isUpstreamEvent() }

type UpstreamMessage struct{ Msg ircmsg.Message }

type UpstreamConnectionError struct{ Err error }

func (UpstreamMessage) isUpstreamEvent()         {}
func (UpstreamConnectionError) isUpstreamEvent() {}

// Upstream owns one TCP connection to an IRC server. Its reader task
// produces UpstreamEvents on Events; its writer methods serialize and write
// outgoing commands one call each.
type Upstream struct {
	conn   net.Conn
	Events chan UpstreamEvent

	writeMu  sync.Mutex
	writeErr error

	logger Logger
}

// ConnectUpstream dials addr ("host:port") and, on success, starts the
// reader task. On dial failure it returns the error directly rather than
// emitting a ConnectionError event, since there is no reader task (and
// hence no event channel) yet to emit on.
func ConnectUpstream(ctx context.Context, addr string, logger Logger) (*Upstream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("upstream: connect to %q: %w", addr, err)
	}

	u := &Upstream{
		conn:   conn,
		Events: make(chan UpstreamEvent, 64),
		logger: logger,
	}
	go u.readLoop()
	return u, nil
}

func (u *Upstream) readLoop() {
	r := bufio.NewReader(u.conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			u.Events <- UpstreamConnectionError{Err: err}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		raw, ok := ircmsg.Parse([]byte(line))
		if !ok {
			continue
		}
		u.Events <- UpstreamMessage{Msg: ircmsg.Classify(raw)}
	}
}

// Close tears down the connection. Safe to call on a nil (idle) upstream.
func (u *Upstream) Close() error {
	if u == nil {
		return nil
	}
	return u.conn.Close()
}

func (u *Upstream) write(msg *irc.Message) {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()
	if u.writeErr != nil {
		return // outbound half already invalidated; let the read side surface it
	}
	w := irc.NewWriter(u.conn)
	if err := w.Write(msg); err != nil {
		u.writeErr = err
		if u.logger != nil {
			u.logger.Printf("write error, outbound half invalidated: %v", err)
		}
	}
}

func (u *Upstream) SendNick(nick string) {
	u.write(&irc.Message{Command: "NICK", Params: []string{nick}})
}

func (u *Upstream) SendUser(user string, mode int, realname string) {
	u.write(&irc.Message{Command: "USER", Params: []string{user, fmt.Sprint(mode), "*", realname}})
}

func (u *Upstream) SendPong(target string) {
	u.write(&irc.Message{Command: "PONG", Params: []string{target}})
}

func (u *Upstream) SendJoin(channel string) {
	u.write(&irc.Message{Command: "JOIN", Params: []string{channel}})
}

func (u *Upstream) SendPrivmsg(target, text string) {
	u.write(&irc.Message{Command: "PRIVMSG", Params: []string{target, text}})
}

func (u *Upstream) SendQuit(msg string) {
	u.write(&irc.Message{Command: "QUIT", Params: []string{msg}})
}
