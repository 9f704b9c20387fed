package q2

import (
	"fmt"
	"net"
	"reflect"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/cyndis/q2/wire"
)

// RemoteCommand is what a remote connection's reader task feeds the control
// task (spec §4.6), grounded on remotecontrol.rs's msg::Command.
type RemoteCommand interface{ isRemoteCommand() }

type AttachSessionCmd struct {
	SessionID uint64
	Secret    string
}
type SessionCommandWrapper struct{ Cmd SessionCommand }

func (AttachSessionCmd) isRemoteCommand()      {}
func (SessionCommandWrapper) isRemoteCommand() {}

// remoteConn is one connected remote client. It is only ever touched by the
// control task, except for Inbound (fed by its own reader task) and writes
// to conn (serialized by writeMu, since the reader task may also need to
// write an "invalid packet" error directly).
type remoteConn struct {
	tag       uint64
	sessionID *uint64
	conn      net.Conn
	writeMu   *sync.Mutex
	Inbound   chan Envelope[RemoteCommand]
}

func (r *remoteConn) writePacket(p *wire.Packet) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = wire.WriteFrame(r.conn, p)
}

// sessionEntry pairs a session with the RemoteControl's view of it.
type sessionEntry struct {
	id   uint64
	sess *Session
}

// RemoteControl is the actor that owns the listening socket, accepts remote
// clients, and multiplexes between every session's outbound event channel
// and every remote's inbound command channel (spec §4.6). Like Session, it
// has no native variadic select to reach for, so its control loop is built
// with reflect.Select, rebuilt every iteration so that newly accepted
// remotes (announced via the wakeup channel) are picked up without a
// restart. Sessions are registered with AddSession before Serve starts.
type RemoteControl struct {
	logger Logger

	sessions []sessionEntry
	wakeup   chan *remoteConn

	nextTag uint64
}

func NewRemoteControl(logger Logger) *RemoteControl {
	return &RemoteControl{
		logger: logger,
		wakeup: make(chan *remoteConn, 16),
	}
}

// AddSession registers a session the control loop will route messages to
// and from. Not safe to call concurrently with Serve.
func (rc *RemoteControl) AddSession(sess *Session) {
	rc.sessions = append(rc.sessions, sessionEntry{id: sess.ID, sess: sess})
}

func (rc *RemoteControl) sessionByID(id uint64) *Session {
	for _, e := range rc.sessions {
		if e.id == id {
			return e.sess
		}
	}
	return nil
}

// Serve runs the accept loop on ln, spawning a reader task per connection,
// and runs the control loop until ln is closed.
func (rc *RemoteControl) Serve(ln net.Listener) error {
	go rc.controlLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			close(rc.wakeup)
			return fmt.Errorf("remotecontrol: accept: %w", err)
		}
		tag := rc.nextTag
		rc.nextTag++

		rconn := &remoteConn{
			tag:     tag,
			conn:    conn,
			writeMu: &sync.Mutex{},
			Inbound: make(chan Envelope[RemoteCommand], 16),
		}
		rc.wakeup <- rconn
		go rc.readerTask(rconn)
	}
}

// readerTask reads length-prefixed packets off one remote connection,
// parses them, stamps them with this remote's tag, and forwards well-formed
// commands to the control loop. A packet that decodes but is not a valid
// command (unknown type or a missing required field) gets an "invalid
// packet" error written back directly and the connection stays open. Any
// ReadFrame error (a socket error, an oversized length prefix, or a body
// that is not valid JSON) ends the task without a reply.
func (rc *RemoteControl) readerTask(r *remoteConn) {
	defer close(r.Inbound)
	for {
		p, err := wire.ReadFrame(r.conn)
		if err != nil {
			return
		}

		env, ok := parsePacket(p)
		if !ok {
			r.writePacket(packError("invalid packet", p.Tag))
			continue
		}
		tag := r.tag
		env.RemoteTag = &tag
		r.Inbound <- env
	}
}

// controlLoop is the single task that owns all routing decisions: which
// remote is attached to which session, and which session's outbound events
// reach which remotes.
func (rc *RemoteControl) controlLoop() {
	var remotes []*remoteConn

	for {
		cases := []reflect.SelectCase{
			{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(rc.wakeup)},
		}
		sessionBase := len(cases)
		for _, e := range rc.sessions {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(e.sess.Outbound)})
		}
		remoteBase := len(cases)
		for _, r := range remotes {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(r.Inbound)})
		}

		chosen, recv, recvOK := reflect.Select(cases)
		switch {
		case chosen == 0:
			if !recvOK {
				return
			}
			remotes = append(remotes, recv.Interface().(*remoteConn))

		case chosen < remoteBase:
			if !recvOK {
				continue
			}
			sessionID := rc.sessions[chosen-sessionBase].id
			env := recv.Interface().(Envelope[SessionEvent])
			rc.routeSessionEvent(remotes, sessionID, env)

		default:
			idx := chosen - remoteBase
			r := remotes[idx]
			if !recvOK {
				remotes = append(remotes[:idx:idx], remotes[idx+1:]...)
				r.conn.Close()
				continue
			}
			env := recv.Interface().(Envelope[RemoteCommand])
			rc.handleRemoteCommand(r, env)
		}
	}
}

func (rc *RemoteControl) routeSessionEvent(remotes []*remoteConn, sessionID uint64, env Envelope[SessionEvent]) {
	pkt := packSessionEvent(env)
	for _, r := range remotes {
		if r.sessionID == nil || *r.sessionID != sessionID {
			continue
		}
		if env.RemoteTag != nil && *env.RemoteTag != r.tag {
			continue
		}
		r.writePacket(pkt)
	}
}

func (rc *RemoteControl) handleRemoteCommand(r *remoteConn, env Envelope[RemoteCommand]) {
	switch cmd := env.Contents.(type) {
	case AttachSessionCmd:
		sid := cmd.SessionID
		sess := rc.sessionByID(sid)
		if sess == nil {
			r.writePacket(packError("invalid session", env.ClientTag))
			return
		}
		if sess.SecretHash != "" {
			if err := bcrypt.CompareHashAndPassword([]byte(sess.SecretHash), []byte(cmd.Secret)); err != nil {
				r.writePacket(packError("invalid secret", env.ClientTag))
				return
			}
		}
		r.sessionID = &sid
		r.writePacket(packSuccess(env.ClientTag))

	case SessionCommandWrapper:
		if r.sessionID == nil {
			r.writePacket(packError("no session attached", env.ClientTag))
			return
		}
		sess := rc.sessionByID(*r.sessionID)
		if sess == nil {
			r.writePacket(packError("no session attached", env.ClientTag))
			return
		}
		tag := r.tag
		sess.Inbound <- Envelope[SessionCommand]{ClientTag: env.ClientTag, RemoteTag: &tag, Contents: cmd.Cmd}
	}
}
