package q2

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/cyndis/q2/store"
)

// Logger is the minimal logging interface every actor logs through,
// grounded directly on soju's server.go Logger/prefixLogger pair: it lets
// every actor prefix its own log lines without pulling in a structured
// logging library the pack never uses.
type Logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
}

type prefixLogger struct {
	logger Logger
	prefix string
}

var _ Logger = (*prefixLogger)(nil)

func newPrefixLogger(logger Logger, prefix string) *prefixLogger {
	return &prefixLogger{logger: logger, prefix: prefix}
}

func (l *prefixLogger) Print(v ...interface{}) {
	v = append([]interface{}{l.prefix}, v...)
	l.logger.Print(v...)
}

func (l *prefixLogger) Printf(format string, v ...interface{}) {
	v = append([]interface{}{l.prefix}, v...)
	l.logger.Printf("%v"+format, v...)
}

// Server owns the persistence handle and every reconstructed Session, and
// runs the RemoteControl actor that listens for client connections.
type Server struct {
	Logger Logger

	store *store.Store
	rc    *RemoteControl
}

// NewServer wires a Server around an already-open store.
func NewServer(st *store.Store) *Server {
	return &Server{
		Logger: log.New(log.Writer(), "", log.LstdFlags),
		store:  st,
	}
}

// Run reconstructs every persisted session from the store (spec §4.4
// load_core) and starts the RemoteControl actor. It blocks until ln is
// closed or encounters a fatal accept error.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	core, err := s.store.LoadCore(ctx)
	if err != nil {
		return fmt.Errorf("server: load_core: %w", err)
	}

	rc := NewRemoteControl(s.Logger)
	for _, sessRecord := range core.Sessions {
		sess := sessionFromRecord(sessRecord, s.Logger, s.store)
		rc.AddSession(sess)
		go sess.Run(ctx)
	}
	s.rc = rc

	return rc.Serve(ln)
}

func sessionFromRecord(rec store.Session, logger Logger, st *store.Store) *Session {
	sess := NewSession(rec.ID, newPrefixLogger(logger, fmt.Sprintf("session %d: ", rec.ID)))
	sess.SecretHash = rec.SecretHash
	for _, netRec := range rec.Networks {
		var cfg *NetworkConfig
		if netRec.Server != "" {
			cfg = &NetworkConfig{Server: netRec.Server, Nickname: netRec.Nickname}
		}

		var buffers []Buffer
		for _, b := range rec.Buffers[netRec.ID] {
			buffers = append(buffers, Buffer{
				ID:   b.ID,
				Role: Role{Kind: RoleKind(b.Role.Kind), Name: b.Role.Name},
			})
		}

		net := NewNetwork(netRec.ID, rec.ID, cfg, buffers,
			newPrefixLogger(logger, fmt.Sprintf("session %d network %d: ", rec.ID, netRec.ID)), st)
		sess.AddNetwork(net)
	}
	return sess
}
