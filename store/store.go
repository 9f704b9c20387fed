// Package store implements the persistence facade described in spec §4.4:
// a single-writer handle over a local embedded SQL store providing
// buffer/message creation, history paging, and full-core reconstruction on
// startup. It is storage-engine agnostic at the API boundary (original_source
// /database.rs's sqlite-specific Database is the direct ancestor) but is
// backed here by database/sql plus the pure-Go modernc.org/sqlite driver,
// matching soju's own choice of an embedded SQL engine for its bouncer
// state.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// RoleKind mirrors the buffer role discriminant persisted in the store.
type RoleKind int

const (
	RoleStatus RoleKind = iota
	RoleChannel
	RoleQuery
)

type Role struct {
	Kind RoleKind
	Name string
}

// ContentsKind is the per-message type discriminant (spec §3,
// "every variant maps to exactly one integer discriminant persisted in the
// store").
type ContentsKind int

const (
	KindInformation ContentsKind = iota
	KindJoin
	KindPrivmsg
)

// Message is the persistence-layer representation of a buffer message. Who
// is the Join sender or Privmsg sender; Text is the Information or Privmsg
// body.
type Message struct {
	ID     uint64
	TimeNS uint64
	Kind   ContentsKind
	Who    string
	Text   string
}

type Buffer struct {
	ID        uint64
	NetworkID uint64
	Role      Role
}

type Network struct {
	ID        uint64
	SessionID uint64
	Server    string
	Nickname  string
}

type Session struct {
	ID         uint64
	SecretHash string // empty if no shared secret is configured
	Networks   []Network
	Buffers    map[uint64][]Buffer // network id -> buffers, in creation order
}

// Core is the result of load_core: every persisted session, its networks,
// and their buffers. Historical messages are not loaded (spec §4.4: "does
// not load historical messages; they remain on demand").
type Core struct {
	Sessions []Session
}

// Store is the single-writer persistence handle. Cloning it is unnecessary
// in Go (callers share the *Store pointer), which preserves single-writer
// semantics for free; the mutex matches spec §5's permitted design
// ("a single mutex around the store suffices").
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the embedded SQL store at path, or an
// in-memory store if path is ":memory:".
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // embedded engine, single-writer discipline end to end

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	const schema = `
CREATE TABLE IF NOT EXISTS session (
	id INTEGER PRIMARY KEY,
	secret_hash TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS network (
	id INTEGER PRIMARY KEY,
	session_id INTEGER NOT NULL REFERENCES session(id),
	server TEXT NOT NULL DEFAULT '',
	nickname TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS buffer (
	id INTEGER PRIMARY KEY,
	network_id INTEGER NOT NULL REFERENCES network(id),
	role INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY,
	buffer_id INTEGER NOT NULL REFERENCES buffer(id),
	time_ns INTEGER NOT NULL,
	type INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS message_information (
	message_id INTEGER PRIMARY KEY REFERENCES message(id),
	message TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS message_join (
	message_id INTEGER PRIMARY KEY REFERENCES message(id),
	who TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS message_privmsg (
	message_id INTEGER PRIMARY KEY REFERENCES message(id),
	who TEXT NOT NULL,
	message TEXT NOT NULL
);
`
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession inserts a new, empty session and returns its id. This is
// bootstrap infrastructure beyond spec §4.4's named operations (which take
// a session/network's existence for granted); it exists so the module is
// runnable standalone without an external provisioning step.
func (s *Store) CreateSession(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO session DEFAULT VALUES;`)
	if err != nil {
		return 0, fmt.Errorf("store: create session: %w", err)
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// CreateNetwork inserts a new network row bound to sessionID.
func (s *Store) CreateNetwork(ctx context.Context, sessionID uint64, server, nickname string) (Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO network (session_id, server, nickname) VALUES (?, ?, ?);`,
		sessionID, server, nickname)
	if err != nil {
		return Network{}, fmt.Errorf("store: create network: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Network{}, err
	}
	return Network{ID: uint64(id), SessionID: sessionID, Server: server, Nickname: nickname}, nil
}

// UpdateNetworkConfiguration persists a network's server/nickname, backing
// the SetConfiguration network command (spec §4.3).
func (s *Store) UpdateNetworkConfiguration(ctx context.Context, networkID uint64, server, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE network SET server = ?, nickname = ? WHERE id = ?;`,
		server, nickname, networkID)
	if err != nil {
		return fmt.Errorf("store: update network configuration: %w", err)
	}
	return nil
}

// SetSessionSecret stores a bcrypt hash gating AttachSession for sessionID.
// Passing an empty hash removes the gate. See SPEC_FULL.md's supplemented
// shared-secret feature.
func (s *Store) SetSessionSecret(ctx context.Context, sessionID uint64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE session SET secret_hash = ? WHERE id = ?;`, hash, sessionID)
	return err
}

// CreateBuffer inserts a new buffer row and returns it bound to its new id
// (spec §4.4 create_buffer).
func (s *Store) CreateBuffer(ctx context.Context, networkID uint64, role Role) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buffer (network_id, role, name) VALUES (?, ?, ?);`,
		networkID, role.Kind, role.Name)
	if err != nil {
		return Buffer{}, fmt.Errorf("store: create buffer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{ID: uint64(id), NetworkID: networkID, Role: role}, nil
}

// AppendMessage inserts a master row and its per-variant detail row,
// returning msg with ID filled in (spec §4.4 append_message).
func (s *Store) AppendMessage(ctx context.Context, bufferID uint64, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO message (buffer_id, time_ns, type) VALUES (?, ?, ?);`,
		bufferID, msg.TimeNS, msg.Kind)
	if err != nil {
		return Message{}, fmt.Errorf("store: append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}

	switch msg.Kind {
	case KindInformation:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO message_information (message_id, message) VALUES (?, ?);`, id, msg.Text)
	case KindJoin:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO message_join (message_id, who) VALUES (?, ?);`, id, msg.Who)
	case KindPrivmsg:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO message_privmsg (message_id, who, message) VALUES (?, ?, ?);`, id, msg.Who, msg.Text)
	default:
		return Message{}, fmt.Errorf("store: append message: unknown contents kind %d", msg.Kind)
	}
	if err != nil {
		return Message{}, fmt.Errorf("store: append message detail: %w", err)
	}

	msg.ID = uint64(id)
	return msg, nil
}

const fetchColumns = `
	message.id, message.time_ns, message.type,
	message_information.message,
	message_join.who,
	message_privmsg.who, message_privmsg.message
`

const fetchJoins = `
	FROM message
	LEFT JOIN message_information ON message_information.message_id = message.id
	LEFT JOIN message_join ON message_join.message_id = message.id
	LEFT JOIN message_privmsg ON message_privmsg.message_id = message.id
`

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			m                                 Message
			infoText, joinWho, pmWho, pmText  sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TimeNS, &m.Kind, &infoText, &joinWho, &pmWho, &pmText); err != nil {
			return nil, err
		}
		switch m.Kind {
		case KindInformation:
			m.Text = infoText.String
		case KindJoin:
			m.Who = joinWho.String
		case KindPrivmsg:
			m.Who, m.Text = pmWho.String, pmText.String
		default:
			return nil, fmt.Errorf("store: invalid message type %d read from store", m.Kind)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// FetchMessagesBefore returns messages strictly older than beforeID, up to
// count, newest-first (spec §4.4 fetch_messages_before).
func (s *Store) FetchMessagesBefore(ctx context.Context, bufferID, beforeID uint64, count int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fetchColumns+fetchJoins+`
		 WHERE message.buffer_id = ? AND message.id < ?
		 ORDER BY message.id DESC
		 LIMIT ?;`,
		bufferID, beforeID, count)
	if err != nil {
		return nil, fmt.Errorf("store: fetch messages before: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// FetchLatest returns the newest count messages, newest-first (spec §4.4
// fetch_latest).
func (s *Store) FetchLatest(ctx context.Context, bufferID uint64, count int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fetchColumns+fetchJoins+`
		 WHERE message.buffer_id = ?
		 ORDER BY message.id DESC
		 LIMIT ?;`,
		bufferID, count)
	if err != nil {
		return nil, fmt.Errorf("store: fetch latest: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// LoadCore enumerates every persisted session, network and buffer, for
// reconstructing in-memory actors on startup (spec §4.4 load_core).
// Historical messages are intentionally not loaded here.
func (s *Store) LoadCore(ctx context.Context) (Core, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var core Core

	sessionRows, err := s.db.QueryContext(ctx, `SELECT id, secret_hash FROM session ORDER BY id;`)
	if err != nil {
		return Core{}, fmt.Errorf("store: load_core: list sessions: %w", err)
	}
	var sessions []Session
	for sessionRows.Next() {
		var sess Session
		if err := sessionRows.Scan(&sess.ID, &sess.SecretHash); err != nil {
			sessionRows.Close()
			return Core{}, err
		}
		sess.Buffers = make(map[uint64][]Buffer)
		sessions = append(sessions, sess)
	}
	if err := sessionRows.Err(); err != nil {
		sessionRows.Close()
		return Core{}, err
	}
	sessionRows.Close()

	for i := range sessions {
		sess := &sessions[i]

		netRows, err := s.db.QueryContext(ctx,
			`SELECT id, server, nickname FROM network WHERE session_id = ? ORDER BY id;`, sess.ID)
		if err != nil {
			return Core{}, fmt.Errorf("store: load_core: list networks: %w", err)
		}
		var networks []Network
		for netRows.Next() {
			var n Network
			n.SessionID = sess.ID
			if err := netRows.Scan(&n.ID, &n.Server, &n.Nickname); err != nil {
				netRows.Close()
				return Core{}, err
			}
			networks = append(networks, n)
		}
		if err := netRows.Err(); err != nil {
			netRows.Close()
			return Core{}, err
		}
		netRows.Close()
		sess.Networks = networks

		for _, net := range networks {
			bufRows, err := s.db.QueryContext(ctx,
				`SELECT id, role, name FROM buffer WHERE network_id = ? ORDER BY id;`, net.ID)
			if err != nil {
				return Core{}, fmt.Errorf("store: load_core: list buffers: %w", err)
			}
			var buffers []Buffer
			for bufRows.Next() {
				var b Buffer
				b.NetworkID = net.ID
				var kind int
				if err := bufRows.Scan(&b.ID, &kind, &b.Role.Name); err != nil {
					bufRows.Close()
					return Core{}, err
				}
				b.Role.Kind = RoleKind(kind)
				buffers = append(buffers, b)
			}
			if err := bufRows.Err(); err != nil {
				bufRows.Close()
				return Core{}, err
			}
			bufRows.Close()
			sess.Buffers[net.ID] = buffers
		}
	}

	core.Sessions = sessions
	return core, nil
}
