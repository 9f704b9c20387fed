package q2

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TranscriptLogger is an optional debug sink that mirrors persisted
// messages to plain-text per-day log files, one directory per
// session/network/buffer. It is not part of the persistence facade --
// history paging is always served from the store -- this exists purely so
// an operator can tail a buffer's traffic without a client attached,
// grounded on delthas-soju/logger.go's per-line transcript format.
type TranscriptLogger struct {
	baseDir string
}

func NewTranscriptLogger(baseDir string) *TranscriptLogger {
	return &TranscriptLogger{baseDir: baseDir}
}

func (tl *TranscriptLogger) path(sessionID, networkID uint64, role Role, at time.Time) string {
	year, month, day := at.Date()
	filename := fmt.Sprintf("%04d-%02d-%02d.log", year, month, day)
	return filepath.Join(tl.baseDir,
		fmt.Sprintf("session-%d", sessionID),
		fmt.Sprintf("network-%d", networkID),
		roleDirName(role),
		filename)
}

func roleDirName(r Role) string {
	switch r.Kind {
	case RoleStatus:
		return "status"
	case RoleChannel:
		return "channel-" + r.Name
	case RoleQuery:
		return "query-" + r.Name
	default:
		return "unknown"
	}
}

// Append writes one formatted line for msg, or does nothing if msg's
// contents don't map to a loggable line.
//
// TODO: cache open file handles per path instead of opening and closing on
// every call; fine for the traffic this bouncer sees today.
func (tl *TranscriptLogger) Append(sessionID, networkID uint64, role Role, msg Message) error {
	line := formatTranscriptLine(msg)
	if line == "" {
		return nil
	}

	at := time.Unix(0, int64(msg.TimeNS)).Local()
	path := tl.path(sessionID, networkID, role, at)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("transcript: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("transcript: open %q: %w", path, err)
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "[%02d:%02d:%02d] %s\n", at.Hour(), at.Minute(), at.Second(), line)
	if err != nil {
		return fmt.Errorf("transcript: write %q: %w", path, err)
	}
	return nil
}

func formatTranscriptLine(msg Message) string {
	switch c := msg.Contents.(type) {
	case Information:
		return fmt.Sprintf("*** %s", c.Text)
	case JoinContents:
		return fmt.Sprintf("*** Joins: %s", c.Who)
	case PrivmsgContents:
		return fmt.Sprintf("<%s> %s", c.Sender, c.Text)
	default:
		return ""
	}
}
