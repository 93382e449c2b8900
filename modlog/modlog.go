// Package modlog writes an append-only plain-text transcript of every fetched
// chat message and every enforced action, one file per moderation run.
package modlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chatwarden/moderation"
)

// Logger is a buffered transcript writer. Safe for concurrent use; call Close
// on shutdown to flush.
type Logger struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// Open creates (or appends to) a transcript file in dir. An empty name picks
// the default date-hour scheme, e.g. 2026-08-30_14.log, so restarts within the
// same hour append to one file.
func Open(dir, name string) (*Logger, error) {
	if name == "" {
		name = time.Now().Format("2006-01-02_15") + ".log"
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	return &Logger{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the transcript file path.
func (l *Logger) Path() string { return l.path }

// Message appends one fetched message. System events are tagged with their
// event type instead of a message body.
func (l *Logger) Message(m moderation.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format(time.RFC3339)
	if m.EventType != moderation.EventTextMessage {
		fmt.Fprintf(l.w, "%s [%s] %s\n", ts, m.EventType, m.AuthorName) //nolint:errcheck
		return
	}
	fmt.Fprintf(l.w, "%s %s: %s\n", ts, m.AuthorName, m.Text) //nolint:errcheck
}

// Action appends one enforcement record.
func (l *Logger) Action(d moderation.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s ACTION %s author=%s reason=%q message=%q\n", //nolint:errcheck
		time.Now().Format(time.RFC3339),
		d.Action.Kind,
		d.Message.AuthorName,
		d.Action.Reason,
		d.Message.Text)
}

// Close flushes buffered lines and closes the file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close() //nolint:errcheck
		return fmt.Errorf("flush transcript: %w", err)
	}
	return l.f.Close()
}
