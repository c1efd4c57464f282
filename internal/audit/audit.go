// Package audit records what the desk shared with whom. Compliance teams
// read this trail, so it is JSON lines in a dedicated file, separate from
// operational logging, and it only ever appends.
package audit

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes the compliance audit trail.
type Logger struct {
	log    zerolog.Logger
	closer io.Closer
}

// NewLogger opens (appending) the audit log at path.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{
		log:    zerolog.New(f).With().Timestamp().Logger(),
		closer: f,
	}, nil
}

// NewLoggerTo writes the trail to w, for tests and the simulate command.
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{log: zerolog.New(w).With().Timestamp().Logger()}
}

// Close releases the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Request records one processed document request.
func (l *Logger) Request(requester string, requested, approved, denied []string) {
	l.log.Info().
		Str("event", "document_request").
		Str("requester", requester).
		Strs("requested", requested).
		Strs("approved", approved).
		Strs("denied", denied).
		Send()
}

// DocumentSent records documents going out the door.
func (l *Logger) DocumentSent(recipient string, artifacts []string, method string, expiration *time.Time) {
	ev := l.log.Info().
		Str("event", "document_sent").
		Str("recipient", recipient).
		Strs("artifacts", artifacts).
		Str("method", method)
	if expiration != nil {
		ev = ev.Time("expiration", *expiration)
	}
	ev.Send()
}

// Escalation records a request routed to a human.
func (l *Logger) Escalation(requester, reason string) {
	l.log.Info().
		Str("event", "escalation").
		Str("requester", requester).
		Str("reason", reason).
		Send()
}
