// Package mail is the boundary to the mailbox provider. The desk only ever
// needs four operations — search, list history, fetch, send — so the
// interface stays that narrow and the rest of the system is provider-blind.
package mail

import (
	"context"
	"errors"
)

// ErrNotFound reports that a message ID does not exist (deleted, expired,
// or bogus). Callers treat it differently from a retrieval failure: a
// missing message is a terminal outcome for that ID, a failed fetch is not.
var ErrNotFound = errors.New("mail: message not found")

// Message is one inbound email as the desk sees it.
type Message struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Body     string
}

// Outgoing is one reply to be sent.
type Outgoing struct {
	To        string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}

// Client is the mailbox contract.
type Client interface {
	// SearchMessages returns up to max message IDs matching the provider
	// query string.
	SearchMessages(ctx context.Context, query string, max int) ([]string, error)

	// ListHistory returns the IDs of messages added since startHistoryID.
	ListHistory(ctx context.Context, startHistoryID string) ([]string, error)

	// FetchMessage retrieves one message. Returns ErrNotFound when the ID
	// does not exist.
	FetchMessage(ctx context.Context, id string) (*Message, error)

	// SendMessage delivers one outgoing reply.
	SendMessage(ctx context.Context, out Outgoing) error
}
