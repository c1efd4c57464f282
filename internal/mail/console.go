package mail

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ConsoleClient is the no-transport mailbox used for local runs and the
// simulate command: searches and history listings come back empty, fetches
// miss, and sends are logged instead of delivered.
type ConsoleClient struct{}

// NewConsoleClient returns a mailbox that logs instead of sending.
func NewConsoleClient() *ConsoleClient {
	return &ConsoleClient{}
}

// SearchMessages implements Client.
func (c *ConsoleClient) SearchMessages(ctx context.Context, query string, max int) ([]string, error) {
	log.Debug().Str("query", query).Int("max", max).Msg("console_mail_search")
	return nil, nil
}

// ListHistory implements Client.
func (c *ConsoleClient) ListHistory(ctx context.Context, startHistoryID string) ([]string, error) {
	log.Debug().Str("start_history_id", startHistoryID).Msg("console_mail_list_history")
	return nil, nil
}

// FetchMessage implements Client.
func (c *ConsoleClient) FetchMessage(ctx context.Context, id string) (*Message, error) {
	return nil, ErrNotFound
}

// SendMessage implements Client.
func (c *ConsoleClient) SendMessage(ctx context.Context, out Outgoing) error {
	log.Info().
		Str("to", out.To).
		Str("subject", out.Subject).
		Str("thread_id", out.ThreadID).
		Int("body_bytes", len(out.Body)).
		Msg("console_mail_send")
	return nil
}
