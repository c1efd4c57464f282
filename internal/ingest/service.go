// Package ingest drives messages from the mailbox through the desk: webhook
// notifications, polling cycles, and single-message processing all converge
// on ProcessMessage, which owns idempotency, auditing, and reply delivery.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evalops/sales-desk/internal/audit"
	"github.com/evalops/sales-desk/internal/config"
	"github.com/evalops/sales-desk/internal/desk"
	"github.com/evalops/sales-desk/internal/mail"
	"github.com/evalops/sales-desk/internal/notify"
	deskotel "github.com/evalops/sales-desk/internal/otel"
	"github.com/evalops/sales-desk/internal/securelink"
	"github.com/evalops/sales-desk/internal/state"
)

var tracer = deskotel.Tracer("github.com/evalops/sales-desk/internal/ingest")

// ReasonProcessingError routes a message to a human when it could not be
// read at all.
const ReasonProcessingError = "Error processing message"

const replySubject = "Re: Security Documentation Request"

// Send retry schedule.
const (
	sendMaxRetries    = 3
	sendInitialDelay  = time.Second
	sendBackoffFactor = 2
)

// Outcome couples a decision with its delivery metadata for one message.
type Outcome struct {
	MessageID string        `json:"message_id"`
	Duplicate bool          `json:"duplicate"`
	Sent      bool          `json:"sent"`
	Decision  desk.Decision `json:"decision"`
}

// Service is the ingestion pipeline. All entry points are safe for
// concurrent use; the state store arbitrates duplicates.
type Service struct {
	mail      mail.Client
	processor *desk.Processor
	store     state.Store
	settings  config.Settings
	notifier  notify.Notifier
	audit     *audit.Logger
	metrics   *audit.Collector
	sleep     func(time.Duration)
}

// NewService wires the ingestion pipeline.
func NewService(m mail.Client, p *desk.Processor, st state.Store, settings config.Settings, n notify.Notifier, al *audit.Logger, mc *audit.Collector) *Service {
	if n == nil {
		n = notify.Noop{}
	}
	return &Service{
		mail:      m,
		processor: p,
		store:     st,
		settings:  settings,
		notifier:  n,
		audit:     al,
		metrics:   mc,
		sleep:     time.Sleep,
	}
}

// HandleNotification processes a mailbox push notification. The history ID
// dedupes the notification itself; each new message then dedupes
// independently, so a crash between the two never loses messages.
func (s *Service) HandleNotification(ctx context.Context, emailAddr, historyID string) error {
	ctx, span := tracer.Start(ctx, "ingest.notification",
		trace.WithAttributes(attribute.String("history.id", historyID)))
	defer span.End()

	first, err := s.store.MarkProcessed(ctx, state.KindHistory, historyID)
	if err != nil {
		return fmt.Errorf("checking history %s: %w", historyID, err)
	}
	if !first {
		audit.DuplicatesAdd(ctx, 1)
		log.Debug().Str("history_id", historyID).Msg("duplicate_notification_skipped")
		return nil
	}

	start, err := s.store.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("reading cursor: %w", err)
	}
	if start == "" {
		start = historyID
	}

	ids, err := s.mail.ListHistory(ctx, start)
	if err != nil {
		return fmt.Errorf("listing history since %s: %w", start, err)
	}

	log.Info().
		Str("email", emailAddr).
		Str("history_id", historyID).
		Int("messages", len(ids)).
		Msg("notification_received")

	// One bad message never takes the rest of the batch down with it.
	for _, id := range ids {
		if _, err := s.ProcessMessage(ctx, id); err != nil {
			log.Error().Err(err).Str("message_id", id).Msg("message_processing_failed")
		}
	}

	if err := s.store.SetCursor(ctx, historyID); err != nil {
		return fmt.Errorf("advancing cursor to %s: %w", historyID, err)
	}
	return nil
}

// ProcessMessage runs one message through the desk. Every path yields an
// Outcome carrying the message ID; a non-nil error accompanies outcomes for
// retrievability failures, which stay unmarked so a later cycle can retry.
func (s *Service) ProcessMessage(ctx context.Context, id string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ingest.message",
		trace.WithAttributes(attribute.String("message.id", id)))
	defer span.End()

	out := Outcome{MessageID: id}

	seen, err := s.store.IsProcessed(ctx, state.KindMessage, id)
	if err != nil {
		return out, fmt.Errorf("checking message %s: %w", id, err)
	}
	if seen {
		out.Duplicate = true
		audit.DuplicatesAdd(ctx, 1)
		log.Debug().Str("message_id", id).Msg("duplicate_message_skipped")
		return out, nil
	}

	msg, err := s.mail.FetchMessage(ctx, id)
	if err != nil {
		out.Decision = s.errorDecision()
		s.metrics.RecordError()
		audit.ErrorsAdd(ctx, 1)
		if errors.Is(err, mail.ErrNotFound) {
			// Gone for good. Mark it so the ID stops resurfacing.
			if _, markErr := s.store.MarkProcessed(ctx, state.KindMessage, id); markErr != nil {
				log.Error().Err(markErr).Str("message_id", id).Msg("mark_processed_failed")
			}
			s.audit.Escalation(id, ReasonProcessingError)
			return out, nil
		}
		return out, fmt.Errorf("fetching message %s: %w", id, err)
	}

	started := time.Now()
	decision := s.processor.Process(ctx, desk.Message{
		From:     msg.From,
		Subject:  msg.Subject,
		Body:     msg.Body,
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
	})
	out.Decision = decision

	sender := desk.SenderAddress(msg.From)
	s.audit.Request(sender, decision.Detected, decision.Approved, decision.Denied)
	s.metrics.RecordRequest(len(decision.Approved) > 0, decision.RequiresHumanReview,
		decision.Approved, time.Since(started))
	audit.RequestsAdd(ctx, 1)

	// Mark before sending: a crash mid-send means at most one lost reply,
	// never a double send after redelivery.
	first, err := s.store.MarkProcessed(ctx, state.KindMessage, id)
	if err != nil {
		return out, fmt.Errorf("marking message %s: %w", id, err)
	}
	if !first {
		out.Duplicate = true
		audit.DuplicatesAdd(ctx, 1)
		return out, nil
	}

	if decision.RequiresHumanReview {
		audit.EscalationsAdd(ctx, 1)
		s.audit.Escalation(sender, decision.RoutingReason)
		if err := s.notifier.NotifyEscalation(ctx, sender, decision.RoutingReason); err != nil {
			log.Warn().Err(err).Str("from", sender).Msg("escalation_notification_failed")
		}
		return out, nil
	}

	if len(decision.Approved) > 0 && s.settings.AutoSendWhenApproved {
		if err := s.sendReply(ctx, msg, decision); err != nil {
			log.Error().Err(err).Str("message_id", id).Msg("reply_send_failed")
			s.metrics.RecordError()
			audit.ErrorsAdd(ctx, 1)
			return out, nil
		}
		out.Sent = !s.settings.DryRun
	}
	return out, nil
}

// ProcessManual runs a synthetic message through the desk, for the manual
// API endpoint and the simulate command. No message ID means no dedupe; the
// decision is computed, audited, and optionally auto-sent like any other.
func (s *Service) ProcessManual(ctx context.Context, from, subject, body string) Outcome {
	ctx, span := tracer.Start(ctx, "ingest.manual")
	defer span.End()

	started := time.Now()
	msg := &mail.Message{From: from, Subject: subject, Body: body}
	decision := s.processor.Process(ctx, desk.Message{From: from, Subject: subject, Body: body})
	out := Outcome{Decision: decision}

	sender := desk.SenderAddress(from)
	s.audit.Request(sender, decision.Detected, decision.Approved, decision.Denied)
	s.metrics.RecordRequest(len(decision.Approved) > 0, decision.RequiresHumanReview,
		decision.Approved, time.Since(started))
	audit.RequestsAdd(ctx, 1)

	if decision.RequiresHumanReview {
		audit.EscalationsAdd(ctx, 1)
		s.audit.Escalation(sender, decision.RoutingReason)
		if err := s.notifier.NotifyEscalation(ctx, sender, decision.RoutingReason); err != nil {
			log.Warn().Err(err).Str("from", sender).Msg("escalation_notification_failed")
		}
		return out
	}

	if len(decision.Approved) > 0 && s.settings.AutoSendWhenApproved {
		if err := s.sendReply(ctx, msg, decision); err != nil {
			log.Error().Err(err).Str("from", sender).Msg("reply_send_failed")
			s.metrics.RecordError()
			audit.ErrorsAdd(ctx, 1)
			return out
		}
		out.Sent = !s.settings.DryRun
	}
	return out
}

// RunCycle is one pass of the polling monitor: search each configured
// query, collect unseen message IDs up to the per-cycle cap, and process
// them. Returns how many messages were processed.
func (s *Service) RunCycle(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest.cycle")
	defer span.End()

	maxPerCycle := s.settings.Monitoring.MaxPerCycle
	var ids []string
	seen := make(map[string]struct{})

collect:
	for _, query := range s.settings.Monitoring.SearchQueries {
		found, err := s.mail.SearchMessages(ctx, query, maxPerCycle)
		if err != nil {
			log.Error().Err(err).Str("query", query).Msg("mail_search_failed")
			continue
		}
		for _, id := range found {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			processed, err := s.store.IsProcessed(ctx, state.KindMessage, id)
			if err != nil {
				return 0, fmt.Errorf("checking message %s: %w", id, err)
			}
			if processed {
				continue
			}
			ids = append(ids, id)
			if len(ids) >= maxPerCycle {
				break collect
			}
		}
	}

	for _, id := range ids {
		if _, err := s.ProcessMessage(ctx, id); err != nil {
			log.Error().Err(err).Str("message_id", id).Msg("message_processing_failed")
		}
	}

	if len(ids) > 0 {
		log.Info().Int("processed", len(ids)).Msg("monitor_cycle_complete")
	}
	return len(ids), nil
}

// sendReply delivers the decision's response text, with secure links for
// the approved documents appended. Dry-run logs instead of sending.
// Transient transport failures are retried with exponential backoff.
func (s *Service) sendReply(ctx context.Context, msg *mail.Message, decision desk.Decision) error {
	sender := desk.SenderAddress(msg.From)

	body := decision.ResponseText
	if decision.LinkExpiration != nil {
		links := securelink.ForArtifacts(decision.Approved, sender, *decision.LinkExpiration)
		var b strings.Builder
		b.WriteString(body)
		b.WriteString("\nSecure links:\n")
		for _, id := range decision.Approved {
			fmt.Fprintf(&b, "- %s: %s\n", id, links[id])
		}
		body = b.String()
	}

	if s.settings.DryRun {
		log.Info().
			Str("to", sender).
			Strs("artifacts", decision.Approved).
			Msg("dry_run_send_suppressed")
		return nil
	}

	out := mail.Outgoing{
		To:        msg.From,
		Subject:   replySubject,
		Body:      body,
		ThreadID:  msg.ThreadID,
		InReplyTo: msg.ID,
	}

	var lastErr error
	delay := sendInitialDelay
	for attempt := 1; attempt <= sendMaxRetries; attempt++ {
		lastErr = s.mail.SendMessage(ctx, out)
		if lastErr == nil {
			s.audit.DocumentSent(sender, decision.Approved, decision.ShareMethod, decision.LinkExpiration)
			audit.SendsAdd(ctx, 1)
			return nil
		}
		if attempt < sendMaxRetries {
			log.Warn().Err(lastErr).Int("attempt", attempt).Msg("send_retrying")
			s.sleep(delay)
			delay *= sendBackoffFactor
		}
	}
	return fmt.Errorf("sending reply after %d attempts: %w", sendMaxRetries, lastErr)
}

// errorDecision is the escalated outcome for an unreadable message.
func (s *Service) errorDecision() desk.Decision {
	return desk.Decision{
		Detected:            []string{},
		Approved:            []string{},
		Denied:              []string{},
		ShareMethod:         desk.ShareMethodNone,
		RequiresHumanReview: true,
		RoutingReason:       ReasonProcessingError,
	}
}
