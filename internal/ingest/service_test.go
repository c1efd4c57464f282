package ingest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalops/sales-desk/internal/audit"
	"github.com/evalops/sales-desk/internal/catalog"
	"github.com/evalops/sales-desk/internal/config"
	"github.com/evalops/sales-desk/internal/desk"
	"github.com/evalops/sales-desk/internal/mail"
	"github.com/evalops/sales-desk/internal/nda"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
	"github.com/evalops/sales-desk/internal/state"
)

type fakeMail struct {
	messages  map[string]*mail.Message
	history   []string
	search    map[string][]string
	sent      []mail.Outgoing
	fetchErr  error
	sendFails int
}

func (f *fakeMail) SearchMessages(ctx context.Context, query string, max int) ([]string, error) {
	return f.search[query], nil
}

func (f *fakeMail) ListHistory(ctx context.Context, startHistoryID string) ([]string, error) {
	return f.history, nil
}

func (f *fakeMail) FetchMessage(ctx context.Context, id string) (*mail.Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, mail.ErrNotFound
	}
	return msg, nil
}

func (f *fakeMail) SendMessage(ctx context.Context, out mail.Outgoing) error {
	if f.sendFails > 0 {
		f.sendFails--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, out)
	return nil
}

type fakeNotifier struct {
	escalations []string
}

func (f *fakeNotifier) NotifyEscalation(ctx context.Context, from, reason string) error {
	f.escalations = append(f.escalations, from+": "+reason)
	return nil
}

func newTestService(t *testing.T, fm *fakeMail, settings config.Settings) (*Service, *fakeNotifier, *bytes.Buffer) {
	t.Helper()

	c := catalog.Default()
	eng := policy.NewEngine(c, policy.DefaultEscalation())
	comp := respond.NewComposer(c, respond.Templates{}, 7, respond.DefaultSignature)
	proc := desk.NewProcessor(c, nda.Default(), eng, comp, 7)

	if settings.Monitoring.MaxPerCycle == 0 {
		settings.Monitoring.MaxPerCycle = 10
	}

	var auditBuf bytes.Buffer
	fn := &fakeNotifier{}
	svc := NewService(fm, proc, state.NewMemoryStore(), settings, fn,
		audit.NewLoggerTo(&auditBuf), audit.NewCollector())
	svc.sleep = func(time.Duration) {}
	return svc, fn, &auditBuf
}

func TestProcessMessageApprovedAutoSend(t *testing.T) {
	fm := &fakeMail{messages: map[string]*mail.Message{
		"m1": {ID: "m1", ThreadID: "t1", From: "Alice <alice@enterprise.com>",
			Subject: "docs", Body: "please send your security whitepaper"},
	}}

	svc, fn, _ := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.True(t, out.Sent)
	assert.Equal(t, []string{"security_whitepaper"}, out.Decision.Approved)
	assert.Empty(t, fn.escalations)

	require.Len(t, fm.sent, 1)
	sent := fm.sent[0]
	assert.Equal(t, "Alice <alice@enterprise.com>", sent.To)
	assert.Equal(t, "Re: Security Documentation Request", sent.Subject)
	assert.Equal(t, "t1", sent.ThreadID)
	assert.Equal(t, "m1", sent.InReplyTo)
	assert.Contains(t, sent.Body, "Secure links:")
	assert.Contains(t, sent.Body, "https://secure.yourcompany.com/docs/")

	// Second delivery of the same ID is a duplicate, nothing else sent.
	out, err = svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, fm.sent, 1)
}

func TestProcessMessageDryRunSuppressesSend(t *testing.T) {
	fm := &fakeMail{messages: map[string]*mail.Message{
		"m1": {ID: "m1", From: "alice@enterprise.com", Body: "privacy policy please"},
	}}
	svc, _, _ := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true, DryRun: true})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, out.Sent)
	assert.Empty(t, fm.sent)
	assert.NotEmpty(t, out.Decision.Approved)
}

func TestProcessMessageNoAutoSend(t *testing.T) {
	fm := &fakeMail{messages: map[string]*mail.Message{
		"m1": {ID: "m1", From: "alice@enterprise.com", Body: "privacy policy please"},
	}}
	svc, _, _ := newTestService(t, fm, config.Settings{})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, out.Sent)
	assert.Empty(t, fm.sent)
}

func TestProcessMessageEscalationNotifies(t *testing.T) {
	fm := &fakeMail{messages: map[string]*mail.Message{
		"m1": {ID: "m1", From: "buyer@example.com",
			Body: "our legal team needs your soc2 report"},
	}}
	svc, fn, auditBuf := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, out.Decision.RequiresHumanReview)
	assert.Empty(t, fm.sent)
	require.Len(t, fn.escalations, 1)
	assert.Contains(t, fn.escalations[0], "buyer@example.com")
	assert.Contains(t, auditBuf.String(), "escalation")
}

func TestProcessMessageNotFoundEscalatesAndMarks(t *testing.T) {
	fm := &fakeMail{messages: map[string]*mail.Message{}}
	svc, _, auditBuf := newTestService(t, fm, config.Settings{})

	out, err := svc.ProcessMessage(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, out.Decision.RequiresHumanReview)
	assert.Equal(t, ReasonProcessingError, out.Decision.RoutingReason)
	assert.Contains(t, auditBuf.String(), ReasonProcessingError)

	// Terminal: the ID no longer resurfaces.
	out, err = svc.ProcessMessage(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
}

func TestProcessMessageTransientFetchErrorRetriesLater(t *testing.T) {
	fm := &fakeMail{fetchErr: errors.New("rate limited")}
	svc, _, _ := newTestService(t, fm, config.Settings{})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.Error(t, err)
	assert.True(t, out.Decision.RequiresHumanReview)

	// Not marked, so a later cycle can try again once the mailbox recovers.
	fm.fetchErr = nil
	fm.messages = map[string]*mail.Message{
		"m1": {ID: "m1", From: "alice@enterprise.com", Body: "privacy policy please"},
	}
	out, err = svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.NotEmpty(t, out.Decision.Approved)
}

func TestSendReplyRetriesWithBackoff(t *testing.T) {
	fm := &fakeMail{
		messages: map[string]*mail.Message{
			"m1": {ID: "m1", From: "alice@enterprise.com", Body: "privacy policy please"},
		},
		sendFails: 2,
	}
	svc, _, auditBuf := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true})

	var slept []time.Duration
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }

	out, err := svc.ProcessMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, out.Sent)
	require.Len(t, fm.sent, 1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	assert.Contains(t, auditBuf.String(), "document_sent")
}

func TestSendReplyGivesUpAfterRetries(t *testing.T) {
	fm := &fakeMail{
		messages: map[string]*mail.Message{
			"m1": {ID: "m1", From: "alice@enterprise.com", Body: "privacy policy please"},
		},
		sendFails: 5,
	}
	svc, _, _ := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true})

	out, err := svc.ProcessMessage(context.Background(), "m1")
	// Send failure is not a processing failure; the decision stands.
	require.NoError(t, err)
	assert.False(t, out.Sent)
	assert.Empty(t, fm.sent)
}

func TestProcessManual(t *testing.T) {
	fm := &fakeMail{}
	svc, fn, auditBuf := newTestService(t, fm, config.Settings{AutoSendWhenApproved: true})

	out := svc.ProcessManual(context.Background(), "alice@enterprise.com", "docs",
		"please share privacy policy and dpa")
	assert.True(t, out.Sent)
	assert.Equal(t, []string{"privacy_policy", "dpa"}, out.Decision.Approved)
	require.Len(t, fm.sent, 1)
	assert.Contains(t, auditBuf.String(), "document_request")

	out = svc.ProcessManual(context.Background(), "someone@example.com", "hi", "what's up")
	assert.True(t, out.Decision.RequiresHumanReview)
	assert.Len(t, fn.escalations, 1)
	assert.Len(t, fm.sent, 1)
}

func TestHandleNotificationDedupesAndAdvancesCursor(t *testing.T) {
	fm := &fakeMail{
		history: []string{"m1", "m2"},
		messages: map[string]*mail.Message{
			"m1": {ID: "m1", From: "a@enterprise.com", Body: "privacy policy please"},
			"m2": {ID: "m2", From: "b@example.com", Body: "what do you sell"},
		},
	}
	svc, _, _ := newTestService(t, fm, config.Settings{})
	ctx := context.Background()

	require.NoError(t, svc.HandleNotification(ctx, "desk@example.com", "h100"))

	cur, err := svc.store.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h100", cur)

	seen, err := svc.store.IsProcessed(ctx, state.KindMessage, "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Redelivered notification is a no-op.
	fm.history = []string{"m3"}
	require.NoError(t, svc.HandleNotification(ctx, "desk@example.com", "h100"))
	seen, err = svc.store.IsProcessed(ctx, state.KindMessage, "m3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHandleNotificationBadMessageDoesNotAbortBatch(t *testing.T) {
	fm := &fakeMail{
		history: []string{"ghost", "m2"},
		messages: map[string]*mail.Message{
			"m2": {ID: "m2", From: "a@enterprise.com", Body: "privacy policy please"},
		},
	}
	svc, _, _ := newTestService(t, fm, config.Settings{})
	ctx := context.Background()

	require.NoError(t, svc.HandleNotification(ctx, "desk@example.com", "h200"))

	seen, err := svc.store.IsProcessed(ctx, state.KindMessage, "m2")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunCycleRespectsCapAndSkipsProcessed(t *testing.T) {
	fm := &fakeMail{
		search: map[string][]string{
			"q1": {"m1", "m2", "m1"},
			"q2": {"m2", "m3", "m4"},
		},
		messages: map[string]*mail.Message{
			"m1": {ID: "m1", From: "a@example.com", Body: "soc2 please"},
			"m2": {ID: "m2", From: "b@example.com", Body: "iso 27001 please"},
			"m3": {ID: "m3", From: "c@example.com", Body: "dpa please"},
			"m4": {ID: "m4", From: "d@example.com", Body: "insurance certificate please"},
		},
	}
	settings := config.Settings{Monitoring: config.Monitoring{
		SearchQueries: []string{"q1", "q2"},
		MaxPerCycle:   3,
	}}
	svc, _, _ := newTestService(t, fm, settings)
	ctx := context.Background()

	// m2 already handled in a previous cycle.
	_, err := svc.store.MarkProcessed(ctx, state.KindMessage, "m2")
	require.NoError(t, err)

	n, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n) // m1, m3, m4

	for _, id := range []string{"m1", "m3", "m4"} {
		seen, err := svc.store.IsProcessed(ctx, state.KindMessage, id)
		require.NoError(t, err)
		assert.True(t, seen, id)
	}
}
