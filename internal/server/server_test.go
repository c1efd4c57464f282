package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalops/sales-desk/internal/audit"
	"github.com/evalops/sales-desk/internal/catalog"
	"github.com/evalops/sales-desk/internal/config"
	"github.com/evalops/sales-desk/internal/desk"
	"github.com/evalops/sales-desk/internal/ingest"
	"github.com/evalops/sales-desk/internal/mail"
	"github.com/evalops/sales-desk/internal/nda"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
	"github.com/evalops/sales-desk/internal/state"
)

type listMail struct {
	mail.ConsoleClient
	history []string
	fetched map[string]*mail.Message
}

func (l *listMail) ListHistory(ctx context.Context, start string) ([]string, error) {
	return l.history, nil
}

func (l *listMail) FetchMessage(ctx context.Context, id string) (*mail.Message, error) {
	if m, ok := l.fetched[id]; ok {
		return m, nil
	}
	return nil, mail.ErrNotFound
}

func newTestServer(t *testing.T, m mail.Client, secret string) (*Server, state.Store) {
	t.Helper()

	c := catalog.Default()
	eng := policy.NewEngine(c, policy.DefaultEscalation())
	comp := respond.NewComposer(c, respond.Templates{}, 7, respond.DefaultSignature)
	proc := desk.NewProcessor(c, nda.Default(), eng, comp, 7)

	st := state.NewMemoryStore()
	collector := audit.NewCollector()
	svc := ingest.NewService(m, proc, st, config.Settings{
		Monitoring: config.Monitoring{MaxPerCycle: 10},
	}, nil, audit.NewLoggerTo(&bytes.Buffer{}), collector)

	return NewServer(svc, collector, secret, WithVersion("test")), st
}

func pushBody(t *testing.T, payload string) []byte {
	t.Helper()
	envelope := map[string]interface{}{
		"message": map[string]string{
			"data": base64.StdEncoding.EncodeToString([]byte(payload)),
		},
		"subscription": "projects/x/subscriptions/y",
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	body := pushBody(t, `{"emailAddress":"desk@example.com","historyId":"100"}`)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/gmail", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Secret", "wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Missing header entirely.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/webhook/gmail", bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookNoSecretConfiguredRejectsAll(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/gmail",
		bytes.NewReader(pushBody(t, `{"historyId":"100"}`)))
	req.Header.Set("X-Webhook-Secret", "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookMissingHistoryID(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/gmail",
		bytes.NewReader(pushBody(t, `{"emailAddress":"desk@example.com"}`)))
	req.Header.Set("X-Webhook-Secret", "testsecret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookAcceptsAndProcesses(t *testing.T) {
	lm := &listMail{
		history: []string{"m1"},
		fetched: map[string]*mail.Message{
			"m1": {ID: "m1", From: "a@enterprise.com", Body: "privacy policy please"},
		},
	}
	srv, st := newTestServer(t, lm, "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	// historyId arrives as a JSON number in real payloads.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/webhook/gmail",
		bytes.NewReader(pushBody(t, `{"emailAddress":"desk@example.com","historyId":12345}`)))
	req.Header.Set("X-Webhook-Secret", "testsecret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.NotEmpty(t, body["request_id"])

	// Background processing lands shortly after the ack.
	require.Eventually(t, func() bool {
		seen, err := st.IsProcessed(context.Background(), state.KindMessage, "m1")
		return err == nil && seen
	}, 2*time.Second, 10*time.Millisecond)

	cur, err := st.Cursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", cur)
}

func TestManualProcess(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	payload := `{"from_email":"buyer@example.com","subject":"request","body":"please send soc2 and security whitepaper"}`
	resp, err := http.Post(ts.URL+"/api/process", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision desk.Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	assert.Equal(t, []string{"soc2", "security_whitepaper"}, decision.Detected)
	assert.Equal(t, []string{"soc2"}, decision.Denied)
	assert.Equal(t, []string{"security_whitepaper"}, decision.Approved)
	assert.True(t, decision.RequiresNDA)
	assert.False(t, decision.NDAOnFile)
}

func TestManualProcessValidation(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	for _, payload := range []string{
		`{"subject":"x","body":"soc2"}`,
		`{"from_email":"a@b.c","subject":"x"}`,
		`not json`,
	} {
		resp, err := http.Post(ts.URL+"/api/process", "application/json", bytes.NewBufferString(payload))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, fmt.Sprintf("payload=%s", payload))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, mail.NewConsoleClient(), "testsecret")
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	payload := `{"from_email":"a@enterprise.com","subject":"r","body":"privacy policy please"}`
	resp, err := http.Post(ts.URL+"/api/process", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary audit.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, float64(100), summary.ApprovalRate)
}
