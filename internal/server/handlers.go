package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evalops/sales-desk/internal/requestctx"
)

// pushEnvelope is the Pub/Sub push wrapper around a mailbox notification.
type pushEnvelope struct {
	Message struct {
		Data string `json:"data"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pushNotification is the decoded notification payload.
type pushNotification struct {
	EmailAddress string          `json:"emailAddress"`
	HistoryID    json.RawMessage `json:"historyId"`
}

// manualRequest is the body of POST /api/process.
type manualRequest struct {
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Summarize())
}

// handleGmailWebhook accepts a mailbox push notification and dispatches
// processing in the background: push delivery retries on slow responses, so
// the handler acknowledges as soon as the payload is understood.
func (s *Server) handleGmailWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.checkWebhookSecret(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing webhook secret")
		return
	}

	var envelope pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if envelope.Message.Data == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "no message data")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "message data is not base64: "+err.Error())
		return
	}

	var notification pushNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid notification payload: "+err.Error())
		return
	}

	historyID := rawString(notification.HistoryID)
	if historyID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "historyId is required")
		return
	}

	reqID := requestctx.NewRequestID()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ctx = requestctx.SetRequestID(ctx, reqID)
		if err := s.ingest.HandleNotification(ctx, notification.EmailAddress, historyID); err != nil {
			log.Error().Err(err).Str("request_id", reqID).Msg("notification_processing_failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"request_id": reqID,
	})
}

// handleManualProcess runs one synthetic message through the desk and
// returns the decision synchronously.
func (s *Server) handleManualProcess(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.FromEmail == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "from_email and body are required")
		return
	}

	outcome := s.ingest.ProcessManual(r.Context(), req.FromEmail, req.Subject, req.Body)
	writeJSON(w, http.StatusOK, outcome.Decision)
}

// rawString accepts historyId as either a JSON string or a number, since
// the push payload has shipped both over time.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
