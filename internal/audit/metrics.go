package audit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/evalops/sales-desk/internal/audit")

var (
	requestsTotal       metric.Int64Counter
	escalationsTotal    metric.Int64Counter
	sendsTotal          metric.Int64Counter
	duplicatesTotal     metric.Int64Counter
	processingErrsTotal metric.Int64Counter
)

func init() {
	var err error
	requestsTotal, err = meter.Int64Counter("desk.requests.total",
		metric.WithDescription("Document requests processed"))
	if err != nil {
		requestsTotal, _ = meter.Int64Counter("desk.requests.total.fallback")
	}

	escalationsTotal, err = meter.Int64Counter("desk.escalations.total",
		metric.WithDescription("Requests routed to human review"))
	if err != nil {
		escalationsTotal, _ = meter.Int64Counter("desk.escalations.total.fallback")
	}

	sendsTotal, err = meter.Int64Counter("desk.sends.total",
		metric.WithDescription("Replies sent to requesters"))
	if err != nil {
		sendsTotal, _ = meter.Int64Counter("desk.sends.total.fallback")
	}

	duplicatesTotal, err = meter.Int64Counter("desk.duplicates.suppressed",
		metric.WithDescription("Events skipped by the idempotency ledger"))
	if err != nil {
		duplicatesTotal, _ = meter.Int64Counter("desk.duplicates.suppressed.fallback")
	}

	processingErrsTotal, err = meter.Int64Counter("desk.errors.total",
		metric.WithDescription("Message processing failures"))
	if err != nil {
		processingErrsTotal, _ = meter.Int64Counter("desk.errors.total.fallback")
	}
}

// RequestsAdd records processed document requests.
func RequestsAdd(ctx context.Context, n int64) { requestsTotal.Add(ctx, n) }

// EscalationsAdd records requests routed to human review.
func EscalationsAdd(ctx context.Context, n int64) { escalationsTotal.Add(ctx, n) }

// SendsAdd records replies sent.
func SendsAdd(ctx context.Context, n int64) { sendsTotal.Add(ctx, n) }

// DuplicatesAdd records events suppressed by the idempotency ledger.
func DuplicatesAdd(ctx context.Context, n int64) { duplicatesTotal.Add(ctx, n) }

// ErrorsAdd records processing failures.
func ErrorsAdd(ctx context.Context, n int64) { processingErrsTotal.Add(ctx, n) }
