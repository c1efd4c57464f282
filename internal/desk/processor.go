// Package desk orchestrates request processing: detection, NDA lookup,
// policy partition, response composition, and escalation, producing one
// immutable Decision per inbound message.
package desk

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evalops/sales-desk/internal/catalog"
	"github.com/evalops/sales-desk/internal/nda"
	deskotel "github.com/evalops/sales-desk/internal/otel"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
)

var tracer = deskotel.Tracer("github.com/evalops/sales-desk/internal/desk")

// Share methods for approved artifacts.
const (
	ShareMethodSecureLink = "secure_link"
	ShareMethodNone       = "none"
)

// Message is a normalized inbound email. Transient: constructed per request,
// never persisted by the core.
type Message struct {
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	ID       string `json:"message_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Decision is the structured outcome for one request. Created fresh per
// call and immutable once returned; downstream consumers attach delivery
// metadata separately. Field names are fixed for interop.
type Decision struct {
	Detected            []string   `json:"detected"`
	RequiresNDA         bool       `json:"requires_nda"`
	NDAOnFile           bool       `json:"nda_on_file"`
	Approved            []string   `json:"approved"`
	Denied              []string   `json:"denied"`
	ShareMethod         string     `json:"share_method"`
	LinkExpiration      *time.Time `json:"link_expiration,omitempty"`
	ResponseText        string     `json:"response_text"`
	RequiresHumanReview bool       `json:"requires_human_review"`
	RoutingReason       string     `json:"routing_reason,omitempty"`
}

// Processor is the synchronous request pipeline. It holds only immutable
// snapshots (catalog, registry, engine, composer) and performs no I/O, so it
// is safe to call concurrently.
type Processor struct {
	catalog  *catalog.Catalog
	registry *nda.Registry
	engine   *policy.Engine
	composer *respond.Composer
	days     int
	now      func() time.Time
}

// Option configures the Processor.
type Option func(*Processor)

// WithClock overrides the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor wires the pipeline. expirationDays controls the share-link
// validity window (default 7 when non-positive).
func NewProcessor(c *catalog.Catalog, r *nda.Registry, e *policy.Engine, comp *respond.Composer, expirationDays int, opts ...Option) *Processor {
	if expirationDays <= 0 {
		expirationDays = 7
	}
	p := &Processor{
		catalog:  c,
		registry: r,
		engine:   e,
		composer: comp,
		days:     expirationDays,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline for one message. Total over its input
// domain: empty bodies, unknown senders, and malformed addresses all produce
// a well-defined Decision, never an error.
func (p *Processor) Process(ctx context.Context, msg Message) Decision {
	_, span := tracer.Start(ctx, "desk.process",
		trace.WithAttributes(attribute.String("message.id", msg.ID)))
	defer span.End()

	detected := p.catalog.Detect(msg.Body)
	hasNDA := p.registry.HasNDA(SenderAddress(msg.From))
	approved, denied := p.engine.Apply(detected, hasNDA)
	review, reason := p.engine.Review(detected, denied, msg.Body)

	d := Decision{
		Detected:            nonNil(detected),
		RequiresNDA:         p.engine.RequiresNDA(detected),
		NDAOnFile:           hasNDA,
		Approved:            nonNil(approved),
		Denied:              nonNil(denied),
		ShareMethod:         ShareMethodNone,
		ResponseText:        p.composer.Compose(respond.SenderDisplayName(msg.From), approved, denied, hasNDA),
		RequiresHumanReview: review,
		RoutingReason:       reason,
	}
	if len(approved) > 0 {
		d.ShareMethod = ShareMethodSecureLink
		exp := p.now().Add(time.Duration(p.days) * 24 * time.Hour)
		d.LinkExpiration = &exp
	}

	span.SetAttributes(
		attribute.Int("desk.detected", len(d.Detected)),
		attribute.Int("desk.approved", len(d.Approved)),
		attribute.Int("desk.denied", len(d.Denied)),
		attribute.Bool("desk.human_review", d.RequiresHumanReview),
	)
	return d
}

// SenderAddress extracts the bare address from "Display Name <addr>" forms
// so NDA lookup is not defeated by display names.
func SenderAddress(raw string) string {
	if i := strings.Index(raw, "<"); i >= 0 {
		if j := strings.Index(raw[i:], ">"); j > 0 {
			return strings.TrimSpace(raw[i+1 : i+j])
		}
	}
	return strings.TrimSpace(raw)
}

// nonNil keeps list fields as [] rather than null in JSON output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
