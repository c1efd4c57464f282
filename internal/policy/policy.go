// Package policy applies the document-sharing policy: partitioning detected
// artifacts into approved/denied given NDA status, and deciding when a
// request must escalate to a human.
package policy

import (
	"strings"

	"github.com/evalops/sales-desk/internal/catalog"
)

// Routing reasons, in fixed precedence order. Only the first applicable
// reason is reported, even when several conditions hold.
const (
	ReasonUnclearRequest  = "Unable to detect specific document request"
	ReasonDeniedThreshold = "Multiple sensitive documents requested without NDA"
	ReasonReviewKeyword   = "Human review keyword detected"
)

// Escalation holds the thresholds that route a request to a human.
type Escalation struct {
	// MaxSensitiveWithoutNDA is the number of denied artifacts tolerated
	// before escalating. Strictly more than this escalates.
	MaxSensitiveWithoutNDA int
	// HumanReviewKeywords escalate on case-insensitive substring match
	// against the request body.
	HumanReviewKeywords []string
}

// DefaultEscalation returns the built-in escalation thresholds.
func DefaultEscalation() Escalation {
	return Escalation{
		MaxSensitiveWithoutNDA: 2,
		HumanReviewKeywords:    []string{"legal", "contract"},
	}
}

// Engine evaluates sharing policy against an immutable catalog snapshot.
// It is stateless and safe for concurrent use.
type Engine struct {
	catalog    *catalog.Catalog
	escalation Escalation
}

// NewEngine creates a policy engine over the given catalog and thresholds.
func NewEngine(c *catalog.Catalog, esc Escalation) *Engine {
	return &Engine{catalog: c, escalation: esc}
}

// Apply partitions the detected artifact IDs into approved and denied lists,
// preserving input order. An artifact requiring an NDA is denied when the
// requester has none; everything else is approved. IDs not present in the
// catalog are skipped.
func (e *Engine) Apply(detected []string, hasNDA bool) (approved, denied []string) {
	for _, id := range detected {
		a, ok := e.catalog.Get(id)
		if !ok {
			continue
		}
		if a.RequiresNDA && !hasNDA {
			denied = append(denied, id)
		} else {
			approved = append(approved, id)
		}
	}
	return approved, denied
}

// RequiresNDA reports whether any detected artifact requires an NDA. This is
// a request-shape signal, independent of the approval outcome.
func (e *Engine) RequiresNDA(detected []string) bool {
	for _, id := range detected {
		if a, ok := e.catalog.Get(id); ok && a.RequiresNDA {
			return true
		}
	}
	return false
}

// Review decides whether the request needs human review and, if so, why.
// Three independent conditions are OR-ed for the flag; the reported reason
// is the first that holds, in this exact order: empty detection, denied
// count over threshold, review keyword in the body.
func (e *Engine) Review(detected, denied []string, body string) (bool, string) {
	if len(detected) == 0 {
		return true, ReasonUnclearRequest
	}
	if len(denied) > e.escalation.MaxSensitiveWithoutNDA {
		return true, ReasonDeniedThreshold
	}
	lower := strings.ToLower(body)
	for _, kw := range e.escalation.HumanReviewKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true, ReasonReviewKeyword
		}
	}
	return false, ""
}
