// Package respond renders the reply email for a processed document request.
package respond

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/evalops/sales-desk/internal/catalog"
)

// DefaultSignature closes every reply unless configured otherwise.
const DefaultSignature = "Sales Desk Team"

// Templates are the configurable reply templates, one per branch. An empty
// or unparsable template falls back to the built-in wording.
type Templates struct {
	UnclearRequest   string `yaml:"unclear_request"`
	NDARequired      string `yaml:"nda_required"`
	ApprovedResponse string `yaml:"approved_response"`
}

// Vars is the fixed variable set available to reply templates. Referencing
// anything else is a parse-time error, which falls back to the default
// template rather than producing a broken reply.
type Vars struct {
	SenderName     string
	ApprovedList   string
	DeniedList     string
	ExpirationDays int
	Signature      string
	AvailableDocs  string
}

const defaultUnclearTemplate = `Hi {{.SenderName}},

Thank you for reaching out. I couldn't identify specific security documents in your request.

Could you please clarify which of the following you need:
{{.AvailableDocs}}

Best regards,
{{.Signature}}`

const defaultApprovedTemplate = `Hi {{.SenderName}},

Thank you for your security documentation request.

I'm preparing the following documents for you:
{{.ApprovedList}}

You'll receive a secure link within the next few minutes that will be valid for {{.ExpirationDays}} days.

Best regards,
{{.Signature}}`

const defaultNDARequiredTemplate = `Hi {{.SenderName}},

Thank you for your security documentation request.

{{if .ApprovedList}}I'm preparing the following documents for you:
{{.ApprovedList}}

You'll receive a secure link within the next few minutes that will be valid for {{.ExpirationDays}} days.

{{end}}The following documents require an executed NDA before sharing:
{{.DeniedList}}

Please have your legal team complete our mutual NDA, and I'll send these immediately after execution.

Best regards,
{{.Signature}}`

// Composer renders replies from an immutable catalog and template snapshot.
// Safe for concurrent use.
type Composer struct {
	catalog   *catalog.Catalog
	unclear   *template.Template
	approved  *template.Template
	denied    *template.Template
	days      int
	signature string
}

// NewComposer builds a composer. Custom templates that fail to parse degrade
// to the built-in ones with a warning; they never fail construction.
func NewComposer(c *catalog.Catalog, tpls Templates, expirationDays int, signature string) *Composer {
	if expirationDays <= 0 {
		expirationDays = 7
	}
	if signature == "" {
		signature = DefaultSignature
	}
	return &Composer{
		catalog:   c,
		unclear:   parseOrDefault("unclear_request", tpls.UnclearRequest, defaultUnclearTemplate),
		approved:  parseOrDefault("approved_response", tpls.ApprovedResponse, defaultApprovedTemplate),
		denied:    parseOrDefault("nda_required", tpls.NDARequired, defaultNDARequiredTemplate),
		days:      expirationDays,
		signature: signature,
	}
}

func parseOrDefault(name, custom, fallback string) *template.Template {
	if custom != "" {
		t, err := template.New(name).Parse(custom)
		if err == nil {
			return t
		}
		log.Warn().Err(err).Str("template", name).Msg("template_parse_failed_using_default")
	}
	return template.Must(template.New(name).Parse(fallback))
}

// SenderDisplayName extracts a display name from a raw sender string. For
// "Jane Doe <jane@x.com>" it returns "Jane Doe"; for a bare address it
// returns the generic "there".
func SenderDisplayName(raw string) string {
	if i := strings.Index(raw, "<"); i >= 0 {
		if name := strings.TrimSpace(raw[:i]); name != "" {
			return name
		}
	}
	return "there"
}

// Compose renders the reply text for the request outcome. Branch selection:
// both lists empty renders the clarification reply; any denial renders the
// NDA-required reply (with the approved section when present); otherwise the
// approved-only reply.
func (c *Composer) Compose(senderName string, approved, denied []string, hasNDA bool) string {
	_ = hasNDA // part of the composer contract; current templates do not branch on it

	vars := Vars{
		SenderName:     senderName,
		ApprovedList:   c.bulletNames(approved),
		DeniedList:     c.bulletNames(denied),
		ExpirationDays: c.days,
		Signature:      c.signature,
		AvailableDocs:  c.availableDocs(),
	}

	switch {
	case len(approved) == 0 && len(denied) == 0:
		return c.render(c.unclear, defaultUnclearTemplate, vars)
	case len(denied) > 0:
		return c.render(c.denied, defaultNDARequiredTemplate, vars)
	default:
		return c.render(c.approved, defaultApprovedTemplate, vars)
	}
}

func (c *Composer) render(t *template.Template, fallback string, vars Vars) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		log.Warn().Err(err).Str("template", t.Name()).Msg("template_render_failed_using_default")
		buf.Reset()
		if err := template.Must(template.New(t.Name()).Parse(fallback)).Execute(&buf, vars); err != nil {
			// Default templates reference only Vars fields; execution cannot fail.
			return fmt.Sprintf("Hi %s,\n\nThank you for your request.\n\nBest regards,\n%s", vars.SenderName, vars.Signature)
		}
	}
	return buf.String()
}

// bulletNames renders "• Name" lines for the given artifact IDs, in order.
func (c *Composer) bulletNames(ids []string) string {
	var lines []string
	for _, id := range ids {
		if a, ok := c.catalog.Get(id); ok {
			lines = append(lines, "• "+a.Name)
		}
	}
	return strings.Join(lines, "\n")
}

// availableDocs renders "- Name" lines for every catalog artifact.
func (c *Composer) availableDocs() string {
	var lines []string
	for _, name := range c.catalog.Names() {
		lines = append(lines, "- "+name)
	}
	return strings.Join(lines, "\n")
}
