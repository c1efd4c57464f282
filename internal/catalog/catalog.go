// Package catalog holds the shareable-artifact catalog and the keyword
// detector that maps free-text request bodies to artifact IDs.
package catalog

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sensitivity tiers for catalog artifacts.
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// Artifact describes one security/compliance document the desk can offer.
type Artifact struct {
	ID          string   `yaml:"-" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Sensitivity string   `yaml:"sensitivity" json:"sensitivity"`
	RequiresNDA bool     `yaml:"requires_nda" json:"requires_nda"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

// Catalog is an ordered, immutable set of artifacts. Order is the definition
// order (config file order, or the built-in order for the default catalog)
// and determines the order of detection results.
type Catalog struct {
	artifacts []Artifact
	byID      map[string]int
}

// New builds a catalog from artifacts in the given order. A later artifact
// with an ID already present replaces the earlier one in place, matching the
// merge semantics of layered configuration. Keywords are lowercased.
func New(artifacts []Artifact) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(artifacts))}
	for _, a := range artifacts {
		kws := make([]string, len(a.Keywords))
		for i, k := range a.Keywords {
			kws[i] = strings.ToLower(k)
		}
		a.Keywords = kws
		if idx, ok := c.byID[a.ID]; ok {
			c.artifacts[idx] = a
			continue
		}
		c.byID[a.ID] = len(c.artifacts)
		c.artifacts = append(c.artifacts, a)
	}
	return c
}

// Get returns the artifact with the given ID.
func (c *Catalog) Get(id string) (Artifact, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Artifact{}, false
	}
	return c.artifacts[idx], true
}

// Artifacts returns the artifacts in definition order. Callers must not
// mutate the returned slice.
func (c *Catalog) Artifacts() []Artifact {
	return c.artifacts
}

// Len returns the number of artifacts.
func (c *Catalog) Len() int {
	return len(c.artifacts)
}

// Names returns the display names in definition order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.artifacts))
	for i, a := range c.artifacts {
		names[i] = a.Name
	}
	return names
}

// Detect returns the IDs of all artifacts whose keywords appear in body,
// in catalog order. Matching is lowercase substring containment: no word
// boundaries, no stemming. "27001" matching inside "iso27001" is intended.
func (c *Catalog) Detect(body string) []string {
	lower := strings.ToLower(body)
	var detected []string
	for _, a := range c.artifacts {
		for _, kw := range a.Keywords {
			if kw != "" && strings.Contains(lower, kw) {
				detected = append(detected, a.ID)
				break
			}
		}
	}
	return detected
}

// UnmarshalYAML decodes an `artifacts:` mapping while preserving document
// order, which a plain map[string]Artifact would lose.
func (c *Catalog) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("artifacts must be a mapping of id to artifact")
	}
	var artifacts []Artifact
	for i := 0; i+1 < len(node.Content); i += 2 {
		var a Artifact
		if err := node.Content[i+1].Decode(&a); err != nil {
			return fmt.Errorf("decoding artifact %q: %w", node.Content[i].Value, err)
		}
		a.ID = node.Content[i].Value
		artifacts = append(artifacts, a)
	}
	*c = *New(artifacts)
	return nil
}

// Default returns the built-in catalog used when no configuration is present.
func Default() *Catalog {
	return New([]Artifact{
		{
			ID:          "soc2",
			Name:        "SOC 2 Type II Report",
			Sensitivity: SensitivityHigh,
			RequiresNDA: true,
			Description: "Annual SOC 2 Type II audit report",
			Keywords:    []string{"soc 2", "soc2", "soc-2", "soc ii", "type 2", "type ii", "audit report"},
		},
		{
			ID:          "iso27001",
			Name:        "ISO 27001 Certificate",
			Sensitivity: SensitivityMedium,
			Description: "ISO 27001 certification",
			Keywords:    []string{"iso 27001", "iso27001", "iso certification", "27001"},
		},
		{
			ID:          "security_whitepaper",
			Name:        "Security Architecture Whitepaper",
			Sensitivity: SensitivityMedium,
			Description: "Technical security architecture overview",
			Keywords:    []string{"security whitepaper", "security overview", "architecture document", "security architecture"},
		},
		{
			ID:          "pentest",
			Name:        "Penetration Test Report",
			Sensitivity: SensitivityHigh,
			RequiresNDA: true,
			Description: "Latest penetration testing results",
			Keywords:    []string{"penetration test", "pen test", "pentest", "vulnerability assessment", "security test"},
		},
		{
			ID:          "vendor_questionnaire",
			Name:        "Security Questionnaire Template",
			Sensitivity: SensitivityLow,
			Description: "Standard vendor security questionnaire",
			Keywords:    []string{"questionnaire", "security questionnaire", "vendor form", "security assessment"},
		},
		{
			ID:          "privacy_policy",
			Name:        "Privacy Policy",
			Sensitivity: SensitivityLow,
			Description: "Current privacy policy",
			Keywords:    []string{"privacy policy", "data privacy", "privacy notice"},
		},
		{
			ID:          "dpa",
			Name:        "Data Processing Agreement",
			Sensitivity: SensitivityMedium,
			Description: "Standard DPA template",
			Keywords:    []string{"dpa", "data processing", "processing agreement", "gdpr agreement"},
		},
		{
			ID:          "insurance",
			Name:        "Insurance Certificate",
			Sensitivity: SensitivityMedium,
			Description: "Cyber liability insurance certificate",
			Keywords:    []string{"insurance", "cyber insurance", "liability insurance", "insurance certificate"},
		},
	})
}
