package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalops/sales-desk/internal/config"
	"github.com/evalops/sales-desk/internal/desk"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run built-in sample requests through the desk and print the decisions",
	Long: `Runs a fixed set of sample document requests through the configured desk
without touching the mailbox or the state store. Decisions are printed to
stdout as JSON, one object per sample.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
}

type sample struct {
	Name    string `json:"name"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func sampleRequests() []sample {
	return []sample{
		{
			Name:    "SOC2 request without NDA",
			From:    "buyer@newcompany.com",
			Subject: "Security Documentation Request",
			Body:    "Hi, we need your SOC 2 report and security whitepaper for our vendor assessment.",
		},
		{
			Name:    "Multiple sensitive docs with NDA",
			From:    "acme@example.com",
			Subject: "Due Diligence Request",
			Body:    "Please send your latest SOC2 report, penetration test results, and ISO 27001 certificate.",
		},
		{
			Name:    "Unclear request",
			From:    "vague@company.com",
			Subject: "Security Info",
			Body:    "Can you send me information about your security?",
		},
		{
			Name:    "Legal keyword escalation",
			From:    "counsel@bigcorp.com",
			Subject: "Contract review",
			Body:    "Our legal team needs your SOC 2 report before signing the contract.",
		},
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "simulate")
	defer span.End()

	cfg := config.Load()
	deskCfg := config.LoadDesk(cfg.DeskConfig)

	c := deskCfg.Catalog()
	engine := policy.NewEngine(c, deskCfg.EscalationPolicy())
	composer := respond.NewComposer(c, deskCfg.Templates,
		deskCfg.Settings.LinkExpirationDays, deskCfg.Settings.EmailSignature)
	processor := desk.NewProcessor(c, deskCfg.Registry(), engine, composer,
		deskCfg.Settings.LinkExpirationDays)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, s := range sampleRequests() {
		decision := processor.Process(ctx, desk.Message{
			From:    s.From,
			Subject: s.Subject,
			Body:    s.Body,
		})
		if err := enc.Encode(struct {
			Sample   string        `json:"sample"`
			From     string        `json:"from"`
			Decision desk.Decision `json:"decision"`
		}{s.Name, s.From, decision}); err != nil {
			return fmt.Errorf("encoding decision: %w", err)
		}
	}
	return nil
}
