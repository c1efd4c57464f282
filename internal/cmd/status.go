package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evalops/sales-desk/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured catalog, NDA registry, and settings",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, span := tracer.Start(cmd.Context(), "status")
	defer span.End()

	cfg := config.Load()
	deskCfg := config.LoadDesk(cfg.DeskConfig)
	s := deskCfg.Settings

	fmt.Printf("Desk config: %s (%s)\n\n", cfg.DeskConfig, deskCfg.Summary())

	fmt.Println("Artifacts:")
	for _, a := range deskCfg.Catalog().Artifacts() {
		nda := ""
		if a.RequiresNDA {
			nda = " [NDA]"
		}
		fmt.Printf("  %-22s %-34s %s%s\n", a.ID, a.Name, a.Sensitivity, nda)
	}

	fmt.Println("\nNDA registry:")
	for _, e := range deskCfg.Registry().Entries() {
		fmt.Printf("  %s\n", e)
	}

	fmt.Println("\nSettings:")
	fmt.Printf("  link_expiration_days:    %d\n", s.LinkExpirationDays)
	fmt.Printf("  email_signature:         %s\n", s.EmailSignature)
	fmt.Printf("  auto_send_when_approved: %t\n", s.AutoSendWhenApproved)
	fmt.Printf("  dry_run:                 %t\n", s.DryRun)
	fmt.Printf("  escalation threshold:    %d\n", deskCfg.EscalationPolicy().MaxSensitiveWithoutNDA)
	fmt.Printf("  review keywords:         %v\n", deskCfg.EscalationPolicy().HumanReviewKeywords)
	fmt.Printf("  persistence backend:     %s\n", displayBackend(s.Persistence.Backend))

	return nil
}

func displayBackend(b string) string {
	if b == "" {
		return "memory"
	}
	return b
}
