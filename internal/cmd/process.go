package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evalops/sales-desk/internal/mail"
)

var processCmd = &cobra.Command{
	Use:   "process <message-id>",
	Short: "Process one mailbox message through the desk",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "process")
	defer span.End()

	a, err := buildApp(mail.NewConsoleClient())
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.service.ProcessMessage(ctx, args[0])
	if err != nil {
		return fmt.Errorf("processing %s: %w", args[0], err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
