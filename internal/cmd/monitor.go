package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/evalops/sales-desk/internal/mail"
)

var (
	monitorInterval int
	monitorOnce     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the mailbox for document requests on a schedule",
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().IntVar(&monitorInterval, "interval", 0, "seconds between cycles (overrides settings.monitoring.check_interval)")
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(mail.NewConsoleClient())
	if err != nil {
		return err
	}
	defer a.Close()

	if monitorOnce {
		n, err := a.service.RunCycle(ctx)
		if err != nil {
			return err
		}
		log.Info().Int("processed", n).Msg("monitor_once_complete")
		return nil
	}

	interval := monitorInterval
	if interval <= 0 {
		interval = a.deskCfg.Settings.Monitoring.CheckInterval
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %ds", interval), func() {
		if _, err := a.service.RunCycle(ctx); err != nil {
			log.Error().Err(err).Msg("monitor_cycle_failed")
		}
	}); err != nil {
		return fmt.Errorf("registering monitor schedule: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Int("interval_seconds", interval).Msg("monitor_started")
	<-ctx.Done()
	log.Info().Msg("monitor_stopped")
	return nil
}
