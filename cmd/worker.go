package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/monitoring"
)

var alertIntervalMins int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the queue processor without the intake API",
	Long:  "Polls the job store and processes verification jobs. Run several workers against a shared Postgres store to scale horizontally.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		go runAlertLoop(ctx, env)

		env.Processor.Start(ctx)
		return nil
	},
}

// runAlertLoop periodically evaluates queue health against the
// configured thresholds.
func runAlertLoop(ctx context.Context, env *env) {
	if alertIntervalMins <= 0 {
		return
	}

	collector := monitoring.NewCollector(env.Store)
	alerter := monitoring.NewAlerter(cfg.Monitoring)

	ticker := time.NewTicker(time.Duration(alertIntervalMins) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := collector.Collect(ctx)
			if err != nil {
				zap.L().Warn("alert loop: collect failed", zap.Error(err))
				continue
			}
			if err := alerter.Send(ctx, alerter.Evaluate(snap)); err != nil {
				zap.L().Warn("alert loop: send failed", zap.Error(err))
			}
		}
	}
}

func init() {
	workerCmd.Flags().IntVar(&alertIntervalMins, "alert-interval", 15, "minutes between alert evaluations (0 disables)")
	rootCmd.AddCommand(workerCmd)
}
