package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"krx-trader/internal/clock"
	"krx-trader/internal/eod"
	"krx-trader/internal/logger"
	"krx-trader/internal/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "trader",
		Short:        "KRX equity trading runners",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = trace.Shutdown(context.Background())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Configuration file path")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newCandidatesCmd(&configPath))
	rootCmd.AddCommand(newEODCmd(&configPath))
	return rootCmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	compressOldLogs(ctx)
	return newApp(ctx, cfg)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daily schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.buildScheduler()
			if err != nil {
				return err
			}
			err = s.Run(ctx)
			logger.Info(context.Background(), "Shutting down...")
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			return errors.Join(err, a.stopSessions(context.Background()))
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var runFor time.Duration

	cmd := &cobra.Command{
		Use:       "run <periodic|realtime|upper>",
		Short:     "Start one runner now and stop it on signal",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{runnerPeriodic, runnerRealTime, runnerUpper},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.newRunner(args[0])
			if err != nil {
				return err
			}
			// the session keeps running after a signal until Stop below
			if err := r.Start(context.WithoutCancel(ctx)); err != nil {
				return err
			}

			var timeout <-chan time.Time
			if runFor > 0 {
				timer := time.NewTimer(runFor)
				defer timer.Stop()
				timeout = timer.C
			}
			select {
			case <-ctx.Done():
			case <-timeout:
			case <-r.Done():
			}
			return r.Stop(context.Background())
		},
	}
	cmd.Flags().DurationVar(&runFor, "for", 0, "Stop the runner after this long (0 runs until interrupted)")
	return cmd
}

func newCandidatesCmd(configPath *string) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Print a runner's candidates for today, excluding current holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			holdings, err := a.wallet.Holdings(ctx)
			if err != nil {
				return err
			}
			exclude := make(map[string]struct{}, len(holdings))
			for sym := range holdings {
				exclude[sym] = struct{}{}
			}

			src, ok := a.sources[kind]
			if !ok {
				return fmt.Errorf("unknown runner %q", kind)
			}
			fetch := src.FetchToday
			if kind == runnerUpper {
				fetch = src.FetchLimitUp
			}
			cs, err := fetch(ctx, exclude)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tBUY\tSUPPORT\tRESISTANCE\tGROWTH\tSTABILITY\tSIGNAL")
			for _, c := range cs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					c.StockCode, c.BuyPrice.StringFixed(0), optional(c.SupportPrice), optional(c.ResistancePrice),
					c.GrowthScore, c.FinancialStabilityScore, c.TechnicalSignal)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "runner", runnerPeriodic, "Runner whose candidate view to print (periodic, realtime or upper)")
	return cmd
}

func optional(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func newEODCmd(configPath *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "eod",
		Short: "Summarize a day's trade journal into CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := loadConfig(ctx, *configPath); err != nil {
				return err
			}
			day := clock.Now()
			if date != "" {
				t, err := time.ParseInLocation("2006-01-02", date, clock.KST)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				day = t
			}
			path, err := eod.SummarizeDay(ctx, day)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No trades on", clock.Date(day))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "EOD CSV written:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Trade date in YYYY-MM-DD format (today if not provided)")
	return cmd
}
