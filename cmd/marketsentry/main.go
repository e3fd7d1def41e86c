// marketsentry watches a broad-market index for crash and rebound
// conditions, emits trade signals with risk parameters, and tracks a
// capital deployment ladder for buying dips.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arlenko/marketsentry/internal/backtest"
	"github.com/arlenko/marketsentry/internal/models"
)

const defaultConfigPath = "configs/config.yaml"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "marketsentry",
		Short: "Market crash detection and dip-buying alerts",
		Long: `marketsentry computes fractal dimension, sentiment and regime
indicators from daily index data, evaluates configurable signal
policies, and tracks a laddered capital deployment plan for dips.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to configuration file")

	rootCmd.AddCommand(
		newCheckCmd(),
		newDipCmd(),
		newRunCmd(),
		newDaemonCmd(),
		newBacktestCmd(),
		newHistoryCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one signal cycle and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runCheck(cmd.Context(), a)
		},
	}
}

func newDipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dip",
		Short: "Run one dip-buying evaluation and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runDip(cmd.Context(), a)
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one signal cycle and one dip evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := runCheck(cmd.Context(), a); err != nil {
				return err
			}
			return runDip(cmd.Context(), a)
		},
	}
}

func runCheck(ctx context.Context, a *app) error {
	signals, snap, err := a.engine.RunSignalCycle(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("As of %s\n", snap.AsOf.Format("2006-01-02"))
	fmt.Printf("  Fractal dimension: %.3f\n", snap.FractalDimension)
	fmt.Printf("  Put/call proxy:    %.2f\n", snap.SentimentProxy)
	fmt.Printf("  Volatility index:  %.1f\n", snap.VolatilityIndex)
	fmt.Printf("  Regime:            %s\n\n", snap.Regime)

	if len(signals) == 0 {
		fmt.Println("No signal.")
		return nil
	}
	for _, sig := range signals {
		fmt.Printf("%s %s  entry $%.2f  stop $%.2f  target $%.2f  size %.1f%%\n",
			sig.Direction, sig.Symbol, sig.Entry, sig.StopLoss, sig.Target, sig.PositionSizePct)
		fmt.Printf("  %s\n", sig.Rationale)
	}
	return nil
}

func runDip(ctx context.Context, a *app) error {
	dec, state, err := a.engine.RunDipCycle(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("As of %s\n", dec.AsOf.Format("2006-01-02"))
	if dec.Triggered {
		fmt.Printf("BUY $%.0f at $%.2f (drawdown %.1f%%, %s)\n",
			dec.Amount, dec.Price, dec.DrawdownPct*100, dec.Reason)
	} else {
		fmt.Printf("No buy: %s (drawdown %.1f%%)\n", dec.Reason, dec.DrawdownPct*100)
	}
	fmt.Printf("Ladder: rung %d, $%.0f deployed in %d\n",
		state.NextBuyIndex, state.CumulativeDeployed, state.Year)
	return nil
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run cycles on the configured schedules until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runDaemon(a)
		},
	}
}

func runDaemon(a *app) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	consecutiveFailures := 0
	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			log.Error().Err(err).Int("consecutive_failures", consecutiveFailures).Msg("cycle failed")
			if consecutiveFailures == 1 && a.notifier != nil {
				if sendErr := a.notifier.SendError(err); sendErr != nil {
					log.Warn().Err(sendErr).Msg("failed to send error notification")
				}
			}
			return
		}
		if consecutiveFailures > 0 && a.notifier != nil {
			if sendErr := a.notifier.SendRecovery(consecutiveFailures); sendErr != nil {
				log.Warn().Err(sendErr).Msg("failed to send recovery notification")
			}
		}
		consecutiveFailures = 0
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.Schedule.SignalCron, func() {
		_, _, err := a.engine.RunSignalCycle(ctx)
		handleCycleResult(err)
	}); err != nil {
		return fmt.Errorf("invalid signal schedule: %w", err)
	}
	if _, err := c.AddFunc(a.cfg.Schedule.DipCron, func() {
		_, _, err := a.engine.RunDipCycle(ctx)
		handleCycleResult(err)
		if err := a.store.RotateHistory(); err != nil {
			log.Warn().Err(err).Msg("failed to rotate history")
		}
	}); err != nil {
		return fmt.Errorf("invalid dip schedule: %w", err)
	}

	log.Info().
		Str("signal_cron", a.cfg.Schedule.SignalCron).
		Str("dip_cron", a.cfg.Schedule.DipCron).
		Msg("daemon started")
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	log.Info().Msg("daemon stopped")
	return nil
}

func newBacktestCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the signal policy and ladder over historical data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			end := time.Now()
			start := end.AddDate(0, 0, -days)
			bars, err := a.client.FetchBars(cmd.Context(),
				a.cfg.Market.Symbol, a.cfg.Market.VolSymbol, start, end)
			if err != nil {
				return err
			}

			res, err := backtest.Run(bars, a.cfg)
			if err != nil {
				return err
			}

			fmt.Printf("Backtest %s over %d bars (%d evaluated days)\n",
				a.cfg.Market.Symbol, len(bars), res.DaysEvaluated)
			fmt.Printf("  Signals:       %d long, %d short\n", res.LongSignals, res.ShortSignals)
			fmt.Printf("  Ladder buys:   %d ($%.0f deployed)\n", len(res.Buys), res.TotalDeployed)
			fmt.Printf("  Max drawdown:  %.1f%%\n", res.MaxDrawdown*100)
			for _, sig := range res.Signals {
				fmt.Printf("  %s  %s %s at $%.2f\n",
					sig.Indicators.AsOf.Format("2006-01-02"), sig.Direction, sig.Symbol, sig.Entry)
			}
			for _, buy := range res.Buys {
				fmt.Printf("  %s  BUY $%.0f at $%.2f (%s)\n",
					buy.AsOf.Format("2006-01-02"), buy.Amount, buy.Price, buy.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 730, "calendar days of history to replay")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent signals and buy decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			signals, err := a.store.RecentSignals(limit)
			if err != nil {
				return err
			}
			decisions, err := a.store.RecentBuyDecisions(limit)
			if err != nil {
				return err
			}

			fmt.Printf("Signals (%d):\n", len(signals))
			for _, sig := range signals {
				if sig.Direction == models.DirectionNone {
					fmt.Printf("  %s  NONE\n", sig.CreatedAt.Format("2006-01-02"))
					continue
				}
				fmt.Printf("  %s  %s %s  entry $%.2f  stop $%.2f  target $%.2f\n",
					sig.CreatedAt.Format("2006-01-02"), sig.Direction, sig.Symbol,
					sig.Entry, sig.StopLoss, sig.Target)
			}

			fmt.Printf("Buy decisions (%d):\n", len(decisions))
			for _, dec := range decisions {
				status := "no buy"
				if dec.Triggered {
					status = fmt.Sprintf("BUY $%.0f", dec.Amount)
				}
				fmt.Printf("  %s  %s at $%.2f (%s)\n",
					dec.AsOf.Format("2006-01-02"), status, dec.Price, dec.Reason)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of records to show")
	return cmd
}
