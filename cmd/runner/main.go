package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/logger"
	"athena-query-scheduler/internal/runner"
	"athena-query-scheduler/internal/scenario"
	"athena-query-scheduler/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	var (
		scenarioName string
		export       []string
	)

	rootCmd := &cobra.Command{
		Use:           "runner",
		Short:         "Run a query scenario against Athena",
		Long:          "Runs every task of a scenario on a bounded worker pool and writes each result as CSV.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(export) > 2 {
				return errors.New("--export takes a directory and an optional prefix")
			}
			req := runner.Request{Scenario: scenarioName, Workers: cfg.Workers}
			if len(export) > 0 {
				req.ExportDir = export[0]
			}
			if len(export) == 2 {
				req.Prefix = export[1]
			}
			return run(cmd.Context(), cfg, req)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&scenarioName, "scenario", "s", "", "scenario to run")
	flags.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "maximum tasks running at once")
	flags.StringSliceVarP(&export, "export", "e", nil, "export results to DIR, optionally only files named PREFIX_* (-e DIR[,PREFIX])")
	_ = rootCmd.MarkFlagRequired("scenario")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "DEBUG, QUERY, INFO, WARN or ERROR")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scenarios",
		Short: "List registered scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := scenario.Default()
			for _, name := range reg.Names() {
				sc, _ := reg.Lookup(name)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", name, sc.Description)
			}
			return nil
		},
	})
	return rootCmd
}

func run(ctx context.Context, cfg config.Config, req runner.Request) error {
	log, closer, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	svc, deps, err := runner.FromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	result, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d succeeded, %d failed\n", result.ID, result.Succeeded, result.Failed)
	return nil
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "err", err)
	}
}
