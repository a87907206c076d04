package runner

import (
	"context"
	"log/slog"

	"athena-query-scheduler/internal/athena"
	"athena-query-scheduler/internal/chain"
	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/executor"
	"athena-query-scheduler/internal/ratelimit"
	"athena-query-scheduler/internal/scenario"
	"athena-query-scheduler/internal/sink"
	"athena-query-scheduler/internal/store"
)

// Deps holds the long-lived resources behind a Service built by FromConfig. Store
// is nil without POSTGRES_DSN.
type Deps struct {
	Store   *store.Store
	closers []func()
}

// Close releases every resource in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// FromConfig builds a Service against Athena, with the Redis submission limiter, S3
// mirroring and Postgres history each enabled when configured.
func FromConfig(ctx context.Context, cfg config.Config, log *slog.Logger) (*Service, *Deps, error) {
	deps := &Deps{}
	mode, err := chain.ParseMode(cfg.ChainMode)
	if err != nil {
		return nil, nil, err
	}

	svc, err := athena.NewAWSService(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := executor.OptionsFromConfig(cfg)
	if bucket := ratelimit.FromConfig(cfg, "athena"); bucket != nil {
		opts.Limiter = bucket
		deps.closers = append(deps.closers, func() { _ = bucket.Close() })
	}
	exec := executor.New(svc, opts, log)

	out, err := sink.FromConfig(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}

	serviceOpts := []Option{
		WithLogger(log),
		WithOutput(out, cfg.OutputDir),
		WithDatabase(cfg.AthenaDatabase),
	}
	if cfg.PostgresDSN != "" {
		st, err := store.New(ctx, cfg.PostgresDSN)
		if err != nil {
			deps.Close()
			return nil, nil, err
		}
		deps.closers = append(deps.closers, st.Close)
		if err := st.RunMigrations(ctx); err != nil {
			deps.Close()
			return nil, nil, err
		}
		deps.Store = st
		serviceOpts = append(serviceOpts, WithHistory(st))
	}

	log.Debug("runner configured", "env", cfg.Env, "chain_mode", mode, "workgroup", cfg.AthenaWorkGroup,
		"limiter", opts.Limiter != nil, "history", deps.Store != nil, "s3_sink", cfg.SinkS3Bucket != "")
	return New(scenario.Default(), exec, mode, serviceOpts...), deps, nil
}
