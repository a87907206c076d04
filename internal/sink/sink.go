package sink

import (
	"context"
	"errors"

	"athena-query-scheduler/internal/config"
	"athena-query-scheduler/internal/models"
)

// Writer is the contract the scheduler writes through.
type Writer interface {
	Write(ctx context.Context, table models.Table, dir, name string) (string, error)
}

// Tee writes to every writer and returns the first writer's location.
type Tee []Writer

func (t Tee) Write(ctx context.Context, table models.Table, dir, name string) (string, error) {
	var (
		location string
		errs     []error
	)
	for i, w := range t {
		loc, err := w.Write(ctx, table, dir, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			location = loc
		}
	}
	return location, errors.Join(errs...)
}

// FromConfig always writes CSV under cfg.OutputDir and mirrors to S3 when
// SINK_S3_BUCKET is set.
func FromConfig(ctx context.Context, cfg config.Config) (Writer, error) {
	local := NewCSVWriter(cfg.OutputDir)
	if cfg.SinkS3Bucket == "" {
		return local, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return Tee{local, NewS3Writer(client, cfg.SinkS3Bucket, "")}, nil
}
