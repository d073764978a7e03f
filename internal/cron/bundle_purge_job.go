package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nordvolt/edi-hub/pkg/logger"
)

const (
	defaultPurgeRetention = 24 * time.Hour
	purgeBatchLimit       = 200
)

type BundlePurgeJobParams struct {
	Logger    *logger.Logger
	Delivery  bundlePurger
	Retention time.Duration
}

type bundlePurger interface {
	PurgeDequeued(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewBundlePurgeJob deletes dequeued bundles, their messages and their
// stored documents once the retention period is over.
func NewBundlePurgeJob(params BundlePurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultPurgeRetention
	}
	return &bundlePurgeJob{
		logg:      params.Logger,
		delivery:  params.Delivery,
		retention: retention,
		now:       time.Now,
	}, nil
}

type bundlePurgeJob struct {
	logg      *logger.Logger
	delivery  bundlePurger
	retention time.Duration
	now       func() time.Time
}

func (j *bundlePurgeJob) Name() string { return "bundle-purge" }

func (j *bundlePurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	purged, err := j.delivery.PurgeDequeued(ctx, cutoff, purgeBatchLimit)
	if err != nil {
		return fmt.Errorf("bundle purge: %w", err)
	}
	if purged > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":         cutoff,
			"bundles_purged": purged,
		})
		j.logg.Info(logCtx, "purged dequeued bundles")
	}
	return nil
}
