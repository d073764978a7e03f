package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/nordvolt/edi-hub/pkg/logger"
)

type BundleCloseJobParams struct {
	Logger  *logger.Logger
	Mailbox bundleCloser
}

type bundleCloser interface {
	CloseRipeBundles(ctx context.Context, now time.Time) (int, error)
}

// NewBundleCloseJob sweeps open bundles and closes those whose bundling
// window elapsed or whose message count reached the cap.
func NewBundleCloseJob(params BundleCloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Mailbox == nil {
		return nil, fmt.Errorf("mailbox service required")
	}
	return &bundleCloseJob{
		logg:    params.Logger,
		mailbox: params.Mailbox,
		now:     time.Now,
	}, nil
}

type bundleCloseJob struct {
	logg    *logger.Logger
	mailbox bundleCloser
	now     func() time.Time
}

func (j *bundleCloseJob) Name() string { return "bundle-close" }

func (j *bundleCloseJob) Run(ctx context.Context) error {
	closed, err := j.mailbox.CloseRipeBundles(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("bundle close sweep: %w", err)
	}
	if closed > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"bundles_closed": closed})
		j.logg.Info(logCtx, "closed ripe bundles")
	}
	return nil
}
