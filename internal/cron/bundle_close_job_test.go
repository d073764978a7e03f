package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nordvolt/edi-hub/pkg/logger"
)

type fakeBundleCloser struct {
	lastNow time.Time
	closed  int
	err     error
}

func (f *fakeBundleCloser) CloseRipeBundles(ctx context.Context, now time.Time) (int, error) {
	f.lastNow = now
	if f.err != nil {
		return 0, f.err
	}
	return f.closed, nil
}

func TestBundleCloseJobSweepsWithCurrentTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	closer := &fakeBundleCloser{closed: 3}
	jobIface, err := NewBundleCloseJob(BundleCloseJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Mailbox: closer,
	})
	if err != nil {
		t.Fatalf("NewBundleCloseJob: %v", err)
	}
	job := jobIface.(*bundleCloseJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !closer.lastNow.Equal(now) {
		t.Fatalf("expected sweep time %s, got %s", now, closer.lastNow)
	}
}

func TestBundleCloseJobPropagatesError(t *testing.T) {
	jobIface, err := NewBundleCloseJob(BundleCloseJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Mailbox: &fakeBundleCloser{err: errors.New("boom")},
	})
	if err != nil {
		t.Fatalf("NewBundleCloseJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestBundleCloseJobRequiresMailbox(t *testing.T) {
	_, err := NewBundleCloseJob(BundleCloseJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err == nil {
		t.Fatal("expected constructor error")
	}
}
