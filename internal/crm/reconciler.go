package crm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/intake"
)

// LeadLister finds leads by sync status.
type LeadLister interface {
	ListBySyncStatus(ctx context.Context, status intake.SyncStatus, limit int) ([]intake.Lead, error)
}

// ReconcilerConfig tunes one reconciliation pass.
type ReconcilerConfig struct {
	BatchSize int
	Workers   int
	// StaleAfter is how old a pending lead must be before it is treated as
	// orphaned by a crashed request. Zero disables pending recovery.
	StaleAfter time.Duration
}

// Report summarizes a reconciliation pass.
type Report struct {
	Attempted int
	Synced    int
	NeedsSync int
}

// Reconciler re-runs the synchronizer for leads that did not reach synced.
// It runs out of band and is never part of a submission request.
type Reconciler struct {
	leads  LeadLister
	sync   intake.Synchronizer
	cfg    ReconcilerConfig
	clock  intake.Clock
	logger *zap.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(leads LeadLister, synchronizer intake.Synchronizer, cfg ReconcilerConfig, logger *zap.Logger) (*Reconciler, error) {
	if leads == nil || synchronizer == nil {
		return nil, errors.New("crm: reconciler requires a lead lister and a synchronizer")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{leads: leads, sync: synchronizer, cfg: cfg, clock: system.New(), logger: logger}, nil
}

// Run performs one pass over needs_sync leads, then stale pending leads if
// the batch has room.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	candidates, err := r.leads.ListBySyncStatus(ctx, intake.SyncStatusNeedsSync, r.cfg.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list needs_sync leads: %w", err)
	}
	if room := r.cfg.BatchSize - len(candidates); room > 0 && r.cfg.StaleAfter > 0 {
		pending, err := r.leads.ListBySyncStatus(ctx, intake.SyncStatusPending, room)
		if err != nil {
			return Report{}, fmt.Errorf("list pending leads: %w", err)
		}
		cutoff := r.clock.Now().Add(-r.cfg.StaleAfter)
		for _, lead := range pending {
			if lead.CreatedAt.Before(cutoff) {
				candidates = append(candidates, lead)
			}
		}
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, lead := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.sync.Sync(gctx, lead)
			mu.Lock()
			defer mu.Unlock()
			report.Attempted++
			if res.Status == intake.SyncStatusSynced {
				report.Synced++
			} else {
				report.NeedsSync++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("reconcile leads: %w", err)
	}
	r.logger.Info("reconciliation pass complete",
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("needs_sync", report.NeedsSync),
	)
	return report, nil
}
