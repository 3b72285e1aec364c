package crm

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-intake/internal/crm/hubspot"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/storage/memory"
)

func TestReconcilerResyncsNeedsSyncLeads(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	srv := httptest.NewServer(hs)
	defer srv.Close()

	store := memory.NewLeadStore(nil, nil)
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		lead := insertLead(t, store, email)
		require.NoError(t, store.UpdateSync(ctx, lead.ID, intake.SyncUpdate{
			Status: intake.SyncStatusNeedsSync, AttemptedAt: testNow,
		}))
	}
	synced := insertLead(t, store, "d@example.com")
	require.NoError(t, store.UpdateSync(ctx, synced.ID, intake.SyncUpdate{
		Status: intake.SyncStatusSynced, ExternalCRMID: "9", AttemptedAt: testNow,
	}))

	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), store)
	require.NoError(t, err)
	r, err := NewReconciler(store, s, ReconcilerConfig{BatchSize: 10, Workers: 2}, nil)
	require.NoError(t, err)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Attempted: 3, Synced: 3}, report)
	require.Equal(t, 3, hs.contacts())

	left, err := store.ListBySyncStatus(ctx, intake.SyncStatusNeedsSync, 10)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestReconcilerPicksUpStalePending(t *testing.T) {
	t.Parallel()

	hs := newFakeHubSpot()
	srv := httptest.NewServer(hs)
	defer srv.Close()

	store := memory.NewLeadStore(nil, nil)
	insertLead(t, store, "orphan@example.com")

	s, err := NewSynchronizer(hubspot.New(hubspot.Config{BaseURL: srv.URL, Token: "pat"}, srv.Client()), store)
	require.NoError(t, err)
	r, err := NewReconciler(store, s, ReconcilerConfig{BatchSize: 5, StaleAfter: time.Minute}, nil)
	require.NoError(t, err)
	r.clock = fixedClock{now: time.Now().Add(time.Hour)}

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Synced)
}

type brokenLister struct{}

func (brokenLister) ListBySyncStatus(context.Context, intake.SyncStatus, int) ([]intake.Lead, error) {
	return nil, errors.New("db down")
}

func TestReconcilerListFailure(t *testing.T) {
	t.Parallel()

	s, err := NewSynchronizer(hubspot.New(hubspot.Config{}, nil), &failingWriter{})
	require.NoError(t, err)
	r, err := NewReconciler(brokenLister{}, s, ReconcilerConfig{}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.ErrorContains(t, err, "list needs_sync leads")
}
