package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/queue"
	"github.com/civicband/clerk-sub001/internal/store"
)

func TestTick_PicksOldestEligibleSite(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewInMemory()
	s := New(st, q)
	ctx := context.Background()

	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now().Add(-25 * time.Hour)
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "older"}))
	require.NoError(t, st.UpdateSite(ctx, "older", store.SiteUpdate{LastUpdated: &older}))
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "newer"}))
	require.NoError(t, st.UpdateSite(ctx, "newer", store.SiteUpdate{LastUpdated: &newer}))

	require.NoError(t, s.Tick(ctx))

	job, ok, err := q.Claim(ctx, []string{"fetch"}, "worker-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "older", job.Subdomain)
	require.Equal(t, model.PriorityNormal, job.Priority)
}

func TestTick_SkipsSiteWithLiveCoordinator(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewInMemory()
	s := New(st, q)
	ctx := context.Background()

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "busy"}))
	require.NoError(t, st.UpdateSite(ctx, "busy", store.SiteUpdate{LastUpdated: &old}))
	require.NoError(t, st.SetCounter(ctx, "busy", model.CounterOCR, store.FieldTotal, 5))
	require.NoError(t, st.SetCounter(ctx, "busy", model.CounterOCR, store.FieldCompleted, 2))
	enqueued := true
	require.NoError(t, st.UpdateSite(ctx, "busy", store.SiteUpdate{CoordinatorEnqueued: &enqueued}))

	require.NoError(t, s.Tick(ctx))

	_, ok, err := q.Claim(ctx, []string{"fetch"}, "worker-1", 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTick_NoEligibleSitesIsNotAnError(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewInMemory()
	s := New(st, q)
	require.NoError(t, s.Tick(context.Background()))
}

func TestEnqueueManualFetch_UsesHighPriority(t *testing.T) {
	st := store.NewMemory()
	q := queue.NewInMemory()
	ctx := context.Background()
	require.NoError(t, st.CreateSite(ctx, model.Site{Subdomain: "manual"}))

	runID, err := EnqueueManualFetch(ctx, q, st, "manual")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	job, ok, err := q.Claim(ctx, []string{queue.HighQueueName}, "worker-1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.PriorityHigh, job.Priority)
}
