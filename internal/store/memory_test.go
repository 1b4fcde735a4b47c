package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/model"
)

func TestMemory_CreateAndGetSite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	site := model.Site{Subdomain: "alameda.civic.band", Name: "Alameda", CurrentStage: model.StageNone, Status: model.StatusNew}
	require.NoError(t, m.CreateSite(ctx, site))

	got, ok, err := m.GetSite(ctx, "alameda.civic.band")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Alameda", got.Name)

	require.Error(t, m.CreateSite(ctx, site), "creating the same subdomain twice must fail")
}

func TestMemory_UpdateSiteDispatchesHooks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateSite(ctx, model.Site{Subdomain: "a.civic.band"}))

	var dispatched string
	m.SetHooks(recordingHooks{onUpdate: func(subdomain string, _ SiteUpdate) { dispatched = subdomain }})

	stage := model.StageFetch
	require.NoError(t, m.UpdateSite(ctx, "a.civic.band", SiteUpdate{CurrentStage: &stage}))

	got, _, err := m.GetSite(ctx, "a.civic.band")
	require.NoError(t, err)
	require.Equal(t, model.StageFetch, got.CurrentStage)
	require.Equal(t, "a.civic.band", dispatched)
}

func TestMemory_GetOldestSite_NullsFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-1 * time.Hour)

	require.NoError(t, m.CreateSite(ctx, model.Site{Subdomain: "has-timestamp.civic.band", LastUpdated: &recent}))
	require.NoError(t, m.CreateSite(ctx, model.Site{Subdomain: "never-run.civic.band"}))

	subdomain, ok, err := m.GetOldestSite(ctx, 0, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "never-run.civic.band", subdomain, "a NULL last_updated must be selected before any timestamp")
}

func TestMemory_GetOldestSite_RespectsLookback(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	justUpdated := now.Add(-1 * time.Minute)

	require.NoError(t, m.CreateSite(ctx, model.Site{Subdomain: "a.civic.band", LastUpdated: &justUpdated}))

	_, ok, err := m.GetOldestSite(ctx, 24, now)
	require.NoError(t, err)
	require.False(t, ok, "a site updated a minute ago is not eligible under a 24h lookback")
}

func TestMemory_Counters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateSite(ctx, model.Site{Subdomain: "a.civic.band"}))

	require.NoError(t, m.SetCounter(ctx, "a.civic.band", model.CounterOCR, FieldTotal, 10))
	require.NoError(t, m.IncrementCounter(ctx, "a.civic.band", model.CounterOCR, FieldCompleted, 1))
	require.NoError(t, m.IncrementCounter(ctx, "a.civic.band", model.CounterOCR, FieldCompleted, 1))
	require.NoError(t, m.IncrementCounter(ctx, "a.civic.band", model.CounterOCR, FieldFailed, 1))

	counters, err := m.ReadCounters(ctx, "a.civic.band")
	require.NoError(t, err)
	c := counters[model.CounterOCR]
	require.Equal(t, 10, c.Total)
	require.Equal(t, 2, c.Completed)
	require.Equal(t, 1, c.Failed)
	require.True(t, c.Valid())
	require.False(t, c.Terminal())
}

type recordingHooks struct {
	onCreate func(subdomain string, site model.Site)
	onUpdate func(subdomain string, updates SiteUpdate)
}

func (r recordingHooks) DispatchCreateSite(_ context.Context, subdomain string, site model.Site) {
	if r.onCreate != nil {
		r.onCreate(subdomain, site)
	}
}

func (r recordingHooks) DispatchUpdateSite(_ context.Context, subdomain string, updates SiteUpdate) {
	if r.onUpdate != nil {
		r.onUpdate(subdomain, updates)
	}
}
