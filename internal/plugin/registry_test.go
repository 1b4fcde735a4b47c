package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civicband/clerk-sub001/internal/model"
	"github.com/civicband/clerk-sub001/internal/store"
)

func TestNewRegistry_RegistersDefaults(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)

	require.NotNil(t, r.Transformer("identity"))
	require.NotNil(t, r.Loader("generic"))
	require.Nil(t, r.Transformer("nonexistent"))
}

type fakeExtractor struct{ label string; fetched bool }

func (f *fakeExtractor) Label() string { return f.label }
func (f *fakeExtractor) Fetch(context.Context, FetchRequest) error {
	f.fetched = true
	return nil
}

func TestRegistry_ExtractorLookup_FirstNonNilWins(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)

	first := &fakeExtractor{label: "acme"}
	second := &fakeExtractor{label: "acme"}
	r.Register(first)
	r.Register(second)

	got := r.Extractor("acme")
	require.Same(t, first, got)
}

type observingPlugin struct{ calls *[]string }

func (o observingPlugin) OnCreateSite(_ context.Context, subdomain string, _ model.Site) {
	*o.calls = append(*o.calls, "create:"+subdomain)
}
func (o observingPlugin) OnUpdateSite(_ context.Context, subdomain string, _ store.SiteUpdate) {
	*o.calls = append(*o.calls, "update:"+subdomain)
}

func TestRegistry_DispatchCreateSite_FiresAllObservers(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)

	var calls []string
	r.Register(observingPlugin{calls: &calls})
	r.Register(observingPlugin{calls: &calls})

	r.DispatchCreateSite(context.Background(), "a.civic.band", model.Site{Subdomain: "a.civic.band"})

	require.Equal(t, []string{"create:a.civic.band", "create:a.civic.band"}, calls)
}

type panickyObserver struct{}

func (panickyObserver) OnCreateSite(context.Context, string, model.Site) { panic("boom") }
func (panickyObserver) OnUpdateSite(context.Context, string, store.SiteUpdate) {}

func TestRegistry_DispatchCreateSite_IsolatesPanickingPlugin(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)

	var calls []string
	r.Register(panickyObserver{})
	r.Register(observingPlugin{calls: &calls})

	require.NotPanics(t, func() {
		r.DispatchCreateSite(context.Background(), "a.civic.band", model.Site{})
	})
	require.Equal(t, []string{"create:a.civic.band"}, calls, "a panicking plugin must not prevent later plugins from firing")
}
