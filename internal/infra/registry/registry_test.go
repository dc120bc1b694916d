package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/schemafetch"
	"portald/internal/infra/store"
)

type fakePaymentClient struct {
	mu      sync.Mutex
	portals map[string]domain.Portal
	down    map[string]bool
}

func (f *fakePaymentClient) Address(context.Context) (string, error) {
	return "7pWa11etAddre55", nil
}

func (f *fakePaymentClient) Balance(context.Context) (domain.Balance, error) {
	return domain.Balance{}, nil
}

func (f *fakePaymentClient) Portal(_ context.Context, id string) (domain.Portal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[id] {
		return domain.Portal{}, fmt.Errorf("%w: %s", domain.ErrPortalUnreachable, id)
	}
	portal, ok := f.portals[id]
	if !ok {
		return domain.Portal{}, fmt.Errorf("%w: %s", domain.ErrPortalUnreachable, id)
	}
	return portal, nil
}

func (f *fakePaymentClient) CallPortal(context.Context, string, map[string]any, string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakePaymentClient) setDown(id string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down == nil {
		f.down = make(map[string]bool)
	}
	f.down[id] = down
}

type fakeFetcher struct {
	mu   sync.Mutex
	docs map[string]*schemafetch.Document
}

func (f *fakeFetcher) Fetch(_ context.Context, baseURL string) (*schemafetch.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[baseURL]
	if !ok {
		return nil, domain.ErrNoDescription
	}
	return doc, nil
}

func documentOf(t *testing.T, raw string) *schemafetch.Document {
	t.Helper()
	var doc schemafetch.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func newTestRegistry(t *testing.T, whitelist string, payment *fakePaymentClient, fetcher *fakeFetcher, cache PortalCache) *Registry {
	t.Helper()
	return New(Config{Whitelist: whitelist}, payment, fetcher, cache, nil, zap.NewNop())
}

func TestRefresh_EmptyWhitelist(t *testing.T) {
	reg := newTestRegistry(t, "", &fakePaymentClient{}, &fakeFetcher{}, nil)
	_, err := reg.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyWhitelist)
	require.Contains(t, err.Error(), domain.WhitelistEnvVar)
	require.Nil(t, reg.Current())

	// Whitespace-only whitelist hits the same path.
	reg.SetWhitelist(" , ,")
	_, err = reg.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrEmptyWhitelist)
}

func TestRefresh_ReachablePortalsOnly(t *testing.T) {
	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "Weather", URL: "https://weather.example"},
			"bbbb2222": {ID: "bbbb2222", Title: "Translate", URL: "https://translate.example"},
		},
	}
	payment.setDown("cccc3333", true)
	fetcher := &fakeFetcher{docs: map[string]*schemafetch.Document{
		"https://weather.example": documentOf(t, `{"paths":{"/f":{"post":{"operationId":"get_forecast"}}}}`),
	}}

	reg := newTestRegistry(t, "aaaa1111,bbbb2222,cccc3333", payment, fetcher, nil)
	snapshot, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Portals, 2)
	require.Contains(t, snapshot.Portals, "aaaa1111")
	require.Contains(t, snapshot.Portals, "bbbb2222")
	require.NotContains(t, snapshot.Portals, "cccc3333")

	// Every reachable portal yields at least one tool, explicit or synthesized.
	for id, entry := range snapshot.Portals {
		require.NotEmpty(t, entry.Tools, "portal %s has no tools", id)
	}
	require.Equal(t, domain.PortalSourceLive, snapshot.Portals["aaaa1111"].Source)
}

func TestRefresh_ResolutionRoundTrip(t *testing.T) {
	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "Weather", URL: "https://weather.example"},
			"bbbb2222": {ID: "bbbb2222", Title: "Translate", URL: "https://translate.example"},
		},
	}
	fetcher := &fakeFetcher{docs: map[string]*schemafetch.Document{
		"https://weather.example": documentOf(t, `{
			"paths": {
				"/f": {"post": {"operationId": "get_forecast"}},
				"/a": {"get": {"operationId": "list_alerts"}}
			}
		}`),
	}}

	reg := newTestRegistry(t, "aaaa1111,bbbb2222", payment, fetcher, nil)
	snapshot, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	for _, tool := range snapshot.Tools {
		target, ok := snapshot.Resolve(tool.Name)
		require.True(t, ok, "tool %s did not resolve", tool.Name)
		require.Equal(t, tool.PortalID, target.PortalID)
		require.Equal(t, tool.Operation, target.Operation)
		require.Equal(t, tool.Synthesized, target.Synthesized)
	}

	_, ok := snapshot.Resolve("no_such_tool")
	require.False(t, ok)
}

func TestRefresh_IdenticalTitlesDistinctNames(t *testing.T) {
	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "Echo", URL: "https://one.example"},
			"bbbb2222": {ID: "bbbb2222", Title: "Echo", URL: "https://two.example"},
		},
	}

	reg := newTestRegistry(t, "aaaa1111,bbbb2222", payment, &fakeFetcher{}, nil)
	snapshot, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Tools, 2)
	require.NotEqual(t, snapshot.Tools[0].Name, snapshot.Tools[1].Name)
	for _, tool := range snapshot.Tools {
		require.True(t, tool.Synthesized)
	}
}

func TestRefresh_CrossPortalOperationConflict(t *testing.T) {
	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "One", URL: "https://one.example"},
			"bbbb2222": {ID: "bbbb2222", Title: "Two", URL: "https://two.example"},
		},
	}
	fetcher := &fakeFetcher{docs: map[string]*schemafetch.Document{
		"https://one.example": documentOf(t, `{"paths":{"/s":{"post":{"operationId":"search"}}}}`),
		"https://two.example": documentOf(t, `{"paths":{"/s":{"post":{"operationId":"search"}}}}`),
	}}

	reg := newTestRegistry(t, "aaaa1111,bbbb2222", payment, fetcher, nil)
	snapshot, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Tools, 2)
	names := map[string]bool{}
	for _, tool := range snapshot.Tools {
		require.False(t, names[tool.Name], "duplicate exposed name %s", tool.Name)
		names[tool.Name] = true

		target, ok := snapshot.Resolve(tool.Name)
		require.True(t, ok)
		require.Equal(t, "search", target.Operation)
	}
	require.True(t, names["search"])
	require.True(t, names["search_bbbb"])
}

func TestRefresh_LastKnownGoodFallback(t *testing.T) {
	cache, err := store.Open(filepath.Join(t.TempDir(), "portals.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "Weather", URL: "https://weather.example"},
		},
	}
	fetcher := &fakeFetcher{docs: map[string]*schemafetch.Document{
		"https://weather.example": documentOf(t, `{"paths":{"/f":{"post":{"operationId":"get_forecast"}}}}`),
	}}

	reg := newTestRegistry(t, "aaaa1111", payment, fetcher, cache)
	snapshot, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.PortalSourceLive, snapshot.Portals["aaaa1111"].Source)

	// A transient blip must not vanish the portal: the cached entry serves.
	payment.setDown("aaaa1111", true)
	snapshot, err = reg.Refresh(context.Background())
	require.NoError(t, err)
	require.Contains(t, snapshot.Portals, "aaaa1111")
	require.Equal(t, domain.PortalSourceCache, snapshot.Portals["aaaa1111"].Source)

	target, ok := snapshot.Resolve("get_forecast")
	require.True(t, ok)
	require.Equal(t, "aaaa1111", target.PortalID)
}

func TestRefresh_SnapshotReplacedNotMutated(t *testing.T) {
	payment := &fakePaymentClient{
		portals: map[string]domain.Portal{
			"aaaa1111": {ID: "aaaa1111", Title: "Weather", URL: "https://weather.example"},
		},
	}

	reg := newTestRegistry(t, "aaaa1111", payment, &fakeFetcher{}, nil)
	first, err := reg.Refresh(context.Background())
	require.NoError(t, err)

	second, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	require.NotSame(t, first, second)
	require.Same(t, second, reg.Current())
}

func TestParseWhitelist(t *testing.T) {
	require.Empty(t, parseWhitelist(""))
	require.Empty(t, parseWhitelist(" , ,,"))
	require.Equal(t, []string{"a", "b"}, parseWhitelist(" a , b "))
	require.Equal(t, []string{"a"}, parseWhitelist("a,a"))
}

func TestWorkerCount(t *testing.T) {
	require.Equal(t, 0, workerCount(4, 0))
	require.Equal(t, 2, workerCount(4, 2))
	require.Equal(t, 4, workerCount(4, 9))
	require.Equal(t, domain.DefaultRefreshConcurrency, workerCount(0, 100))
}
