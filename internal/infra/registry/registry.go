package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"portald/internal/domain"
	"portald/internal/infra/normalizer"
	"portald/internal/infra/schemafetch"
)

// DescriptionFetcher retrieves a portal's published API description.
type DescriptionFetcher interface {
	Fetch(ctx context.Context, baseURL string) (*schemafetch.Document, error)
}

// PortalCache holds last-known-good entries for portals that fail a refresh.
type PortalCache interface {
	PutPortal(entry domain.PortalEntry) error
	GetPortal(id string) (domain.PortalEntry, bool)
}

type Config struct {
	// Whitelist is the comma-separated list of portal ids to expose.
	Whitelist string
	// Concurrency bounds parallel per-portal fetches during a refresh.
	Concurrency int
}

// Registry maintains the whitelisted portal set and their normalized tool
// descriptors. Each refresh replaces the published snapshot wholesale under a
// single atomic pointer, so the read path needs no locks and never observes a
// half-updated state.
type Registry struct {
	payment domain.PaymentClient
	fetcher DescriptionFetcher
	cache   PortalCache
	metrics domain.Metrics
	logger  *zap.Logger

	mu          sync.Mutex
	whitelist   string
	concurrency int

	snapshot atomic.Pointer[domain.Snapshot]
}

func New(cfg Config, payment domain.PaymentClient, fetcher DescriptionFetcher, cache PortalCache, metrics domain.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = domain.DefaultRefreshConcurrency
	}
	return &Registry{
		payment:     payment,
		fetcher:     fetcher,
		cache:       cache,
		metrics:     metrics,
		logger:      logger.Named("registry"),
		whitelist:   cfg.Whitelist,
		concurrency: concurrency,
	}
}

// SetWhitelist replaces the portal whitelist. Takes effect on the next
// refresh; the current snapshot is left untouched.
func (r *Registry) SetWhitelist(whitelist string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.whitelist = whitelist
}

// Current returns the last published snapshot, or nil before the first
// successful refresh.
func (r *Registry) Current() *domain.Snapshot {
	return r.snapshot.Load()
}

// Refresh rebuilds the snapshot from the whitelist. Per-portal failures are
// soft: the portal falls back to its cached entry or drops out, and the
// refresh proceeds across the rest of the whitelist. Only an empty whitelist
// fails the refresh as a whole.
func (r *Registry) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	start := time.Now()

	r.mu.Lock()
	whitelist := r.whitelist
	concurrency := r.concurrency
	r.mu.Unlock()

	ids := parseWhitelist(whitelist)
	if len(ids) == 0 {
		err := domain.E(domain.CodeFailedPrecond, "registry.Refresh",
			"portal whitelist is empty: set "+domain.WhitelistEnvVar+" to a comma-separated list of portal ids",
			domain.ErrEmptyWhitelist)
		r.observeRefresh(start, nil, err)
		return nil, err
	}

	entries := make(map[string]domain.PortalEntry, len(ids))
	var entriesMu sync.Mutex

	jobs := make(chan string)
	workers := workerCount(concurrency, len(ids))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				entry, ok := r.fetchPortal(ctx, id)
				if !ok {
					continue
				}
				entriesMu.Lock()
				entries[id] = entry
				entriesMu.Unlock()
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	snapshot := r.buildSnapshot(entries)
	r.snapshot.Store(snapshot)
	r.observeRefresh(start, snapshot, nil)

	r.logger.Debug("snapshot published",
		zap.String("etag", snapshot.ETag),
		zap.Int("portals", len(snapshot.Portals)),
		zap.Int("tools", len(snapshot.Tools)),
	)
	return snapshot, nil
}

func (r *Registry) fetchPortal(ctx context.Context, id string) (domain.PortalEntry, bool) {
	portal, err := r.payment.Portal(ctx, id)
	if err != nil {
		r.logger.Warn("portal fetch failed", zap.String("portal", id), zap.Error(err))
		if r.metrics != nil {
			r.metrics.ObservePortalRefreshFailure(id)
		}
		if r.cache != nil {
			if cached, ok := r.cache.GetPortal(id); ok {
				r.logger.Info("serving portal from last-known-good cache", zap.String("portal", id))
				cached.Source = domain.PortalSourceCache
				return cached, true
			}
		}
		return domain.PortalEntry{}, false
	}

	doc, err := r.fetcher.Fetch(ctx, portal.URL)
	if err != nil {
		// Soft: the portal still yields a synthesized tool.
		r.logger.Debug("portal publishes no api description", zap.String("portal", id), zap.Error(err))
		doc = nil
	}

	entry := domain.PortalEntry{
		Portal:    portal,
		Tools:     normalizer.Normalize(portal, doc, r.logger),
		Source:    domain.PortalSourceLive,
		FetchedAt: time.Now().UTC(),
	}
	if r.cache != nil {
		if err := r.cache.PutPortal(entry); err != nil {
			r.logger.Warn("portal cache write failed", zap.String("portal", id), zap.Error(err))
		}
	}
	return entry, true
}

func (r *Registry) buildSnapshot(entries map[string]domain.PortalEntry) *domain.Snapshot {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	merged := make([]domain.ToolDescriptor, 0)
	targets := make(map[string]domain.ToolTarget)

	for _, id := range ids {
		entry := entries[id]
		for _, tool := range entry.Tools {
			if _, exists := targets[tool.Name]; exists {
				renamed := tool.Name + "_" + domain.IDSuffix(tool.PortalID)
				r.logger.Warn("tool name conflict",
					zap.String("portal", tool.PortalID),
					zap.String("tool", tool.Name),
					zap.String("renamed", renamed),
				)
				if _, stillTaken := targets[renamed]; stillTaken {
					r.logger.Warn("tool conflict resolution failed, skipping",
						zap.String("portal", tool.PortalID),
						zap.String("tool", tool.Name),
					)
					continue
				}
				tool.Name = renamed
			}
			targets[tool.Name] = domain.ToolTarget{
				PortalID:    tool.PortalID,
				Operation:   tool.Operation,
				Synthesized: tool.Synthesized,
			}
			merged = append(merged, tool)
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })

	return domain.NewSnapshot(r.hashTools(merged), entries, merged, targets)
}

func (r *Registry) observeRefresh(start time.Time, snapshot *domain.Snapshot, err error) {
	if r.metrics == nil {
		return
	}
	portals, tools := 0, 0
	if snapshot != nil {
		portals = len(snapshot.Portals)
		tools = len(snapshot.Tools)
		r.metrics.SetSnapshotTools(tools)
	}
	r.metrics.ObserveRefresh(time.Since(start), portals, tools, err)
}

func (r *Registry) hashTools(tools []domain.ToolDescriptor) string {
	data, err := json.Marshal(tools)
	if err != nil {
		r.logger.Warn("tool hash failed", zap.Error(err))
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func parseWhitelist(whitelist string) []string {
	parts := strings.Split(whitelist, ",")
	seen := make(map[string]struct{}, len(parts))
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func workerCount(limit, total int) int {
	if total <= 0 {
		return 0
	}
	if limit <= 0 {
		limit = domain.DefaultRefreshConcurrency
	}
	if limit > total {
		return total
	}
	return limit
}
