package offcache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/offcache/offcache/cache"
	serializer "github.com/offcache/offcache/pkg/response-serializer"
)

// partition purposes within a generation
const (
	purposeStatic  = "static"
	purposeDynamic = "dynamic"
	purposeImages  = "images"
)

func partitionName(version, purpose string) string {
	return version + "-" + purpose
}

// currentPartitionNames returns the three partition names of a generation.
func currentPartitionNames(version string) []string {
	return []string{
		partitionName(version, purposeStatic),
		partitionName(version, purposeDynamic),
		partitionName(version, purposeImages),
	}
}

// Lifecycle manages the cache generations.
//
// Install pre-populates the static partition of the current generation and
// Activate deletes partitions left over from previous generations. Both are
// idempotent and both are "prepare" steps: the takeover itself is a separate
// Commit, so a host can hold readiness until the preparation has finished.
type Lifecycle struct {
	store   *cache.Store
	engine  *engine
	version string
	assets  []string
	log     zerolog.Logger

	mu    sync.Mutex
	ready bool
}

func newLifecycle(store *cache.Store, eng *engine, version string, assets []string, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		store:   store,
		engine:  eng,
		version: version,
		assets:  assets,
		log:     logger,
	}
}

// Install writes every configured static asset into the static partition of
// the current generation. The bulk write is all-or-nothing: the first asset
// that cannot be fetched or stored fails the whole install, so the host can
// retry it. Re-running a successful install simply overwrites the entries.
func (l *Lifecycle) Install(ctx context.Context) error {
	static := l.store.Partition(partitionName(l.version, purposeStatic))

	for _, asset := range l.assets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
		if err != nil {
			return fmt.Errorf("install %s: %w", asset, err)
		}
		res, err := l.engine.fetch(req)
		if err != nil {
			return fmt.Errorf("install %s: %w", asset, err)
		}
		if !successful(res) {
			res.Body.Close()
			return fmt.Errorf("install %s: origin returned %s", asset, res.Status)
		}
		bytes, err := serializer.ResponseToBytes(res)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("install %s: %w", asset, err)
		}
		if err := static.Put(ctx, cacheKey(req), bytes); err != nil {
			return fmt.Errorf("install %s: %w", asset, err)
		}
		l.log.Debug().Str("asset", asset).Msg("Pre-cached")
	}

	l.log.Info().Int("assets", len(l.assets)).Str("version", l.version).Msg("Install complete")
	return nil
}

// Activate deletes every partition that does not belong to the current
// generation. Current-generation partitions are left untouched. Running
// Activate with no stale partitions is a no-op.
func (l *Lifecycle) Activate(ctx context.Context) error {
	keep := make(map[string]struct{})
	for _, name := range currentPartitionNames(l.version) {
		keep[name] = struct{}{}
	}

	names, err := l.store.PartitionNames(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := l.store.DeletePartition(ctx, name); err != nil {
			return fmt.Errorf("activate: delete partition %s: %w", name, err)
		}
		l.log.Info().Str("partition", name).Msg("Deleted stale partition")
	}
	return nil
}

// ClearAll deletes every partition regardless of generation,
// including the current one. This is the full manual reset.
func (l *Lifecycle) ClearAll(ctx context.Context) error {
	if err := l.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	l.log.Info().Msg("Cleared all cache partitions")
	return nil
}

// Commit marks this generation as in control.
// It corresponds to the skip-waiting / take-over signal.
func (l *Lifecycle) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		l.ready = true
		l.log.Info().Str("version", l.version).Msg("Taking control")
	}
}

// Ready reports whether this generation has taken control.
func (l *Lifecycle) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}
