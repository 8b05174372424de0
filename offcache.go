// Package offcache is a request-interception caching layer that sits between
// a client application and the network. Every request is classified, routed
// to a caching strategy, and served from a persistent partitioned store that
// outlives individual page loads, so content stays available offline while
// live streams are never served stale.
package offcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/offcache/offcache/cache"
)

type Config struct {
	// Version is the generation tag of the cached content. Partitions are
	// named <version>-<purpose>; partitions with a different version tag are
	// deleted on activation.
	Version string
	// Storage for cache entries.
	Cache cache.CacheProvider
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// StaticAssets are origin paths pre-populated into the static partition
	// during install.
	StaticAssets []string
	// StreamingDomains are host/path fragments whose requests are never
	// cached.
	StreamingDomains []string
	// ImageRefs are URL fragments classified as images in addition to the
	// well-known image extensions.
	ImageRefs []string
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

// Worker intercepts requests and serves them through the caching strategies.
// It exposes one method per host trigger: Install, Activate, ServeHTTP (the
// fetch trigger) and HandleMessage (the manual control channel).
type Worker struct {
	classifier Classifier
	engine     *engine
	lifecycle  *Lifecycle
	log        zerolog.Logger

	static  cache.Partition
	dynamic cache.Partition
	images  cache.Partition
}

// NewWorker wires the classifier, strategy engine and lifecycle manager
// around the given cache provider. The version tag is injected here rather
// than read from a global, so multiple generations can coexist in tests.
func NewWorker(config Config) (*Worker, error) {
	if config.Version == "" {
		return nil, fmt.Errorf("version tag is required")
	}
	if config.Cache == nil {
		return nil, fmt.Errorf("cache provider is required")
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("version", config.Version).
		Logger()

	store := cache.NewStore(config.Cache)
	eng := newEngine(store, config.OriginURL, logger)

	return &Worker{
		classifier: NewClassifier(config.StreamingDomains, config.ImageRefs),
		engine:     eng,
		lifecycle:  newLifecycle(store, eng, config.Version, config.StaticAssets, logger),
		log:        logger,
		static:     store.Partition(partitionName(config.Version, purposeStatic)),
		dynamic:    store.Partition(partitionName(config.Version, purposeDynamic)),
		images:     store.Partition(partitionName(config.Version, purposeImages)),
	}, nil
}

// Install pre-populates the static partition. Errors propagate so the host
// can report the installation as failed and retry it.
func (w *Worker) Install(ctx context.Context) error {
	return w.lifecycle.Install(ctx)
}

// Activate deletes partitions from previous generations.
func (w *Worker) Activate(ctx context.Context) error {
	return w.lifecycle.Activate(ctx)
}

// Lifecycle exposes the two-phase handoff (prepare via Install/Activate,
// then Commit) and the readiness flag.
func (w *Worker) Lifecycle() *Lifecycle {
	return w.lifecycle
}

// ServeHTTP implements the http.Handler interface.
// It is the fetch trigger: the request is classified exactly once and handed
// to the matching strategy with its fixed target partition.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class := w.classifier.Classify(r.URL, r.Method)
	logger := w.log.With().
		Str("method", r.Method).
		Str("path", r.URL.RequestURI()).
		Str("class", string(class)).
		Logger()

	var res *http.Response
	var cacheStatus string

	switch class {
	case ClassStreaming:
		streamed, err := w.engine.streaming(r)
		if err != nil {
			logger.Error().Err(err).Msg("Streaming fetch failed")
			http.Error(rw, "Could not get response", http.StatusBadGateway)
			return
		}
		res, cacheStatus = streamed, "fwd=bypass"
	case ClassImage:
		res, cacheStatus = w.engine.cacheFirst(ctx, w.images, r)
	case ClassDocument:
		res, cacheStatus = w.engine.networkFirst(ctx, w.static, r)
	default:
		var err error
		res, cacheStatus, err = w.engine.opportunistic(ctx, w.dynamic, r)
		if err != nil {
			logger.Error().Err(err).Msg("Fetch failed and not cached")
			http.Error(rw, "Could not get response", http.StatusBadGateway)
			return
		}
	}

	logger.Trace().Str("cache-status", cacheStatus).Msg("Dispatched")
	if err := send(rw, res, cacheStatus); err != nil {
		logger.Warn().Err(err).Msg("Could not write response")
	}
}
