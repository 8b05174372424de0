package offcache

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/offcache/offcache/cache"
	serializer "github.com/offcache/offcache/pkg/response-serializer"
)

// engine implements the caching strategies on top of the partitioned store
// and the origin fetch. Strategy methods return the response to deliver along
// with a Cache-Status parameter string describing how it was obtained.
//
// There is deliberately no timeout and no retry on the origin fetch: a
// request is attempted exactly once, and an unresponsive origin blocks that
// single request.
type engine struct {
	store  *cache.Store
	origin url.URL
	client *http.Client
	log    zerolog.Logger

	// storeDone, if set, receives a signal after every asynchronous store
	// write attempt. Used by tests to synchronize on fire-and-forget writes.
	storeDone chan struct{}
}

func newEngine(store *cache.Store, origin url.URL, logger zerolog.Logger) *engine {
	return &engine{
		store:  store,
		origin: origin,
		log:    logger,
		client: &http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// cacheKey canonicalizes a request into its cache entry key.
func cacheKey(r *http.Request) string {
	return r.Method + ":" + r.URL.RequestURI()
}

// fetch requests the resource from the origin, preserving the incoming
// request's method, headers and body.
func (e *engine) fetch(r *http.Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, e.origin.String()+r.URL.RequestURI(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	req.Host = e.origin.Host
	res, err := e.client.Do(req)
	if err != nil {
		fetchErrors.Inc()
	}
	return res, err
}

// cacheFirst serves from the partition if the entry exists, no matter how
// old it is. On a miss it fetches from the origin and stores the response.
// It always produces a response: if the origin is unreachable the caller
// gets a synthetic 404 rather than an error.
func (e *engine) cacheFirst(ctx context.Context, p cache.Partition, r *http.Request) (*http.Response, string) {
	key := cacheKey(r)

	if res, ok := e.getStored(ctx, p, key); ok {
		cacheHits.WithLabelValues(p.Name()).Inc()
		return res, "hit"
	}
	cacheMisses.WithLabelValues(p.Name()).Inc()

	res, err := e.fetch(r)
	if err != nil {
		e.log.Debug().Err(err).Str("key", key).Msg("Offline and not cached")
		return syntheticResponse(http.StatusNotFound, r), "fwd=miss; fwd-status=404"
	}
	if successful(res) {
		e.put(ctx, p, key, res)
	}
	return res, "fwd=miss"
}

// networkFirst fetches from the origin and stores successful responses,
// overwriting any prior entry. If the fetch fails it falls back to any
// stored entry for the key, and failing that returns a synthetic 503.
// Freshness wins over availability whenever the network is reachable.
func (e *engine) networkFirst(ctx context.Context, p cache.Partition, r *http.Request) (*http.Response, string) {
	key := cacheKey(r)

	res, err := e.fetch(r)
	if err == nil {
		if successful(res) {
			e.put(ctx, p, key, res)
			return res, "fwd=request; stored"
		}
		return res, "fwd=request"
	}

	e.log.Debug().Err(err).Str("key", key).Msg("Origin unreachable, falling back to cache")
	if res, ok := e.getAnywhere(ctx, key); ok {
		cacheHits.WithLabelValues(p.Name()).Inc()
		return res, "hit; fwd=request"
	}
	return syntheticResponse(http.StatusServiceUnavailable, r), "fwd=request; fwd-status=503"
}

// opportunistic fetches from the origin and, for successful GET responses,
// stores a copy without blocking the response path. The store write is
// best-effort: failures are logged and counted, never surfaced.
// If the fetch fails and no partition holds the key, the error propagates.
func (e *engine) opportunistic(ctx context.Context, p cache.Partition, r *http.Request) (*http.Response, string, error) {
	key := cacheKey(r)

	res, err := e.fetch(r)
	if err == nil {
		if successful(res) && r.Method == http.MethodGet {
			e.putAsync(p, key, res)
			return res, "fwd=miss; stored", nil
		}
		return res, "fwd=miss", nil
	}

	if res, ok := e.getAnywhere(ctx, key); ok {
		cacheHits.WithLabelValues(p.Name()).Inc()
		return res, "hit", nil
	}
	return nil, "", err
}

// streaming passes the fetch result through verbatim.
// The store is never consulted or written.
func (e *engine) streaming(r *http.Request) (*http.Response, error) {
	return e.fetch(r)
}

// getStored reads and deserializes the entry for key from the partition.
// A corrupted entry is purged and treated as a miss.
func (e *engine) getStored(ctx context.Context, p cache.Partition, key string) (*http.Response, bool) {
	bytes, ok, err := p.Get(ctx, key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	res, err := serializer.BytesToResponse(bytes)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("Corrupted cache entry, purging")
		if err := p.Purge(ctx, key); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("Could not purge cache entry")
		}
		return nil, false
	}
	return res, true
}

// getAnywhere looks the key up across all partitions.
func (e *engine) getAnywhere(ctx context.Context, key string) (*http.Response, bool) {
	bytes, ok, err := e.store.Lookup(ctx, key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	res, err := serializer.BytesToResponse(bytes)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("Corrupted cache entry")
		return nil, false
	}
	return res, true
}

// put stores the response under key. The response body stays readable for
// the caller. A write failure is logged but does not affect the response.
func (e *engine) put(ctx context.Context, p cache.Partition, key string, res *http.Response) {
	bytes, err := serializer.ResponseToBytes(res)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return
	}
	if err := p.Put(ctx, key, bytes); err != nil {
		storeWriteFailures.Inc()
		e.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		return
	}
	e.log.Trace().Str("key", key).Str("partition", p.Name()).Msg("Cache write")
}

// putAsync serializes the response synchronously (the body must be captured
// before the caller consumes it) and performs the store write on a separate
// goroutine so it cannot delay the response.
func (e *engine) putAsync(p cache.Partition, key string, res *http.Response) {
	bytes, err := serializer.ResponseToBytes(res)
	if err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return
	}
	go func() {
		// detached from the request context: the write outlives the response
		if err := p.Put(context.Background(), key, bytes); err != nil {
			storeWriteFailures.Inc()
			e.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		} else {
			e.log.Trace().Str("key", key).Str("partition", p.Name()).Msg("Cache write")
		}
		if e.storeDone != nil {
			e.storeDone <- struct{}{}
		}
	}()
}

// successful reports whether the response status is in the success range.
// Only successful responses are ever written to the store.
func successful(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode < 300
}

// syntheticResponse builds a placeholder response with an empty body.
// It is used when neither the network nor the store can serve the request,
// so the caller always receives a structured response.
func syntheticResponse(status int, r *http.Request) *http.Response {
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       r,
	}
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// send writes the response to the client.
func send(w http.ResponseWriter, res *http.Response, cacheStatus string) error {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Cache-Status", "Offcache; "+cacheStatus)
	w.WriteHeader(res.StatusCode)
	_, err := io.Copy(w, res.Body)
	return err
}
