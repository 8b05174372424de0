package offcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/offcache/offcache/cache"
)

// newTestWorker builds a worker backed by a MemCache pointed at the given
// origin server.
func newTestWorker(t *testing.T, origin *httptest.Server, config Config) *Worker {
	t.Helper()
	originURL, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}
	if config.Version == "" {
		config.Version = "v1"
	}
	if config.Cache == nil {
		config.Cache = cache.NewMemCache()
	}
	config.OriginURL = *originURL
	logger := zerolog.Nop()
	config.Logger = &logger
	worker, err := NewWorker(config)
	if err != nil {
		t.Fatal(err)
	}
	return worker
}

func doRequest(worker *Worker, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	worker.ServeHTTP(rr, req)
	return rr
}

func TestCacheFirstFetchesOnce(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		w.Write([]byte("image bytes"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{})

	first := doRequest(worker, "GET", "/logo.png")
	second := doRequest(worker, "GET", "/logo.png")

	if fetchCount != 1 {
		t.Fatalf("Origin fetched %d times, want 1", fetchCount)
	}
	if body, _ := io.ReadAll(second.Result().Body); string(body) != "image bytes" {
		t.Fatalf("Body is %s", body)
	}
	if cs := first.Result().Header.Get("Cache-Status"); !strings.Contains(cs, "fwd=miss") {
		t.Fatalf("First Cache-Status is %q", cs)
	}
	if cs := second.Result().Header.Get("Cache-Status"); !strings.Contains(cs, "hit") {
		t.Fatalf("Second Cache-Status is %q", cs)
	}
}

func TestCacheFirstOfflineReturnsNotFound(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	origin.Close()
	worker := newTestWorker(t, origin, Config{})

	rr := doRequest(worker, "GET", "/logo.png")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Status is %d, want 404", rr.Code)
	}
	if body, _ := io.ReadAll(rr.Result().Body); len(body) != 0 {
		t.Fatalf("Expected empty body, got %s", body)
	}
}

func TestCacheFirstDoesNotStoreErrorResponses(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{})

	doRequest(worker, "GET", "/logo.png")
	doRequest(worker, "GET", "/logo.png")

	// nothing cached, so both requests hit the origin
	if fetchCount != 2 {
		t.Fatalf("Origin fetched %d times, want 2", fetchCount)
	}
}

func TestNetworkFirstPrefersFreshContent(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		fmt.Fprintf(w, "revision %d", fetchCount)
	}))
	worker := newTestWorker(t, origin, Config{})

	doRequest(worker, "GET", "/index.html")
	second := doRequest(worker, "GET", "/index.html")

	if fetchCount != 2 {
		t.Fatalf("Origin fetched %d times, want 2", fetchCount)
	}
	if body, _ := io.ReadAll(second.Result().Body); string(body) != "revision 2" {
		t.Fatalf("Body is %s", body)
	}

	// the latest revision was stored; serve it once the origin is gone
	origin.Close()
	offline := doRequest(worker, "GET", "/index.html")
	if body, _ := io.ReadAll(offline.Result().Body); string(body) != "revision 2" {
		t.Fatalf("Offline body is %s", body)
	}
	if cs := offline.Result().Header.Get("Cache-Status"); !strings.Contains(cs, "hit") {
		t.Fatalf("Offline Cache-Status is %q", cs)
	}
}

func TestNetworkFirstOfflineWithoutEntryReturns503(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	origin.Close()
	worker := newTestWorker(t, origin, Config{})

	rr := doRequest(worker, "GET", "/index.html")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Status is %d, want 503", rr.Code)
	}
}

func TestStreamingNeverTouchesTheStore(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		w.Write([]byte("live audio"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{
		StreamingDomains: []string{"/live/"},
	})

	doRequest(worker, "GET", "/live/main.png")
	doRequest(worker, "GET", "/live/main.png")

	if fetchCount != 2 {
		t.Fatalf("Origin fetched %d times, want 2", fetchCount)
	}
	names, err := worker.engine.store.PartitionNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("Partitions written by streaming request: %v", names)
	}
}

func TestStreamingFailurePropagates(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	origin.Close()
	worker := newTestWorker(t, origin, Config{
		StreamingDomains: []string{"/live/"},
	})

	rr := doRequest(worker, "GET", "/live/main")

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Status is %d, want 502", rr.Code)
	}
}

func TestOpportunisticCachesSuccessfulGets(t *testing.T) {
	var fetchCount int
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetchCount++
		w.Write([]byte("api payload"))
	}))
	worker := newTestWorker(t, origin, Config{})
	storeDone := make(chan struct{}, 1)
	worker.engine.storeDone = storeDone

	first := doRequest(worker, "GET", "/api/data")
	if body, _ := io.ReadAll(first.Result().Body); string(body) != "api payload" {
		t.Fatalf("Body is %s", body)
	}
	<-storeDone

	origin.Close()
	second := doRequest(worker, "GET", "/api/data")

	if fetchCount != 1 {
		t.Fatalf("Origin fetched %d times, want 1", fetchCount)
	}
	if body, _ := io.ReadAll(second.Result().Body); string(body) != "api payload" {
		t.Fatalf("Offline body is %s", body)
	}
}

func TestOpportunisticFailurePropagates(t *testing.T) {
	origin := httptest.NewServer(http.NotFoundHandler())
	origin.Close()
	worker := newTestWorker(t, origin, Config{})

	rr := doRequest(worker, "GET", "/api/data")

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("Status is %d, want 502", rr.Code)
	}
}

func TestOpportunisticDoesNotCacheNonGet(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("created"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{})

	doRequest(worker, "POST", "/api/data")

	names, err := worker.engine.store.PartitionNames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("Partitions written by POST request: %v", names)
	}
}

// failingCache accepts reads but rejects every write.
type failingCache struct {
	cache.MemCache
}

func (f failingCache) Put(ctx context.Context, key string, bytes []byte) error {
	return fmt.Errorf("disk full")
}

func TestOpportunisticWriteFailureDoesNotAffectResponse(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("api payload"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{
		Cache: failingCache{cache.NewMemCache()},
	})
	storeDone := make(chan struct{}, 1)
	worker.engine.storeDone = storeDone

	rr := doRequest(worker, "GET", "/api/data")
	<-storeDone

	if rr.Code != http.StatusOK {
		t.Fatalf("Status is %d, want 200", rr.Code)
	}
	if body, _ := io.ReadAll(rr.Result().Body); string(body) != "api payload" {
		t.Fatalf("Body is %s", body)
	}
}

func TestFetchPreservesMethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Client")
		w.Write([]byte("ok"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin, Config{})

	req := httptest.NewRequest("PUT", "/api/data", strings.NewReader("body"))
	req.Header.Set("X-Client", "radio-app")
	worker.ServeHTTP(httptest.NewRecorder(), req)

	if gotMethod != "PUT" {
		t.Fatalf("Origin saw method %s", gotMethod)
	}
	if gotHeader != "radio-app" {
		t.Fatalf("Origin saw X-Client %q", gotHeader)
	}
}
