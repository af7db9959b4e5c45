package proxy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/nimbus/internal/backend"
	"github.com/oriys/nimbus/internal/keystore"
)

// stubBackend records calls and answers every request with body/err.
type stubBackend struct {
	calls atomic.Int64
	body  string
	err   error
	gate  chan struct{} // when non-nil, Do blocks until it is closed

	mu   sync.Mutex
	last backend.Request
}

func (b *stubBackend) Do(ctx context.Context, req backend.Request) (string, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.last = req
	b.mu.Unlock()
	if b.gate != nil {
		<-b.gate
	}
	if b.err != nil {
		return "", b.err
	}
	return b.body, nil
}

func (b *stubBackend) lastRequest() backend.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// spyStore counts every store operation.
type spyStore struct {
	*keystore.MemoryStore
	ops    atomic.Int64
	putErr error
	getErr error
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: keystore.NewMemoryStore()}
}

func (s *spyStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.ops.Add(1)
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *spyStore) Put(ctx context.Context, key, value string) error {
	s.ops.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, key, value)
}

func (s *spyStore) Delete(ctx context.Context, key string) error {
	s.ops.Add(1)
	return s.MemoryStore.Delete(ctx, key)
}

func (s *spyStore) ListKeys(ctx context.Context) ([]string, error) {
	s.ops.Add(1)
	return s.MemoryStore.ListKeys(ctx)
}

func (s *spyStore) Clear(ctx context.Context) error {
	s.ops.Add(1)
	return s.MemoryStore.Clear(ctx)
}

func TestCachedGet_HitSkipsBackend(t *testing.T) {
	store := newSpyStore()
	be := &stubBackend{body: "remote"}
	p := New(store, be)
	ctx := context.Background()

	if err := store.MemoryStore.Put(ctx, "patients", "cached"); err != nil {
		t.Fatal(err)
	}

	got, err := p.CachedGet(ctx, "/rest/v1/patients", "tok", "patients")
	if err != nil {
		t.Fatalf("CachedGet failed: %v", err)
	}
	if got != "cached" {
		t.Fatalf("expected cached value, got %q", got)
	}
	if be.calls.Load() != 0 {
		t.Fatalf("backend should not be contacted on a hit, got %d calls", be.calls.Load())
	}
}

func TestCachedGet_MissPopulatesStore(t *testing.T) {
	store := newSpyStore()
	be := &stubBackend{body: `[{"id":42}]`}
	p := New(store, be)
	ctx := context.Background()

	got, err := p.CachedGet(ctx, "/rest/v1/patients?id=eq.42", "tok", "patients-42")
	if err != nil {
		t.Fatalf("CachedGet failed: %v", err)
	}
	if got != `[{"id":42}]` {
		t.Fatalf("unexpected body %q", got)
	}
	req := be.lastRequest()
	if req.Method != "GET" || req.Endpoint != "/rest/v1/patients?id=eq.42" || req.Token != "tok" || req.Body != nil {
		t.Fatalf("unexpected backend request %+v", req)
	}

	v, ok, err := store.MemoryStore.Get(ctx, "patients-42")
	if err != nil || !ok || v != got {
		t.Fatalf("store should hold the fetched body, got %q %v %v", v, ok, err)
	}

	// the second read is served locally
	if _, err := p.CachedGet(ctx, "/rest/v1/patients?id=eq.42", "tok", "patients-42"); err != nil {
		t.Fatal(err)
	}
	if be.calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", be.calls.Load())
	}
}

func TestCachedGet_NoKeyNeverTouchesStore(t *testing.T) {
	store := newSpyStore()
	be := &stubBackend{body: "fresh"}
	p := New(store, be)

	for i := 0; i < 2; i++ {
		got, err := p.CachedGet(context.Background(), "/x", "", "")
		if err != nil || got != "fresh" {
			t.Fatalf("CachedGet = %q, %v", got, err)
		}
	}
	if store.ops.Load() != 0 {
		t.Fatalf("store touched %d times without a key", store.ops.Load())
	}
	if be.calls.Load() != 2 {
		t.Fatalf("expected a fetch per call, got %d", be.calls.Load())
	}
}

func TestCachedGet_BackendFailureSurfaces(t *testing.T) {
	store := newSpyStore()
	berr := &backend.Error{Method: "GET", URL: "http://x/y", Err: errors.New("connection refused")}
	p := New(store, &stubBackend{err: berr})
	ctx := context.Background()

	_, err := p.CachedGet(ctx, "/y", "tok", "k")
	var got *backend.Error
	if !errors.As(err, &got) || got != berr {
		t.Fatalf("expected the backend error unchanged, got %v", err)
	}
	if _, ok, _ := store.MemoryStore.Get(ctx, "k"); ok {
		t.Fatal("nothing should be cached on failure")
	}
}

func TestCachedGet_WritebackFailureIsSwallowed(t *testing.T) {
	store := newSpyStore()
	store.putErr = &keystore.StorageIOError{Op: "put", Key: "k", Err: errors.New("disk full")}
	p := New(store, &stubBackend{body: "remote"})

	got, err := p.CachedGet(context.Background(), "/y", "tok", "k")
	if err != nil {
		t.Fatalf("write-back failure must not surface: %v", err)
	}
	if got != "remote" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestCachedGet_LookupFailureIsAMiss(t *testing.T) {
	store := newSpyStore()
	store.getErr = errors.New("unreadable")
	be := &stubBackend{body: "remote"}
	p := New(store, be)

	got, err := p.CachedGet(context.Background(), "/y", "tok", "k")
	if err != nil || got != "remote" {
		t.Fatalf("CachedGet = %q, %v", got, err)
	}
	if be.calls.Load() != 1 {
		t.Fatalf("expected fallback fetch, got %d calls", be.calls.Load())
	}
}

func TestCachedGet_CoalescesConcurrentMisses(t *testing.T) {
	store := newSpyStore()
	be := &stubBackend{body: "shared", gate: make(chan struct{})}
	p := New(store, be)

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.CachedGet(context.Background(), "/hot", "tok", "hot")
		}(i)
	}

	// wait for the first fetch to start, give the rest time to join it
	deadline := time.Now().Add(2 * time.Second)
	for be.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(be.gate)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil || results[i] != "shared" {
			t.Fatalf("caller %d got %q, %v", i, results[i], errs[i])
		}
	}
	if c := be.calls.Load(); c < 1 || c >= n {
		t.Fatalf("expected concurrent misses to share fetches, got %d calls for %d callers", c, n)
	}
}

func TestCachedGet_CallerCancellation(t *testing.T) {
	be := &stubBackend{body: "late", gate: make(chan struct{})}
	store := newSpyStore()
	p := New(store, be)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.CachedGet(ctx, "/slow", "tok", "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// the detached fetch still completes and fills the cache
	close(be.gate)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok, _ := store.MemoryStore.Get(context.Background(), "slow"); ok {
			if v != "late" {
				t.Fatalf("unexpected cached value %q", v)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("detached fetch never wrote back")
}

func TestWrite_NeverTouchesStore(t *testing.T) {
	store := newSpyStore()
	be := &stubBackend{body: `{"id":1}`}
	p := New(store, be)

	for _, m := range []string{"POST", "patch", "Delete"} {
		got, err := p.Write(context.Background(), m, "/rest/v1/patients", []byte(`{"a":1}`), "tok")
		if err != nil {
			t.Fatalf("Write(%s) failed: %v", m, err)
		}
		if got != `{"id":1}` {
			t.Fatalf("unexpected body %q", got)
		}
	}
	if store.ops.Load() != 0 {
		t.Fatalf("Write touched the store %d times", store.ops.Load())
	}
	if req := be.lastRequest(); req.Method != "DELETE" || string(req.Body) != `{"a":1}` || req.Token != "tok" {
		t.Fatalf("unexpected backend request %+v", req)
	}
}

func TestWrite_UnsupportedMethod(t *testing.T) {
	be := &stubBackend{}
	p := New(newSpyStore(), be)

	for _, m := range []string{"GET", "PUT", "", "HEAD"} {
		if _, err := p.Write(context.Background(), m, "/x", nil, ""); !errors.Is(err, ErrUnsupportedMethod) {
			t.Fatalf("Write(%q): expected ErrUnsupportedMethod, got %v", m, err)
		}
	}
	if be.calls.Load() != 0 {
		t.Fatal("unsupported methods must not reach the backend")
	}
}

func TestWrite_BackendFailureSurfaces(t *testing.T) {
	berr := &backend.Error{Method: "POST", Err: errors.New("timeout")}
	p := New(newSpyStore(), &stubBackend{err: berr})

	if _, err := p.Write(context.Background(), "POST", "/x", nil, ""); !errors.Is(err, berr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestScenario_OfflineReadAfterOnlineFetch(t *testing.T) {
	store := keystore.NewFileStore(t.TempDir())
	be := &stubBackend{body: `[{"id":42,"name":"Ana"}]`}
	p := New(store, be)
	ctx := context.Background()

	if _, err := p.CachedGet(ctx, "/rest/v1/patients?id=eq.42", "tok", "patients-42"); err != nil {
		t.Fatal(err)
	}

	// go offline: any further fetch would fail
	be.err = &backend.Error{Method: "GET", Err: errors.New("no route to host")}

	got, err := p.CachedGet(ctx, "/rest/v1/patients?id=eq.42", "tok", "patients-42")
	if err != nil {
		t.Fatalf("offline read should be served from cache: %v", err)
	}
	if got != `[{"id":42,"name":"Ana"}]` {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestGet_ReportsSource(t *testing.T) {
	store := newSpyStore()
	p := New(store, &stubBackend{body: "remote"})
	ctx := context.Background()

	first, err := p.Get(ctx, "/x", "", "k")
	if err != nil || first.FromCache || first.Body != "remote" {
		t.Fatalf("first Get = %+v, %v", first, err)
	}
	second, err := p.Get(ctx, "/x", "", "k")
	if err != nil || !second.FromCache || second.Body != "remote" {
		t.Fatalf("second Get = %+v, %v", second, err)
	}
}
