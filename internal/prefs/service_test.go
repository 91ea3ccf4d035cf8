package prefs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/backends/memory"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/gateway"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/kv"
	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

// prefsServer is a scripted preference backend: it counts calls per
// route and captures the batched PUT payloads.
type prefsServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	snapshot    map[string]any
	putPayloads []map[string]any
	removePaths [][]string
	putGate     chan struct{}
	getCount    atomic.Int64
	failPuts    atomic.Bool
}

func newPrefsServer(snapshot map[string]any) *prefsServer {
	p := &prefsServer{snapshot: snapshot}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *prefsServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/preferences/":
		p.getCount.Add(1)
		p.mu.Lock()
		raw, _ := json.Marshal(p.snapshot)
		p.mu.Unlock()
		_, _ = w.Write(raw)

	case r.Method == http.MethodPut && r.URL.Path == "/preferences/":
		if p.failPuts.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		p.mu.Lock()
		gate := p.putGate
		p.mu.Unlock()
		if gate != nil {
			<-gate
		}
		body, _ := io.ReadAll(r.Body)
		var envelope struct {
			Preferences map[string]any `json:"preferences"`
		}
		_ = json.Unmarshal(body, &envelope)
		p.mu.Lock()
		p.putPayloads = append(p.putPayloads, envelope.Preferences)
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodDelete && r.URL.Path == "/preferences/remove":
		p.mu.Lock()
		p.removePaths = append(p.removePaths, r.URL.Query()["path"])
		p.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && r.URL.Path == "/preferences/set":
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodDelete && r.URL.Path == "/preferences/clear":
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *prefsServer) puts() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any{}, p.putPayloads...)
}

type ServiceSuite struct {
	suite.Suite

	backend *prefsServer
	store   *kv.Store
	svc     *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = newPrefsServer(map[string]any{})
	s.store = kv.New(memory.New())
	s.svc = s.newService()
}

func (s *ServiceSuite) TearDownTest() {
	s.svc.CancelPendingSync()
	s.backend.srv.Close()
}

// newService wires a Service against the scripted backend with a short
// debounce so tests settle quickly.
func (s *ServiceSuite) newService() *Service {
	return s.newServiceCfg(types.ClientConfig{
		BaseURL:        s.backend.srv.URL,
		SyncDebounceMS: 30,
	})
}

func (s *ServiceSuite) newServiceCfg(cfg types.ClientConfig) *Service {
	tokens := gateway.NewTokenStore(s.store)
	s.Require().NoError(tokens.Save(context.Background(), types.TokenPair{AccessToken: "token"}))
	signals := gateway.NewSignalBus(types.LoginGracePeriod)
	broker := gateway.NewBroker(tokens, signals)
	gw := gateway.New(cfg, s.backend.srv.Client(), tokens, broker, signals)
	return NewService(cfg, s.store, gw, nil)
}

func (s *ServiceSuite) waitForSync() {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.svc.Pending() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.FailNow("pending changes were not synced in time")
}

// A burst of rapid writes must collapse into a single batched PUT whose
// payload carries the final value of every touched path.
func (s *ServiceSuite) TestDebounceCollapsesBurst() {
	for i := 0; i < 10; i++ {
		s.svc.Set([]string{"dashboard", "layout"}, map[string]any{"columns": float64(i)})
	}
	s.svc.Set([]string{"theme"}, "dark")
	s.waitForSync()

	puts := s.backend.puts()
	s.Require().Len(puts, 1)
	s.Equal("dark", puts[0]["theme"])
	layout := puts[0]["dashboard"].(map[string]any)["layout"].(map[string]any)
	s.Equal(float64(9), layout["columns"])
}

// Reads see mutations immediately, before any sync happens.
func (s *ServiceSuite) TestSynchronousVisibility() {
	s.svc.Set([]string{"locale"}, "de")
	v, ok := s.svc.Get("locale")
	s.True(ok)
	s.Equal("de", v)
	s.Equal(1, s.svc.Pending())
}

func (s *ServiceSuite) TestInitializeEmptyCacheFetches() {
	s.backend.mu.Lock()
	s.backend.snapshot = map[string]any{"theme": "light"}
	s.backend.mu.Unlock()

	s.Require().NoError(s.svc.Initialize(context.Background(), false))
	s.Equal(int64(1), s.backend.getCount.Load())
	v, ok := s.svc.Get("theme")
	s.True(ok)
	s.Equal("light", v)
}

// A valid persisted cache short-circuits Initialize with zero fetches.
func (s *ServiceSuite) TestInitializeValidCacheSkipsFetch() {
	s.Require().NoError(s.store.SetJSON(context.Background(), types.KeyPreferences,
		map[string]any{"theme": "dark"}))

	s.Require().NoError(s.svc.Initialize(context.Background(), false))
	s.Equal(int64(0), s.backend.getCount.Load())
	v, _ := s.svc.Get("theme")
	s.Equal("dark", v)
}

// forceReload fetches and merges; a pending local change newer than the
// last sync survives the incoming snapshot.
func (s *ServiceSuite) TestForceReloadMergePreservesPending() {
	s.backend.mu.Lock()
	s.backend.snapshot = map[string]any{"theme": "light", "locale": "en"}
	s.backend.mu.Unlock()

	s.svc.SetOnline(false) // keep the change pending, no sync
	s.svc.Set([]string{"theme"}, "dark")

	s.Require().NoError(s.svc.Initialize(context.Background(), true))
	v, _ := s.svc.Get("theme")
	s.Equal("dark", v) // local pending wins
	v, _ = s.svc.Get("locale")
	s.Equal("en", v) // server value adopted
}

// Offline mutations accumulate; reconnecting flushes them all in one
// automatic batch.
func (s *ServiceSuite) TestOfflineAccumulateThenFlushOnReconnect() {
	s.svc.SetOnline(false)
	s.svc.Set([]string{"a"}, float64(1))
	s.svc.Set([]string{"b"}, float64(2))
	s.svc.Set([]string{"c"}, float64(3))
	s.Equal(3, s.svc.Pending())
	time.Sleep(60 * time.Millisecond) // past the debounce window
	s.Empty(s.backend.puts())

	s.svc.SetOnline(true)
	s.waitForSync()

	puts := s.backend.puts()
	s.Require().Len(puts, 1)
	s.Equal(float64(1), puts[0]["a"])
	s.Equal(float64(2), puts[0]["b"])
	s.Equal(float64(3), puts[0]["c"])
}

// A failed batch keeps every unacknowledged change pending and leaves
// the cache untouched; a later flush retries the same changes.
func (s *ServiceSuite) TestFailedSyncKeepsPending() {
	s.backend.failPuts.Store(true)
	s.svc.Set([]string{"theme"}, "dark")

	err := s.svc.Flush(context.Background())
	s.ErrorIs(err, types.ErrSync)
	s.Equal(1, s.svc.Pending())
	v, _ := s.svc.Get("theme")
	s.Equal("dark", v)

	s.backend.failPuts.Store(false)
	s.Require().NoError(s.svc.Flush(context.Background()))
	s.Equal(0, s.svc.Pending())
	s.Require().Len(s.backend.puts(), 1)
}

// More pending changes than the batch cap spill into follow-up calls;
// together the batches carry every change exactly once.
func (s *ServiceSuite) TestBatchSpillOver() {
	s.svc = s.newServiceCfg(types.ClientConfig{
		BaseURL:        s.backend.srv.URL,
		SyncDebounceMS: 60000, // only the explicit flush syncs
		MaxBatchSize:   2,
	})
	paths := []string{"a", "b", "c", "d", "e"}
	for i, p := range paths {
		s.svc.Set([]string{p}, float64(i))
	}

	s.Require().NoError(s.svc.Flush(context.Background()))
	s.Equal(0, s.svc.Pending())

	puts := s.backend.puts()
	s.Require().Len(puts, 3)
	merged := map[string]any{}
	for _, payload := range puts {
		s.LessOrEqual(len(payload), 2)
		for k, v := range payload {
			merged[k] = v
		}
	}
	for i, p := range paths {
		s.Equal(float64(i), merged[p])
	}
}

// A second Flush arriving while a sync is on the wire must wait for
// that call to settle instead of resolving early.
func (s *ServiceSuite) TestFlushWaitsForInFlightSync() {
	gate := make(chan struct{})
	s.backend.mu.Lock()
	s.backend.putGate = gate
	s.backend.mu.Unlock()

	s.svc.Set([]string{"theme"}, "dark")
	first := make(chan error, 1)
	go func() { first <- s.svc.Flush(context.Background()) }()
	time.Sleep(30 * time.Millisecond) // the first flush is now blocked in its PUT

	second := make(chan error, 1)
	go func() { second <- s.svc.Flush(context.Background()) }()

	select {
	case <-second:
		s.FailNow("flush resolved while a sync was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	s.NoError(<-first)
	s.NoError(<-second)
	s.Equal(0, s.svc.Pending())
}

// A waiting Flush still honors its context.
func (s *ServiceSuite) TestFlushWaitHonorsContext() {
	gate := make(chan struct{})
	s.backend.mu.Lock()
	s.backend.putGate = gate
	s.backend.mu.Unlock()

	s.svc.Set([]string{"theme"}, "dark")
	first := make(chan error, 1)
	go func() { first <- s.svc.Flush(context.Background()) }()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ErrorIs(s.svc.Flush(ctx), context.Canceled)

	close(gate)
	s.NoError(<-first)
}

func (s *ServiceSuite) TestCancelPendingSyncKeepsChanges() {
	s.svc.Set([]string{"theme"}, "dark")
	s.svc.CancelPendingSync()
	time.Sleep(60 * time.Millisecond)
	s.Empty(s.backend.puts())
	s.Equal(1, s.svc.Pending())
}

// Removals ride the same debounced cycle as writes, as DELETE calls
// with the path spelled out in query params.
func (s *ServiceSuite) TestRemoveSyncs() {
	s.svc.Set([]string{"dashboard", "layout"}, "grid")
	s.svc.Remove("dashboard", "layout")
	s.waitForSync()

	_, ok := s.svc.Get("dashboard", "layout")
	s.False(ok)
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.Require().Len(s.backend.removePaths, 1)
	s.Equal([]string{"dashboard", "layout"}, s.backend.removePaths[0])
}

func (s *ServiceSuite) TestSetNowBypassesDebounce() {
	s.Require().NoError(s.svc.SetNow(context.Background(), []string{"theme"}, "dark"))
	s.Equal(0, s.svc.Pending())
	v, _ := s.svc.Get("theme")
	s.Equal("dark", v)
}

// Update fans a partial tree out into per-leaf pending changes, so a
// later Set on one leaf supersedes only that leaf.
func (s *ServiceSuite) TestUpdateFlattensLeaves() {
	s.svc.SetOnline(false)
	s.svc.Update(map[string]any{
		"notifications": map[string]any{"email": true, "sms": false},
	})
	s.Equal(2, s.svc.Pending())
	s.svc.Set([]string{"notifications", "email"}, false)
	s.Equal(2, s.svc.Pending())
	v, _ := s.svc.Get("notifications", "email")
	s.Equal(false, v)
}

// Mutations survive a restart: a new Service over the same store picks
// up both the tree and the unsynced pending set.
func (s *ServiceSuite) TestPendingSurvivesRestart() {
	s.svc.SetOnline(false)
	s.svc.Set([]string{"theme"}, "dark")

	revived := s.newService()
	s.Require().NoError(revived.Initialize(context.Background(), false))
	s.Equal(1, revived.Pending())
	v, _ := revived.Get("theme")
	s.Equal("dark", v)
}

func (s *ServiceSuite) TestClearWipesEverything() {
	s.svc.SetOnline(false)
	s.svc.Set([]string{"theme"}, "dark")

	s.Require().NoError(s.svc.Clear(context.Background()))
	s.Equal(0, s.svc.Pending())
	s.Empty(s.svc.GetAll())

	var tree map[string]any
	err := s.store.GetJSON(context.Background(), types.KeyPreferences, &tree)
	s.ErrorIs(err, types.ErrNotFound)
}
