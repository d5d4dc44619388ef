package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/session"
)

func fakeSpawner() session.SpawnFunc {
	return func(ctx context.Context, sessionID string) (session.WorkerProcess, error) {
		return newFakeWorker(echoScript), nil
	}
}

func newTestManager(t *testing.T, cfg session.ManagerConfig) *session.Manager {
	t.Helper()
	if cfg.Session.StartupTimeout == 0 {
		cfg.Session = testConfig()
	}
	m := session.NewManager(fakeSpawner(), cfg, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func TestManager_GetOrCreate(t *testing.T) {
	m := newTestManager(t, session.ManagerConfig{})

	a, err := m.GetOrCreate(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := m.GetOrCreate(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if a != b {
		t.Error("expected the same session for the same id")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d", m.Count())
	}
}

func TestManager_EmptyIDRejected(t *testing.T) {
	m := newTestManager(t, session.ManagerConfig{})
	if _, err := m.GetOrCreate(context.Background(), ""); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := newTestManager(t, session.ManagerConfig{})

	if _, err := m.GetOrCreate(context.Background(), "s-1"); err != nil {
		t.Fatal(err)
	}
	m.Close("s-1")
	m.Close("s-1")
	m.Close("never-existed")

	if _, err := m.Get("s-1"); !errors.Is(err, review.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_DeadSessionRemovedFromLookup(t *testing.T) {
	// P4 continued: after the worker dies the session disappears from
	// subsequent lookups.
	var worker *fakeWorker
	spawn := func(ctx context.Context, id string) (session.WorkerProcess, error) {
		worker = newFakeWorker(echoScript)
		return worker, nil
	}
	m := session.NewManager(spawn, session.ManagerConfig{Session: testConfig()}, nil)
	t.Cleanup(m.Shutdown)

	sess, err := m.GetOrCreate(context.Background(), "s-dying")
	if err != nil {
		t.Fatal(err)
	}
	_ = worker.Kill()
	waitForState(t, sess, session.StateDead)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Get("s-dying"); errors.Is(err, review.ErrSessionNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("dead session still visible in registry")
}

func TestManager_SessionScopedRequestIDs(t *testing.T) {
	// Scenario C: two sessions issue overlapping request ids and each
	// receives its own correlated responses.
	spawn := func(ctx context.Context, id string) (session.WorkerProcess, error) {
		tag := id
		return newFakeWorker(func(w *fakeWorker) {
			w.emitReady()
			scanner := newLineScanner(w)
			for scanner.Scan() {
				var req session.Message
				if json.Unmarshal(scanner.Bytes(), &req) != nil {
					continue
				}
				w.emit(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":{"from":"%s"}}`, req.ID, tag))
			}
		}), nil
	}
	m := session.NewManager(spawn, session.ManagerConfig{Session: testConfig()}, nil)
	t.Cleanup(m.Shutdown)

	s1, err := m.GetOrCreate(context.Background(), "alpha")
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.GetOrCreate(context.Background(), "beta")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 2)
	check := func(sess *session.Session, want string) {
		resp, err := sess.Call(context.Background(), "who", nil, json.RawMessage(`"shared-id"`))
		if err != nil {
			done <- err
			return
		}
		if !strings.Contains(string(resp.Result), want) {
			done <- fmt.Errorf("cross-talk: session %s got %s", want, resp.Result)
			return
		}
		done <- nil
	}
	go check(s1, "alpha")
	go check(s2, "beta")

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}

func TestManager_IdleEviction(t *testing.T) {
	m := session.NewManager(fakeSpawner(), session.ManagerConfig{
		Session:     testConfig(),
		IdleTimeout: 300 * time.Millisecond,
	}, nil)
	t.Cleanup(m.Shutdown)

	if _, err := m.GetOrCreate(context.Background(), "s-idle"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("idle session was never evicted")
}

func TestManager_LookupsNotBlockedBySlowSpawn(t *testing.T) {
	// A worker that stalls during startup must not freeze the registry:
	// health counts and lookups for other sessions keep answering.
	release := make(chan struct{})
	spawn := func(ctx context.Context, id string) (session.WorkerProcess, error) {
		if id == "slow" {
			<-release
		}
		return newFakeWorker(echoScript), nil
	}
	m := session.NewManager(spawn, session.ManagerConfig{Session: testConfig()}, nil)
	t.Cleanup(m.Shutdown)
	t.Cleanup(func() { close(release) })

	created := make(chan error, 1)
	go func() {
		_, err := m.GetOrCreate(context.Background(), "slow")
		created <- err
	}()

	// Give the goroutine time to enter the spawn.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if m.Count() != 0 {
		t.Errorf("count = %d before the slow session settles", m.Count())
	}
	if _, err := m.Get("slow"); !errors.Is(err, review.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound mid-spawn, got %v", err)
	}
	m.Close("slow")
	if _, err := m.GetOrCreate(context.Background(), "other"); err != nil {
		t.Fatalf("unrelated create: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("registry operations took %v while a spawn was stalled", elapsed)
	}

	release <- struct{}{}
	if err := <-created; err != nil {
		t.Fatalf("slow create: %v", err)
	}
	if _, err := m.Get("slow"); err != nil {
		t.Errorf("slow session missing after spawn settled: %v", err)
	}
}

func TestManager_ConcurrentCreateSameID(t *testing.T) {
	// Two racing creates for one id share a single worker.
	var spawns atomic.Int32
	spawn := func(ctx context.Context, id string) (session.WorkerProcess, error) {
		spawns.Add(1)
		time.Sleep(100 * time.Millisecond)
		return newFakeWorker(echoScript), nil
	}
	m := session.NewManager(spawn, session.ManagerConfig{Session: testConfig()}, nil)
	t.Cleanup(m.Shutdown)

	const callers = 4
	results := make(chan *session.Session, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			sess, err := m.GetOrCreate(context.Background(), "shared")
			if err != nil {
				errs <- err
				return
			}
			results <- sess
		}()
	}

	var first *session.Session
	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("create: %v", err)
		case sess := <-results:
			if first == nil {
				first = sess
			} else if sess != first {
				t.Error("racing creates produced different sessions")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("create never settled")
		}
	}
	if got := spawns.Load(); got != 1 {
		t.Errorf("spawned %d workers, want 1", got)
	}
}

func TestManager_MaxSessions(t *testing.T) {
	m := newTestManager(t, session.ManagerConfig{MaxSessions: 1, Session: testConfig()})

	if _, err := m.GetOrCreate(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrCreate(context.Background(), "two"); err == nil {
		t.Error("expected session limit error")
	}
}
