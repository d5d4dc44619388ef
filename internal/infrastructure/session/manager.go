package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// SpawnFunc produces a fresh worker process for a session. Injectable so
// tests can substitute scripted pipes.
type SpawnFunc func(ctx context.Context, sessionID string) (WorkerProcess, error)

// ManagerConfig bounds the registry.
type ManagerConfig struct {
	Session Config
	// IdleTimeout evicts sessions with no request or subscribe activity.
	IdleTimeout time.Duration
	// MaxSessions caps concurrent sessions; zero means unlimited.
	MaxSessions int
}

// Manager is the process-wide session registry. It is the single place
// that may spawn or kill worker processes; create, lookup and remove are
// serialized under one mutex so a timeout-driven eviction cannot race an
// in-flight create for the same id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// creating marks ids whose worker is being spawned; the channel is
	// closed when the spawn settles. The mutex is never held across a
	// spawn, so lookups stay responsive while a worker starts up.
	creating map[string]chan struct{}

	spawn   SpawnFunc
	cfg     ManagerConfig
	logger  *slog.Logger
	dropped atomic.Uint64

	janitorStop chan struct{}
	stopOnce    sync.Once
}

// NewManager builds the registry and starts the idle-eviction janitor.
func NewManager(spawn SpawnFunc, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		creating:    make(map[string]chan struct{}),
		spawn:       spawn,
		cfg:         cfg,
		logger:      logger,
		janitorStop: make(chan struct{}),
	}
	go m.janitor()
	return m
}

// GetOrCreate returns the live session with the given id, spawning a new
// worker when none exists. A session found dead or closed is removed
// first; it is never reused. Spawning happens outside the registry lock:
// one stalled worker startup never blocks lookups, health reporting or
// other sessions. A second caller racing the same id waits for the
// in-flight spawn instead of starting another worker.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	for {
		m.mu.Lock()
		if existing, ok := m.sessions[id]; ok {
			switch existing.State() {
			case StateReady, StateStarting:
				m.mu.Unlock()
				return existing, nil
			default:
				delete(m.sessions, id)
			}
		}
		if wait, ok := m.creating[id]; ok {
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if m.cfg.MaxSessions > 0 && len(m.sessions)+len(m.creating) >= m.cfg.MaxSessions {
			m.mu.Unlock()
			return nil, fmt.Errorf("session limit reached (%d)", m.cfg.MaxSessions)
		}
		done := make(chan struct{})
		m.creating[id] = done
		m.mu.Unlock()

		sess, err := m.startSession(ctx, id)

		m.mu.Lock()
		delete(m.creating, id)
		if err == nil {
			m.sessions[id] = sess
		}
		m.mu.Unlock()
		close(done)

		if err != nil {
			return nil, err
		}
		m.logger.Info("session created", "session", id)
		return sess, nil
	}
}

// startSession spawns the worker and waits for readiness. Runs without
// the registry lock.
func (m *Manager) startSession(ctx context.Context, id string) (*Session, error) {
	proc, err := m.spawn(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("spawn worker for session %s: %w", id, err)
	}
	sess, err := NewSession(id, proc, m.cfg.Session, &m.dropped, m.logger)
	if err != nil {
		return nil, err
	}
	sess.SetOnExit(m.remove)
	return sess, nil
}

// Get looks up a live session without creating one.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, review.ErrSessionNotFound
	}
	return sess, nil
}

// Close terminates one session. Idempotent: closing an unknown id is not
// an error.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		_ = sess.Close()
		m.logger.Info("session closed", "session", id)
	}
}

// Count reports the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Dropped reports the total messages dropped across all subscribers
// under backpressure.
func (m *Manager) Dropped() uint64 { return m.dropped.Load() }

// Shutdown closes every session and stops the janitor.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.janitorStop) })

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		_ = sess.Close()
	}
}

// remove is the session exit callback; it runs outside the session's
// locks and only drops the registry entry.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// janitor evicts idle sessions on a fraction of the idle timeout.
func (m *Manager) janitor() {
	interval := m.cfg.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.janitorStop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var expired []*Session
	for id, sess := range m.sessions {
		if sess.IdleSince().Before(cutoff) && sess.InFlight() == 0 {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.logger.Info("evicting idle session", "session", sess.ID)
		_ = sess.Close()
	}
}

// execProcess adapts exec.Cmd to WorkerProcess.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
func (p *execProcess) Wait() error { return p.cmd.Wait() }

// ExecSpawner spawns the server's own binary in worker mode. Worker
// stderr passes through so worker logs land in the server's stderr.
func ExecSpawner(args ...string) SpawnFunc {
	return func(ctx context.Context, sessionID string) (WorkerProcess, error) {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		cmd := exec.Command(self, args...)
		cmd.Env = append(os.Environ(), "REVIEWD_SESSION_ID="+sessionID)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start worker: %w", err)
		}
		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
	}
}
