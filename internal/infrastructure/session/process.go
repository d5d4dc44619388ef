package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// Message is the NDJSON JSON-RPC envelope exchanged with a worker.
// Inbound lines carrying an id are responses correlated to a pending
// call; lines without one are session-wide notifications.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a structured JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WorkerProcess abstracts the spawned child so tests can substitute
// scripted pipes for a real process.
type WorkerProcess interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Kill() error
	Wait() error
}

// Config bounds a session's resource usage.
type Config struct {
	// StartupTimeout bounds the wait for the worker's readiness line.
	StartupTimeout time.Duration
	// CloseGrace is how long in-flight requests may finish before the
	// process is forcibly terminated.
	CloseGrace time.Duration
	// MaxLineBytes is the defensive bound on one stdout line; beyond it
	// the session is marked dead so a misbehaving worker cannot exhaust
	// memory.
	MaxLineBytes int
	// SubscriberBuffer is the per-subscriber bounded queue length.
	SubscriberBuffer int
}

// DefaultConfig returns the documented session bounds.
func DefaultConfig() Config {
	return Config{
		StartupTimeout:   10 * time.Second,
		CloseGrace:       5 * time.Second,
		MaxLineBytes:     5 * 1024 * 1024,
		SubscriberBuffer: 64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.CloseGrace <= 0 {
		c.CloseGrace = d.CloseGrace
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = d.MaxLineBytes
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	return c
}

// Subscriber is one live response stream attached to a session. The
// queue is bounded; under backpressure the oldest message is dropped and
// counted rather than queued without limit.
type Subscriber struct {
	ch chan json.RawMessage
}

// Messages returns the subscriber's stream. The channel is closed when
// the subscriber is detached or the session ends.
func (s *Subscriber) Messages() <-chan json.RawMessage { return s.ch }

// Session owns one worker process. A session has at most one live child
// process; when that process dies the session dies with it and is never
// respawned in place.
type Session struct {
	ID string

	cfg    Config
	proc   WorkerProcess
	stdin  io.WriteCloser
	fsm    *lifecycle
	logger *slog.Logger

	sendMu sync.Mutex // serializes stdin writes so frames never interleave

	mu           sync.Mutex
	pending      map[string]chan Message
	subscribers  map[*Subscriber]struct{}
	lastActivity time.Time

	createdAt time.Time
	inflight  atomic.Int32
	dropped   *atomic.Uint64

	readyCh  chan struct{}
	deadCh   chan struct{}
	deadErr  error
	deadOnce sync.Once
	tearOnce sync.Once
	onExit   func(id string)
}

// NewSession attaches to a freshly spawned worker and waits for its
// readiness line. A worker that stays silent past the startup timeout is
// killed and the session fails with ErrStartupTimeout.
func NewSession(id string, proc WorkerProcess, cfg Config, dropped *atomic.Uint64, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dropped == nil {
		dropped = &atomic.Uint64{}
	}
	fsm, err := newLifecycle(id)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:           id,
		cfg:          cfg.withDefaults(),
		proc:         proc,
		stdin:        proc.Stdin(),
		fsm:          fsm,
		logger:       logger,
		pending:      make(map[string]chan Message),
		subscribers:  make(map[*Subscriber]struct{}),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
		dropped:      dropped,
		readyCh:      make(chan struct{}),
		deadCh:       make(chan struct{}),
	}

	go s.readLoop()

	select {
	case <-s.readyCh:
		s.fsm.fire(eventReady)
		return s, nil
	case <-s.deadCh:
		return nil, fmt.Errorf("session %s: worker exited during startup: %w", id, review.ErrSessionDead)
	case <-time.After(s.cfg.StartupTimeout):
		s.die(review.ErrStartupTimeout)
		return nil, fmt.Errorf("session %s: %w", id, review.ErrStartupTimeout)
	}
}

// SetOnExit registers the registry-removal callback. Invoked at most
// once, from its own goroutine, after the session reaches a terminal
// state.
func (s *Session) SetOnExit(fn func(id string)) {
	s.mu.Lock()
	s.onExit = fn
	s.mu.Unlock()
}

// State reports the lifecycle state.
func (s *Session) State() string { return s.fsm.current() }

// InFlight reports the number of pending correlated requests.
func (s *Session) InFlight() int { return int(s.inflight.Load()) }

// CreatedAt reports when the session was spawned.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// IdleSince reports the last request or subscribe activity.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Call frames one JSON-RPC request onto the worker's stdin and suspends
// until the correlated response arrives, the context ends, or the
// session dies. Requests pipeline freely; responses are correlated by
// id, not arrival order.
func (s *Session) Call(ctx context.Context, method string, params, id json.RawMessage) (Message, error) {
	switch s.fsm.current() {
	case StateDead:
		return Message{}, review.ErrSessionDead
	case StateClosing, StateClosed:
		return Message{}, review.ErrSessionClosed
	}
	key, err := idKey(id)
	if err != nil {
		return Message{}, err
	}

	respCh := make(chan Message, 1)
	s.mu.Lock()
	if _, exists := s.pending[key]; exists {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("request id %s already in flight", key)
	}
	s.pending[key] = respCh
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.inflight.Add(1)
	defer s.inflight.Add(-1)

	req := Message{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := s.send(req); err != nil {
		s.removePending(key)
		s.die(fmt.Errorf("%w: stdin write failed: %v", review.ErrSessionDead, err))
		return Message{}, review.ErrSessionDead
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return Message{}, review.ErrSessionDead
		}
		s.touch()
		return resp, nil
	case <-ctx.Done():
		s.removePending(key)
		return Message{}, fmt.Errorf("%w: %v", review.ErrRequestTimeout, ctx.Err())
	case <-s.deadCh:
		return Message{}, review.ErrSessionDead
	}
}

// Notify frames a one-way notification (no id, no response). Like Call,
// it is rejected as soon as draining begins.
func (s *Session) Notify(method string, params json.RawMessage) error {
	switch s.fsm.current() {
	case StateDead, StateClosed:
		return review.ErrSessionDead
	case StateClosing:
		return review.ErrSessionClosed
	}
	return s.send(Message{JSONRPC: "2.0", Method: method, Params: params})
}

// Subscribe attaches a response stream carrying every message the worker
// emits for this session: correlated responses and notifications alike.
func (s *Session) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan json.RawMessage, s.cfg.SubscriberBuffer)}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return sub
}

// Unsubscribe detaches a stream and closes its channel.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
	s.mu.Unlock()
}

// Close drains in-flight requests up to the grace period, then
// terminates the worker. New requests are rejected as soon as draining
// begins. Idempotent.
func (s *Session) Close() error {
	if !s.fsm.fire(eventClose) {
		return nil // already closing, closed or dead
	}

	deadline := time.Now().Add(s.cfg.CloseGrace)
	for s.inflight.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	s.sendMu.Lock()
	_ = s.stdin.Close()
	s.sendMu.Unlock()
	_ = s.proc.Kill()
	_ = s.proc.Wait()

	s.fsm.fire(eventClosed)
	s.teardown(review.ErrSessionClosed)
	return nil
}

// send writes one framed line under the send lock so concurrent callers
// never interleave partial writes.
func (s *Session) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	data = append(data, '\n')

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	_, err = s.stdin.Write(data)
	return err
}

// readLoop is the session's single stdout reader: it signals readiness,
// routes responses to their pending waiters, and broadcasts id-less
// notifications to every subscriber. Framing violations kill the session.
func (s *Session) readLoop() {
	scanner := bufio.NewScanner(s.proc.Stdout())
	scanner.Buffer(make([]byte, 64*1024), s.cfg.MaxLineBytes)

	ready := false
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Error("worker emitted unparseable frame, killing session",
				"session", s.ID, "error", err)
			s.die(fmt.Errorf("%w: %v", review.ErrFramingViolation, err))
			return
		}

		if !ready {
			ready = true
			close(s.readyCh)
			// The readiness notification itself is not forwarded.
			if msg.ID == nil && msg.Method == "worker/ready" {
				continue
			}
		}

		if len(msg.ID) > 0 && string(msg.ID) != "null" {
			s.deliver(msg, line)
			continue
		}
		s.broadcast(line)
	}

	if err := scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			s.logger.Error("worker line exceeded framing bound, killing session",
				"session", s.ID, "limit", s.cfg.MaxLineBytes)
			s.die(review.ErrFramingViolation)
			return
		}
		s.die(fmt.Errorf("%w: stdout read: %v", review.ErrSessionDead, err))
		return
	}
	// EOF: the worker exited.
	s.die(review.ErrSessionDead)
}

// deliver routes one correlated response and mirrors it to subscribers
// so a streaming client sees responses in worker emission order.
func (s *Session) deliver(msg Message, line []byte) {
	key, err := idKey(msg.ID)
	if err != nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if ok {
		ch <- msg
	} else {
		s.logger.Debug("response for unknown request id", "session", s.ID, "id", key)
	}
	s.broadcast(line)
}

// broadcast pushes one message to every subscriber, dropping the oldest
// buffered message when a slow consumer's queue is full.
func (s *Session) broadcast(line []byte) {
	msg := make(json.RawMessage, len(line))
	copy(msg, line)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		for {
			select {
			case sub.ch <- msg:
			default:
				select {
				case <-sub.ch:
					s.dropped.Add(1)
				default:
				}
				continue
			}
			break
		}
	}
}

/// die moves the session to Dead exactly once: every pending waiter is
// resolved with ErrSessionDead, subscribers are closed, and the process
// is reaped. A dead session is never respawned in place.
func (s *Session) die(cause error) {
	s.deadOnce.Do(func() {
		s.fsm.fire(eventDie)
		s.mu.Lock()
		s.deadErr = cause
		s.mu.Unlock()
		close(s.deadCh)
		_ = s.proc.Kill()
		go func() { _ = s.proc.Wait() }()
		s.teardown(cause)
		s.logger.Warn("session dead", "session", s.ID, "cause", cause)
	})
}

// teardown resolves pending calls, closes subscribers and fires the
// registry-removal callback. Shared by Close and die; runs once.
func (s *Session) teardown(cause error) {
	s.tearOnce.Do(func() {
		s.mu.Lock()
		for key, ch := range s.pending {
			delete(s.pending, key)
			close(ch)
		}
		for sub := range s.subscribers {
			delete(s.subscribers, sub)
			close(sub.ch)
		}
		onExit := s.onExit
		s.mu.Unlock()

		if onExit != nil {
			go onExit(s.ID)
		}
		_ = cause
	})
}

func (s *Session) removePending(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// idKey normalizes a JSON-RPC id (string or number) to its raw JSON
// text. Ids are correlated per session only; two sessions may reuse the
// same id without cross-talk.
func idKey(id json.RawMessage) (string, error) {
	if len(id) == 0 || string(id) == "null" {
		return "", fmt.Errorf("request id is required")
	}
	return string(id), nil
}
