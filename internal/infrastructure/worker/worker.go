// Package worker implements the child-process side of the session
// bridge: a line-framed JSON-RPC loop over stdin/stdout that serves
// review requests.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/session"
)

// JSON-RPC error codes used on the wire.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// frameWriter serializes whole-line writes so concurrent request
// handlers and the feedback sink never interleave frames.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (f *frameWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w.Write(p)
}

// Worker reads framed requests from in and writes framed responses to
// out. Requests are handled concurrently; responses complete in whatever
// order the handlers finish, which is why callers correlate by id.
type Worker struct {
	svc      *application.ReviewService
	engine   *exclusion.Engine
	registry *scanner.Registry
	in       io.Reader
	out      *frameWriter
	maxLine  int
	logger   *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithMaxLineBytes overrides the inbound line bound.
func WithMaxLineBytes(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxLine = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New wires a worker over the given streams.
func New(svc *application.ReviewService, engine *exclusion.Engine, registry *scanner.Registry, in io.Reader, out io.Writer, opts ...Option) *Worker {
	w := &Worker{
		svc:      svc,
		engine:   engine,
		registry: registry,
		in:       in,
		out:      &frameWriter{w: out},
		maxLine:  5 * 1024 * 1024,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Output returns the shared framed writer so a feedback sink can emit
// notifications on the same stream without tearing frames.
func (w *Worker) Output() io.Writer { return w.out }

// Run announces readiness and serves requests until stdin closes or the
// context ends.
func (w *Worker) Run(ctx context.Context) error {
	w.notify("worker/ready", map[string]any{"pid": os.Getpid()})

	scan := bufio.NewScanner(w.in)
	scan.Buffer(make([]byte, 64*1024), w.maxLine)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scan.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := make([]byte, len(scan.Bytes()))
		copy(line, scan.Bytes())

		var req session.Message
		if err := json.Unmarshal(line, &req); err != nil {
			w.respondError(nil, CodeParseError, fmt.Sprintf("parse error: %v", err))
			continue
		}
		if req.Method == "" {
			w.respondError(req.ID, CodeInvalidRequest, "missing method")
			continue
		}
		if len(req.ID) == 0 {
			// Inbound notifications have nothing to answer.
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.handle(ctx, req)
		}()
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("stdin read: %w", err)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, req session.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panic", "method", req.Method, "panic", r)
			w.respondError(req.ID, CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch req.Method {
	case "ping":
		w.respond(req.ID, map[string]any{"pong": true})

	case "review.file":
		var r review.Request
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &r); err != nil {
				w.respondError(req.ID, CodeInvalidRequest, fmt.Sprintf("invalid params: %v", err))
				return
			}
		}
		if r.File == "" {
			w.respondError(req.ID, CodeInvalidRequest, "file is required")
			return
		}
		w.respond(req.ID, w.svc.Review(ctx, r))

	case "exclusion.check":
		var p struct {
			File    string `json:"file"`
			Content string `json:"content,omitempty"`
			Tool    string `json:"tool,omitempty"`
		}
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				w.respondError(req.ID, CodeInvalidRequest, fmt.Sprintf("invalid params: %v", err))
				return
			}
		}
		if p.File == "" {
			w.respondError(req.ID, CodeInvalidRequest, "file is required")
			return
		}
		w.respond(req.ID, w.engine.ShouldExclude(p.File, p.Content, p.Tool))

	case "scanner.status":
		w.respond(req.ID, w.scannerStatus(ctx))

	default:
		w.respondError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

type scannerStatus struct {
	Name      string `json:"name"`
	External  bool   `json:"external"`
	Available bool   `json:"available"`
}

func (w *Worker) scannerStatus(ctx context.Context) []scannerStatus {
	var out []scannerStatus
	for _, a := range w.registry.Builtin() {
		out = append(out, scannerStatus{Name: a.Name(), Available: true})
	}
	for _, a := range w.registry.ExternalAdapters() {
		out = append(out, scannerStatus{Name: a.Name(), External: true, Available: a.IsAvailable(ctx)})
	}
	return out
}

func (w *Worker) respond(id json.RawMessage, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		w.respondError(id, CodeInternalError, fmt.Sprintf("marshal result: %v", err))
		return
	}
	w.write(session.Message{JSONRPC: "2.0", ID: id, Result: raw})
}

func (w *Worker) respondError(id json.RawMessage, code int, message string) {
	w.write(session.Message{JSONRPC: "2.0", ID: id, Error: &session.RPCError{Code: code, Message: message}})
}

func (w *Worker) notify(method string, params any) {
	raw, err := json.Marshal(params)
	if err != nil {
		return
	}
	w.write(session.Message{JSONRPC: "2.0", Method: method, Params: raw})
}

func (w *Worker) write(msg session.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		w.logger.Error("marshal frame", "error", err)
		return
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		w.logger.Error("write frame", "error", err)
	}
}
