// Package application hosts the services that drive the domain:
// aggregating exclusion checks and scanner runs into one review result.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/google/uuid"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

// DefaultScanTimeout bounds a single adapter invocation.
const DefaultScanTimeout = 30 * time.Second

// FeedbackSink receives operation progress events. The core only emits
// these; the sink implementation lives elsewhere.
type FeedbackSink interface {
	StartOperation(id, description string)
	UpdateProgress(id string, percent int, message string)
	CompleteOperation(id, summary string)
	ReportError(id string, err error)
}

// ReviewService runs the exclusion engine and every eligible scanner for
// one request and merges the outcome. It is stateless and safe for
// concurrent use.
type ReviewService struct {
	engine      *exclusion.Engine
	registry    *scanner.Registry
	scanTimeout time.Duration
	feedback    FeedbackSink
	logger      *slog.Logger
}

// ServiceOption configures a ReviewService.
type ServiceOption func(*ReviewService)

// WithScanTimeout overrides the per-adapter timeout.
func WithScanTimeout(d time.Duration) ServiceOption {
	return func(s *ReviewService) {
		if d > 0 {
			s.scanTimeout = d
		}
	}
}

// WithFeedback attaches an observability sink.
func WithFeedback(sink FeedbackSink) ServiceOption {
	return func(s *ReviewService) { s.feedback = sink }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *ReviewService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewReviewService wires the aggregator.
func NewReviewService(engine *exclusion.Engine, registry *scanner.Registry, opts ...ServiceOption) *ReviewService {
	s := &ReviewService{
		engine:      engine,
		registry:    registry,
		scanTimeout: DefaultScanTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Review reviews one file.
//
// The exclusion check runs before anything else: no scanner is ever
// invoked on an excluded file, even when one is requested explicitly.
// Each surviving adapter runs independently; a failure or timeout in one
// degrades the result but never aborts the others. Findings keep
// adapter-invocation order, then emission order; no cross-scanner
// deduplication is performed.
func (s *ReviewService) Review(ctx context.Context, req review.Request) review.Result {
	opID := uuid.NewString()
	s.emitStart(opID, fmt.Sprintf("review %s", req.File))

	if d := s.engine.ShouldExclude(req.File, req.Content, req.Tool); d.Excluded {
		s.logger.Info("file excluded from review", "file", req.File, "reason", d.Reason)
		s.emitComplete(opID, "excluded")
		return review.Result{
			Success:       true,
			Excluded:      true,
			ExcludeReason: d.Reason,
			Findings:      []review.Finding{},
			Stats:         review.ComputeStats(nil),
		}
	}

	adapters := s.selectAdapters(ctx, req)

	findings := []review.Finding{}
	var warnings []string
	failed := 0

	for i, adapter := range adapters {
		name := adapter.Name()
		s.emitProgress(opID, (i*100)/max(len(adapters), 1), "running "+name)

		// Per-tool re-check: a file can be reviewable by some scanners
		// but not others.
		if d := s.engine.ShouldExclude(req.File, req.Content, name); d.Excluded {
			s.logger.Debug("adapter skipped by per-tool exclusion",
				"file", req.File, "scanner", name, "reason", d.Reason)
			continue
		}

		results, err := s.runAdapter(ctx, adapter, req)
		if err != nil {
			failed++
			if isTimeout(err) {
				warnings = append(warnings, fmt.Sprintf("scanner_timeout: %s", name))
			} else {
				warnings = append(warnings, fmt.Sprintf("scanner_failed: %s: %v", name, err))
			}
			s.logger.Warn("scanner failed, continuing with remaining scanners",
				"scanner", name, "file", req.File, "error", err)
			s.emitError(opID, fmt.Errorf("%s: %w", name, err))
			continue
		}
		findings = append(findings, results...)
	}

	s.emitComplete(opID, fmt.Sprintf("%d findings", len(findings)))
	return review.Result{
		Success:        true,
		Findings:       findings,
		Stats:          review.ComputeStats(findings),
		Warnings:       warnings,
		FailedScanners: failed,
	}
}

// selectAdapters determines the active set: built-in scanners always
// run; external scanners only when the request opts in and the live
// availability probe succeeds. A request naming a single tool restricts
// the set to that adapter.
func (s *ReviewService) selectAdapters(ctx context.Context, req review.Request) []scanner.Adapter {
	var adapters []scanner.Adapter
	adapters = append(adapters, s.registry.Builtin()...)
	if req.IncludeExternal {
		for _, adapter := range s.registry.ExternalAdapters() {
			if adapter.IsAvailable(ctx) {
				adapters = append(adapters, adapter)
			}
		}
	}
	if req.Tool == "" {
		return adapters
	}
	for _, adapter := range adapters {
		if adapter.Name() == req.Tool {
			return []scanner.Adapter{adapter}
		}
	}
	return nil
}

// runAdapter bounds one scan with the per-adapter timeout and converts
// panics into ordinary errors so a misbehaving adapter cannot take down
// the request.
func (s *ReviewService) runAdapter(ctx context.Context, adapter scanner.Adapter, req review.Request) ([]review.Finding, error) {
	t := timeout.New[[]review.Finding](timeout.Config{DefaultTimeout: s.scanTimeout})
	return t.Execute(ctx, s.scanTimeout, func(ctx context.Context) (results []review.Finding, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("scanner panicked: %v", r)
			}
		}()
		return adapter.Scan(ctx, req.File, req.Content)
	})
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func (s *ReviewService) emitStart(id, desc string) {
	if s.feedback != nil {
		s.feedback.StartOperation(id, desc)
	}
}

func (s *ReviewService) emitProgress(id string, percent int, msg string) {
	if s.feedback != nil {
		s.feedback.UpdateProgress(id, percent, msg)
	}
}

func (s *ReviewService) emitComplete(id, summary string) {
	if s.feedback != nil {
		s.feedback.CompleteOperation(id, summary)
	}
}

func (s *ReviewService) emitError(id string, err error) {
	if s.feedback != nil {
		s.feedback.ReportError(id, err)
	}
}
