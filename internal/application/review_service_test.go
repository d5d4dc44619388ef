package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

// stubAdapter is a scripted scanner for aggregation tests.
type stubAdapter struct {
	name      string
	available bool
	findings  []review.Finding
	err       error
	panics    bool
	blocks    bool
	calls     atomic.Int32
}

func (s *stubAdapter) Name() string                          { return s.name }
func (s *stubAdapter) IsAvailable(ctx context.Context) bool  { return s.available }
func (s *stubAdapter) Scan(ctx context.Context, path, content string) ([]review.Finding, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := make([]review.Finding, len(s.findings))
	for i, f := range s.findings {
		f.Scanner = s.name
		out[i] = f
	}
	return out, nil
}

func finding(msg string) review.Finding {
	return review.Finding{Type: review.TypeSecurity, Severity: review.SeverityWarning, Message: msg}
}

// serviceWith builds a ReviewService whose registry is replaced by stub
// adapters through a single-tool registry trick: stubs are injected as
// builtins via a registry literal.
func serviceWith(t *testing.T, cfg exclusion.Config, adapters ...scanner.Adapter) *ReviewService {
	t.Helper()
	engine := exclusion.NewEngine(cfg)
	reg := scanner.NewTestRegistry(adapters, nil)
	return NewReviewService(engine, reg, WithScanTimeout(2*time.Second))
}

func TestReview_ScannerIsolation(t *testing.T) {
	good1 := &stubAdapter{name: "good1", findings: []review.Finding{finding("a")}}
	bad := &stubAdapter{name: "bad", err: fmt.Errorf("exploded")}
	good2 := &stubAdapter{name: "good2", findings: []review.Finding{finding("b")}}

	svc := serviceWith(t, exclusion.Config{}, good1, bad, good2)
	result := svc.Review(context.Background(), review.Request{File: "/repo/a.go"})

	if !result.Success || result.Excluded {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Findings) != 2 {
		t.Fatalf("expected findings from the two healthy scanners, got %+v", result.Findings)
	}
	if result.FailedScanners != 1 {
		t.Errorf("expected failure count 1, got %d", result.FailedScanners)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", result.Warnings)
	}
}

func TestReview_PanickingScannerIsRecovered(t *testing.T) {
	angry := &stubAdapter{name: "angry", panics: true}
	calm := &stubAdapter{name: "calm", findings: []review.Finding{finding("ok")}}

	svc := serviceWith(t, exclusion.Config{}, angry, calm)
	result := svc.Review(context.Background(), review.Request{File: "/repo/a.go"})

	if len(result.Findings) != 1 || result.FailedScanners != 1 {
		t.Errorf("panic not isolated: %+v", result)
	}
}

func TestReview_ExcludedFileNeverScanned(t *testing.T) {
	spy := &stubAdapter{name: "spy"}
	svc := serviceWith(t,
		exclusion.Config{Directories: []string{".claude"}},
		spy)

	result := svc.Review(context.Background(), review.Request{
		File: "/repo/.claude/commands/x.md",
		// Even an explicit tool request must not bypass exclusion.
		Tool: "spy",
	})

	if !result.Excluded {
		t.Fatal("expected exclusion")
	}
	if len(result.Findings) != 0 {
		t.Errorf("expected no findings, got %+v", result.Findings)
	}
	if spy.calls.Load() != 0 {
		t.Error("scanner was invoked on an excluded file")
	}
}

func TestReview_PerToolExclusionSkipsOnlyThatScanner(t *testing.T) {
	blocked := &stubAdapter{name: "devskim", findings: []review.Finding{finding("x")}}
	allowed := &stubAdapter{name: "other", findings: []review.Finding{finding("y")}}

	svc := serviceWith(t, exclusion.Config{
		PerToolExclusions: map[string][]string{"devskim": {"**/fixtures/**"}},
	}, blocked, allowed)

	result := svc.Review(context.Background(), review.Request{File: "/repo/fixtures/f.js"})

	if blocked.calls.Load() != 0 {
		t.Error("devskim should have been skipped by per-tool exclusion")
	}
	if allowed.calls.Load() != 1 || len(result.Findings) != 1 {
		t.Errorf("other scanner should still run: %+v", result)
	}
}

func TestReview_TimeoutYieldsWarningNotFindings(t *testing.T) {
	slow := &stubAdapter{name: "slow", blocks: true}
	fast := &stubAdapter{name: "fast", findings: []review.Finding{finding("ok")}}

	engine := exclusion.NewEngine(exclusion.Config{})
	reg := scanner.NewTestRegistry([]scanner.Adapter{slow, fast}, nil)
	svc := NewReviewService(engine, reg, WithScanTimeout(100*time.Millisecond))

	result := svc.Review(context.Background(), review.Request{File: "/repo/a.go"})

	if len(result.Findings) != 1 {
		t.Errorf("expected findings from the fast scanner only, got %+v", result.Findings)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected timeout warning, got %v", result.Warnings)
	}
}

func TestReview_ExternalOnlyWhenRequestedAndAvailable(t *testing.T) {
	present := &stubAdapter{name: "present", available: true, findings: []review.Finding{finding("ext")}}
	absent := &stubAdapter{name: "absent", available: false}

	engine := exclusion.NewEngine(exclusion.Config{})
	reg := scanner.NewTestRegistry(nil, []scanner.Adapter{present, absent})
	svc := NewReviewService(engine, reg)

	// Without the opt-in, external adapters never run.
	_ = svc.Review(context.Background(), review.Request{File: "/repo/a.go"})
	if present.calls.Load() != 0 {
		t.Error("external adapter ran without includeExternal")
	}

	_ = svc.Review(context.Background(), review.Request{File: "/repo/a.go", IncludeExternal: true})
	if present.calls.Load() != 1 {
		t.Error("available external adapter should run when requested")
	}
	if absent.calls.Load() != 0 {
		t.Error("unavailable external adapter must be skipped")
	}
}

func TestReview_StatsFrequencyMaps(t *testing.T) {
	a := &stubAdapter{name: "a", findings: []review.Finding{
		{Type: review.TypeSecurity, Severity: review.SeverityError, Message: "1"},
		{Type: review.TypeQuality, Severity: review.SeverityInfo, Message: "2"},
	}}
	b := &stubAdapter{name: "b", findings: []review.Finding{
		{Type: review.TypeSecurity, Severity: review.SeverityError, Message: "3"},
	}}

	svc := serviceWith(t, exclusion.Config{}, a, b)
	result := svc.Review(context.Background(), review.Request{File: "/repo/a.go"})

	if result.Stats.TotalIssues != 3 {
		t.Errorf("total = %d", result.Stats.TotalIssues)
	}
	if result.Stats.ByType["security"] != 2 || result.Stats.BySeverity["error"] != 2 {
		t.Errorf("bad frequency maps: %+v", result.Stats)
	}
	if result.Stats.ByScanner["a"] != 2 || result.Stats.ByScanner["b"] != 1 {
		t.Errorf("bad scanner map: %+v", result.Stats.ByScanner)
	}

	// Invocation order preserved, no cross-scanner dedup.
	if result.Findings[0].Message != "1" || result.Findings[2].Message != "3" {
		t.Errorf("ordering violated: %+v", result.Findings)
	}
}

func TestReview_SingleToolRestriction(t *testing.T) {
	one := &stubAdapter{name: "one", findings: []review.Finding{finding("1")}}
	two := &stubAdapter{name: "two", findings: []review.Finding{finding("2")}}

	svc := serviceWith(t, exclusion.Config{}, one, two)
	result := svc.Review(context.Background(), review.Request{File: "/repo/a.go", Tool: "two"})

	if one.calls.Load() != 0 || two.calls.Load() != 1 {
		t.Errorf("tool restriction not honored: one=%d two=%d", one.calls.Load(), two.calls.Load())
	}
	if len(result.Findings) != 1 || result.Findings[0].Scanner != "two" {
		t.Errorf("unexpected findings: %+v", result.Findings)
	}
}
