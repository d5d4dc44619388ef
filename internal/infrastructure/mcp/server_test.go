package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

func testServer(t *testing.T, cfg exclusion.Config) *Server {
	t.Helper()
	engine := exclusion.NewEngine(cfg)
	registry := scanner.NewTestRegistry(
		[]scanner.Adapter{scanner.NewSecurityPatterns()}, nil)
	svc := application.NewReviewService(engine, registry)
	return NewServer(svc, engine, registry)
}

func TestHandleReviewFile(t *testing.T) {
	s := testServer(t, exclusion.Config{})

	path := filepath.Join(t.TempDir(), "main.js")
	if err := os.WriteFile(path, []byte("eval(userInput)\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := s.handleReviewFile(context.Background(), ReviewFileArgs{File: path})
	if err != nil {
		t.Fatal(err)
	}
	result, ok := out.(review.Result)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	if !result.Success || len(result.Findings) == 0 {
		t.Errorf("expected findings, got %+v", result)
	}
}

func TestHandleReviewFile_RequiresPath(t *testing.T) {
	s := testServer(t, exclusion.Config{})
	if _, err := s.handleReviewFile(context.Background(), ReviewFileArgs{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHandleCheckExclusion(t *testing.T) {
	s := testServer(t, exclusion.Config{Files: []string{"yarn.lock"}})

	out, err := s.handleCheckExclusion(context.Background(), CheckExclusionArgs{File: "/repo/yarn.lock"})
	if err != nil {
		t.Fatal(err)
	}
	decision, ok := out.(exclusion.Decision)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	if !decision.Excluded || decision.Reason != "File name excluded: yarn.lock" {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestHandleScannerStatus(t *testing.T) {
	s := testServer(t, exclusion.Config{})

	out, err := s.handleScannerStatus(context.Background(), struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	statuses, ok := out.([]scannerStatus)
	if !ok {
		t.Fatalf("unexpected result type %T", out)
	}
	if len(statuses) != 1 || statuses[0].Name != "security-patterns" || !statuses[0].Available {
		t.Errorf("unexpected statuses: %+v", statuses)
	}
}
