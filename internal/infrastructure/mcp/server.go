// Package mcp exposes the review engine to MCP clients so agent
// tooling can run reviews and probe exclusions without speaking the
// bridge's HTTP protocol.
package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

type Server struct {
	mcpServer *mcp.Server
	svc       *application.ReviewService
	engine    *exclusion.Engine
	registry  *scanner.Registry
}

// mcpErr returns a user-friendly error for MCP clients. Internal
// details stay in the server log.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

func NewServer(svc *application.ReviewService, engine *exclusion.Engine, registry *scanner.Registry) *Server {
	info := mcp.ServerInfo{
		Name:    "reviewd",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Reviewd MCP Server"),
			mcp.WithDescription("Reviewd runs layered-exclusion security and quality reviews over source files."),
			mcp.WithWebsiteURL("https://github.com/RickCogley/aichaku-sub007"),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use review_file to scan a file, check_exclusion to test whether a path would be reviewed, and scanner_status to list available scanners."),
		),
		svc:      svc,
		engine:   engine,
		registry: registry,
	}

	s.registerTools()
	return s
}

type ReviewFileArgs struct {
	File            string `json:"file" jsonschema:"description=Absolute or repo-relative path of the file to review"`
	Content         string `json:"content,omitempty" jsonschema:"description=Optional file content; read from disk when omitted"`
	IncludeExternal bool   `json:"include_external,omitempty" jsonschema:"description=Also run installed external scanners such as semgrep"`
	Tool            string `json:"tool,omitempty" jsonschema:"description=Restrict the review to one named scanner"`
}

type CheckExclusionArgs struct {
	File    string `json:"file" jsonschema:"description=Path to test against the exclusion rules"`
	Content string `json:"content,omitempty" jsonschema:"description=Optional content for content-based rules"`
	Tool    string `json:"tool,omitempty" jsonschema:"description=Scanner name for per-tool rules"`
}

func (s *Server) registerTools() {
	// Tool: review_file
	s.mcpServer.Tool("review_file").
		Description("Run the security and quality review over one file, honoring exclusion rules").
		Handler(s.handleReviewFile)

	// Tool: check_exclusion
	s.mcpServer.Tool("check_exclusion").
		Description("Test whether a path would be excluded from review, and why").
		Handler(s.handleCheckExclusion)

	// Tool: scanner_status
	s.mcpServer.Tool("scanner_status").
		Description("List builtin and external scanners and whether each is available right now").
		Handler(s.handleScannerStatus)
}

func (s *Server) handleReviewFile(ctx context.Context, args ReviewFileArgs) (any, error) {
	if args.File == "" {
		return nil, mcpErr("A file path is required.")
	}
	result := s.svc.Review(ctx, review.Request{
		File:            args.File,
		Content:         args.Content,
		IncludeExternal: args.IncludeExternal,
		Tool:            args.Tool,
	})
	return result, nil
}

func (s *Server) handleCheckExclusion(ctx context.Context, args CheckExclusionArgs) (any, error) {
	if args.File == "" {
		return nil, mcpErr("A file path is required.")
	}
	return s.engine.ShouldExclude(args.File, args.Content, args.Tool), nil
}

type scannerStatus struct {
	Name      string `json:"name"`
	External  bool   `json:"external"`
	Available bool   `json:"available"`
}

func (s *Server) handleScannerStatus(ctx context.Context, args struct{}) (any, error) {
	var out []scannerStatus
	for _, a := range s.registry.Builtin() {
		out = append(out, scannerStatus{Name: a.Name(), Available: true})
	}
	for _, a := range s.registry.ExternalAdapters() {
		out = append(out, scannerStatus{Name: a.Name(), External: true, Available: a.IsAvailable(ctx)})
	}
	return out, nil
}

func (s *Server) Start() error {
	return s.ServeStdio(context.Background())
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}
