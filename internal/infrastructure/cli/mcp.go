package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/mcp"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve review tools over the Model Context Protocol",
	Long: `Mcp exposes review_file, check_exclusion and scanner_status as MCP
tools. By default it speaks stdio for editor and agent integrations;
--http serves the same tools over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return MapError(err)
		}
		excl, warnings, err := config.LoadExclusions(cfg.ExclusionsFile)
		if err != nil {
			return MapError(err)
		}

		// Stdio carries MCP frames; log to stderr only.
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		for _, w := range warnings {
			logger.Warn("exclusion config warning", "warning", w)
		}

		engine, err := newExclusionEngine(cfg, excl)
		if err != nil {
			return MapError(err)
		}
		registry := scanner.NewRegistry(scanner.RegistryConfig{
			Enabled:        cfg.Scan.Scanners,
			CodeQLDatabase: cfg.Scan.CodeQLDatabase,
		}, logger)
		svc := application.NewReviewService(engine, registry,
			application.WithScanTimeout(cfg.Scan.Timeout),
			application.WithLogger(logger))

		srv := mcp.NewServer(svc, engine, registry)
		if mcpHTTPAddr != "" {
			return srv.ServeHTTP(cmd.Context(), mcpHTTPAddr)
		}
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Serve MCP over HTTP on this address instead of stdio")
	RootCmd.AddCommand(mcpCmd)
}
