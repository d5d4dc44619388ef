package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RickCogley/aichaku-sub007/internal/application"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/feedback"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/scanner"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/worker"
)

// writerFunc defers the output writer so the progress sink can share
// the worker's framed stdout, which only exists once the worker does.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// workerCmd is the child-process entrypoint spawned by the session
// manager. It is hidden: users never run it by hand.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Hidden: true,
	Short:  "Run one review worker over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(configPath)
		if err != nil {
			return err
		}
		excl, warnings, err := config.LoadExclusions(cfg.ExclusionsFile)
		if err != nil {
			return err
		}

		// Stdout carries protocol frames only; logs go to stderr and
		// pass through to the server's log.
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).
			With("session", os.Getenv("REVIEWD_SESSION_ID"))
		for _, w := range warnings {
			logger.Warn("exclusion config warning", "warning", w)
		}

		engine, err := newExclusionEngine(cfg, excl)
		if err != nil {
			return err
		}
		registry := scanner.NewRegistry(scanner.RegistryConfig{
			Enabled:        cfg.Scan.Scanners,
			CodeQLDatabase: cfg.Scan.CodeQLDatabase,
		}, logger)

		var w *worker.Worker
		lineSink := feedback.NewLineSink(writerFunc(func(p []byte) (int, error) {
			return w.Output().Write(p)
		}))
		var sink application.FeedbackSink = lineSink
		if cfg.Webhook.URL != "" {
			store := feedback.NewDeadLetterStore("reviewd-deadletter.jsonl")
			sink = feedback.NewMultiSink(lineSink, feedback.NewWebhookSink(cfg.Webhook, store))
		}

		svc := application.NewReviewService(engine, registry,
			application.WithScanTimeout(cfg.Scan.Timeout),
			application.WithFeedback(sink),
			application.WithLogger(logger))

		var in io.Reader = os.Stdin
		w = worker.New(svc, engine, registry, in, os.Stdout,
			worker.WithMaxLineBytes(cfg.Session.MaxLineBytes),
			worker.WithLogger(logger))
		return w.Run(cmd.Context())
	},
}

func init() {
	RootCmd.AddCommand(workerCmd)
}
