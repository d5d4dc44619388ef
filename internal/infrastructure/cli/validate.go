package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/watch"
)

var validateWatch bool

var validateCmd = &cobra.Command{
	Use:   "validate <exclusions-file>",
	Short: "Validate an exclusion config file",
	Long: `Validate checks an exclusion config (.yaml or .json) against the
schema, merges it over the defaults, and reports patterns that risk
catastrophic regexp backtracking. With --watch it re-validates on
every save.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		runOnce := func() error {
			cfg, warnings, err := config.LoadExclusions(path)
			if err != nil {
				return MapError(err)
			}
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s is valid: %d extensions, %d patterns, %d files, %d directories, max size %d bytes\n",
				path, len(cfg.Extensions), len(cfg.Patterns), len(cfg.Files),
				len(cfg.Directories), cfg.MaxFileSize)
			return nil
		}

		if err := runOnce(); err != nil {
			if !validateWatch {
				return err
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if !validateWatch {
			return nil
		}

		w, err := watch.NewWatcher(300*time.Millisecond, nil, func(ev watch.Event) {
			if filepath.Base(ev.Path) != filepath.Base(path) {
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nchange detected at %s\n", time.Now().Format("15:04:05"))
			if err := runOnce(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		})
		if err != nil {
			return err
		}
		if err := w.AddFile(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes...\n", path)
		return w.Run(cmd.Context())
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateWatch, "watch", false, "Re-validate on every change")
	RootCmd.AddCommand(validateCmd)
}
