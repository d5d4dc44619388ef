package cli

import (
	"fmt"
	"os"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/config"
)

// newExclusionEngine builds the exclusion engine with its traversal gate
// anchored: review paths that climb outside the allowed root are excluded
// before any rule layer runs. The root comes from allowed_root in the
// server config and falls back to the process working directory, so every
// entry point carries the gate without extra flags.
func newExclusionEngine(cfg config.ServerConfig, excl exclusion.Config) (*exclusion.Engine, error) {
	root := cfg.AllowedRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve allowed root: %w", err)
		}
		root = wd
	}
	return exclusion.NewEngine(excl, exclusion.WithRoot(root)), nil
}
