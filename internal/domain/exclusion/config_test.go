package exclusion_test

import (
	"testing"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
)

func TestMerge_ConcatenatesWithoutDeduplication(t *testing.T) {
	base := exclusion.Config{
		Files:       []string{"package-lock.json"},
		MaxFileSize: 100,
		PerToolExclusions: map[string][]string{
			"devskim": {"**/fixtures/**"},
		},
	}
	override := exclusion.Config{
		Files: []string{"package-lock.json", "yarn.lock"},
		PerToolExclusions: map[string][]string{
			"devskim": {"**/*.test.*"},
			"semgrep": {"**/legacy/**"},
		},
	}

	merged := base.Merge(override)

	// Duplicates survive: precedence is "any rule matches" so silent
	// deduplication would have no benefit and hides user intent.
	if len(merged.Files) != 3 {
		t.Errorf("expected 3 file rules, got %v", merged.Files)
	}
	if merged.MaxFileSize != 100 {
		t.Errorf("zero override must keep base size, got %d", merged.MaxFileSize)
	}
	if got := merged.PerToolExclusions["devskim"]; len(got) != 2 {
		t.Errorf("expected concatenated devskim rules, got %v", got)
	}
	if got := merged.PerToolExclusions["semgrep"]; len(got) != 1 {
		t.Errorf("expected semgrep rules, got %v", got)
	}
}

func TestMerge_OverrideSizeWins(t *testing.T) {
	merged := exclusion.Config{MaxFileSize: 100}.Merge(exclusion.Config{MaxFileSize: 200})
	if merged.MaxFileSize != 200 {
		t.Errorf("expected override size 200, got %d", merged.MaxFileSize)
	}
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := exclusion.DefaultConfig()
	before := len(base.Files)
	_ = base.Merge(exclusion.Config{Files: []string{"extra.lock"}})
	if len(base.Files) != before {
		t.Error("merge mutated the base config")
	}
}
