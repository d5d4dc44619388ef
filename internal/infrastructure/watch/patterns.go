package watch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// SourceFilter decides which changed files are worth re-reviewing.
// Include and exclude rules are doublestar globs matched against the
// slash-form path and its basename.
type SourceFilter struct {
	Include []string
	Exclude []string
}

// NewSourceFilter creates a filter. With no include rules every path
// passes unless excluded.
func NewSourceFilter(include, exclude []string) *SourceFilter {
	return &SourceFilter{Include: include, Exclude: exclude}
}

// Matches reports whether a changed path should trigger a review.
func (f *SourceFilter) Matches(path string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)

	for _, pattern := range f.Exclude {
		if globMatch(pattern, slashed) || globMatch(pattern, base) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if globMatch(pattern, slashed) || globMatch(pattern, base) {
			return true
		}
	}
	return false
}

func globMatch(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, strings.TrimPrefix(path, "/"))
	if err != nil {
		return false
	}
	if ok {
		return true
	}
	ok, err = doublestar.Match(pattern, path)
	return err == nil && ok
}
