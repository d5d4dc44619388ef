package exclusion

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Decision is the outcome of an exclusion check.
type Decision struct {
	Excluded bool   `json:"excluded"`
	Reason   string `json:"reason,omitempty"`
}

// StatFunc reports file metadata for the size check. Injectable for tests.
type StatFunc func(string) (os.FileInfo, error)

// Engine evaluates the layered exclusion rules. It is stateless after
// construction and safe for concurrent use.
type Engine struct {
	cfg     Config
	root    string
	statFn  StatFunc
	content []contentRule
}

// contentRule matches either as a compiled regexp or, when the rule does
// not compile, as a literal substring.
type contentRule struct {
	raw string
	re  *regexp.Regexp
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoot sets the allowed root. Paths that use traversal segments and
// resolve outside the root are excluded unconditionally.
func WithRoot(root string) Option {
	return func(e *Engine) { e.root = filepath.Clean(root) }
}

// WithStat overrides the stat function used by the size check.
func WithStat(fn StatFunc) Option {
	return func(e *Engine) { e.statFn = fn }
}

// NewEngine builds an engine over an immutable config.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, statFn: os.Stat}
	for _, opt := range opts {
		opt(e)
	}
	e.content = make([]contentRule, 0, len(cfg.ContentTypes))
	for _, raw := range cfg.ContentTypes {
		rule := contentRule{raw: raw}
		if re, err := regexp.Compile(raw); err == nil {
			rule.re = re
		}
		e.content = append(e.content, rule)
	}
	return e
}

// ShouldExclude runs the rule layers in fixed order and short-circuits on
// the first match. Content and tool are optional; the content and
// per-tool layers only run when they are supplied.
//
// Path resolution is a security gate: an unresolvable path or a traversal
// escaping the allowed root excludes the file (fail closed). The size
// stat is a performance optimization only, so a failed stat does not
// exclude (fail open for that single check).
func (e *Engine) ShouldExclude(path, content, tool string) Decision {
	resolved, err := e.resolve(path)
	if err != nil {
		return Decision{Excluded: true, Reason: fmt.Sprintf("Path could not be resolved: %v", err)}
	}
	if e.root != "" && hasTraversal(path) && !within(e.root, resolved) {
		return Decision{Excluded: true, Reason: fmt.Sprintf("Path escapes allowed root: %s", path)}
	}

	slashed := filepath.ToSlash(resolved)
	base := filepath.Base(resolved)

	for _, ext := range e.cfg.Extensions {
		if strings.HasSuffix(strings.ToLower(base), strings.ToLower(ext)) {
			return Decision{Excluded: true, Reason: fmt.Sprintf("File extension excluded: %s", ext)}
		}
	}

	for _, pattern := range e.cfg.Patterns {
		if matchGlob(pattern, slashed) {
			return Decision{Excluded: true, Reason: fmt.Sprintf("Path matches excluded pattern: %s", pattern)}
		}
	}

	for _, name := range e.cfg.Files {
		if base == name {
			return Decision{Excluded: true, Reason: fmt.Sprintf("File name excluded: %s", name)}
		}
	}

	for _, segment := range strings.Split(slashed, "/") {
		for _, dir := range e.cfg.Directories {
			if segment != "" && segment == dir {
				return Decision{Excluded: true, Reason: fmt.Sprintf("Directory excluded: %s", dir)}
			}
		}
	}

	for _, fragment := range e.cfg.Paths {
		if fragment != "" && strings.Contains(slashed, fragment) {
			return Decision{Excluded: true, Reason: fmt.Sprintf("Path contains excluded fragment: %s", fragment)}
		}
	}

	if content != "" {
		for _, rule := range e.content {
			if rule.matches(content) {
				return Decision{Excluded: true, Reason: fmt.Sprintf("Content matches excluded pattern: %s", rule.raw)}
			}
		}
	}

	if tool != "" {
		for _, pattern := range e.cfg.PerToolExclusions[tool] {
			if matchGlob(pattern, slashed) {
				return Decision{Excluded: true, Reason: fmt.Sprintf("Excluded for %s: %s", tool, pattern)}
			}
		}
	}

	if e.cfg.MaxFileSize > 0 {
		if info, err := e.statFn(resolved); err == nil && !info.IsDir() && info.Size() > e.cfg.MaxFileSize {
			return Decision{Excluded: true, Reason: fmt.Sprintf("File exceeds maximum size: %d bytes", e.cfg.MaxFileSize)}
		}
	}

	return Decision{}
}

// resolve normalizes the input to an absolute, clean path. Relative
// inputs are resolved against the allowed root when one is configured.
func (e *Engine) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains NUL byte")
	}
	if !filepath.IsAbs(path) && e.root != "" {
		path = filepath.Join(e.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func (c contentRule) matches(content string) bool {
	if c.re != nil {
		return c.re.MatchString(content)
	}
	return strings.Contains(content, c.raw)
}

// matchGlob matches against the absolute slash path both with and
// without the leading separator, so "**/testdata/**" style patterns work
// regardless of the root prefix.
func matchGlob(pattern, slashed string) bool {
	if ok, err := doublestar.Match(pattern, slashed); err == nil && ok {
		return true
	}
	trimmed := strings.TrimPrefix(slashed, "/")
	if ok, err := doublestar.Match(pattern, trimmed); err == nil && ok {
		return true
	}
	return false
}

func hasTraversal(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
