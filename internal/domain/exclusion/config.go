// Package exclusion implements the layered file-exclusion rules that gate
// what content is ever handed to a scanner.
package exclusion

// Config holds the merged default and user exclusion rules. It is built
// once at startup and never mutated afterwards.
//
// Defaults and user overrides are concatenated, never deduplicated:
// precedence is "any rule matches, exclude", so duplicates are harmless
// and user rules can only widen the blocklist.
type Config struct {
	Extensions   []string `json:"extensions" yaml:"extensions"`
	Patterns     []string `json:"patterns" yaml:"patterns"`
	Files        []string `json:"files" yaml:"files"`
	Directories  []string `json:"directories" yaml:"directories"`
	Paths        []string `json:"paths" yaml:"paths"`
	ContentTypes []string `json:"contentTypes" yaml:"contentTypes"`

	// MaxFileSize is a byte threshold; zero disables the size check.
	MaxFileSize int64 `json:"maxFileSize" yaml:"maxFileSize"`

	// PerToolExclusions maps a scanner name to extra glob rules applied
	// only when that scanner is about to run.
	PerToolExclusions map[string][]string `json:"perToolExclusions" yaml:"perToolExclusions"`
}

// DefaultConfig returns the built-in blocklist applied before any user
// configuration.
func DefaultConfig() Config {
	return Config{
		Extensions: []string{
			".min.js", ".min.css", ".map",
			".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".webp",
			".woff", ".woff2", ".ttf", ".eot",
			".zip", ".tar", ".gz", ".bz2", ".7z",
			".exe", ".dll", ".so", ".dylib", ".wasm",
			".pdf", ".mp3", ".mp4", ".mov",
		},
		Patterns: []string{
			"**/*.generated.*",
			"**/*.snap",
			"**/testdata/**",
		},
		Files: []string{
			"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
			"Cargo.lock", "deno.lock", "go.sum", "composer.lock",
			"Gemfile.lock", "poetry.lock",
			".DS_Store",
		},
		Directories: []string{
			"node_modules", "vendor", "dist", "build", "target",
			"coverage", ".git", ".svn", ".hg",
			".claude", ".aichaku",
			"__pycache__", ".venv", ".tox",
		},
		Paths: []string{
			".claude/commands",
			".claude/output-styles",
		},
		ContentTypes: []string{
			"-----BEGIN .* PRIVATE KEY-----",
			"-----BEGIN CERTIFICATE-----",
			"#!/usr/bin/env",
			"AKIA[0-9A-Z]{16}",
		},
		MaxFileSize: 10 * 1024 * 1024,
		PerToolExclusions: map[string][]string{
			"devskim": {"**/fixtures/**", "**/*.test.*"},
			"codeql":  {"**/migrations/**"},
		},
	}
}

// Merge appends the override's rules to the receiver's and returns the
// combined config. A non-zero MaxFileSize in the override replaces the
// base value; per-tool lists are concatenated per tool.
func (c Config) Merge(override Config) Config {
	merged := Config{
		Extensions:   append(append([]string{}, c.Extensions...), override.Extensions...),
		Patterns:     append(append([]string{}, c.Patterns...), override.Patterns...),
		Files:        append(append([]string{}, c.Files...), override.Files...),
		Directories:  append(append([]string{}, c.Directories...), override.Directories...),
		Paths:        append(append([]string{}, c.Paths...), override.Paths...),
		ContentTypes: append(append([]string{}, c.ContentTypes...), override.ContentTypes...),
		MaxFileSize:  c.MaxFileSize,
	}
	if override.MaxFileSize > 0 {
		merged.MaxFileSize = override.MaxFileSize
	}
	merged.PerToolExclusions = make(map[string][]string, len(c.PerToolExclusions)+len(override.PerToolExclusions))
	for tool, globs := range c.PerToolExclusions {
		merged.PerToolExclusions[tool] = append([]string{}, globs...)
	}
	for tool, globs := range override.PerToolExclusions {
		merged.PerToolExclusions[tool] = append(merged.PerToolExclusions[tool], globs...)
	}
	return merged
}
