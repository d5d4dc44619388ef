package scanner

import "log/slog"

// Registry holds the configured scanner set. Built-in scanners always
// run; external scanners are opt-in per request and further gated by a
// live availability probe.
type Registry struct {
	builtin  []Adapter
	external []Adapter
}

// RegistryConfig selects which scanners are constructed. An empty
// Enabled list enables every known external scanner.
type RegistryConfig struct {
	Enabled        []string
	CodeQLDatabase string
}

// NewRegistry builds the default scanner set.
func NewRegistry(cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	known := map[string]Adapter{
		"semgrep":         NewSemgrep(logger),
		"eslint-security": NewESLintSecurity(logger),
		"bandit":          NewBandit(logger),
		"devskim":         NewDevSkim(logger),
		"codeql":          NewCodeQL(cfg.CodeQLDatabase, logger),
	}

	r := &Registry{
		builtin: []Adapter{NewSecurityPatterns(), NewQualityPatterns()},
	}

	if len(cfg.Enabled) == 0 {
		for _, name := range []string{"semgrep", "eslint-security", "bandit", "devskim", "codeql"} {
			r.external = append(r.external, known[name])
		}
		return r
	}

	for _, name := range cfg.Enabled {
		if adapter, ok := known[name]; ok {
			r.external = append(r.external, adapter)
		} else {
			logger.Warn("unknown scanner in configuration, skipping", "scanner", name)
		}
	}
	return r
}

// NewTestRegistry builds a registry from explicit adapter slices.
// Intended for tests and embedded wiring.
func NewTestRegistry(builtin, external []Adapter) *Registry {
	return &Registry{builtin: builtin, external: external}
}

// Builtin returns the always-on adapters in invocation order.
func (r *Registry) Builtin() []Adapter { return r.builtin }

// ExternalAdapters returns the configured external adapters in
// invocation order. Availability is probed by the caller at request time.
func (r *Registry) ExternalAdapters() []Adapter { return r.external }
