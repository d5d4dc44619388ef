package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// probeTimeout bounds the lightweight version probe so a wedged binary
// cannot stall availability checks.
const probeTimeout = 5 * time.Second

// parseFunc converts a tool's stdout into normalized findings.
type parseFunc func(output []byte, scanner string) ([]review.Finding, error)

// ExternalScanner shells out to an optional analysis binary. Absence of
// the binary on PATH is a normal condition, not an error.
type ExternalScanner struct {
	name      string
	binary    string
	probeArgs []string
	scanArgs  func(path string) []string
	parse     parseFunc
	logger    *slog.Logger
}

func (e *ExternalScanner) Name() string   { return e.name }
func (e *ExternalScanner) External() bool { return true }

// IsAvailable runs a version probe. Any failure (missing binary, permission
// error, timeout) reports false, never an error.
func (e *ExternalScanner) IsAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath(e.binary); err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(probeCtx, e.binary, e.probeArgs...)
	return cmd.Run() == nil
}

// Scan invokes the binary against the file path and parses its stdout.
// A non-zero exit code with parseable output is a valid result (most
// linters exit non-zero when they find issues). Unparseable output
// yields zero findings and a logged warning.
func (e *ExternalScanner) Scan(ctx context.Context, path, content string) ([]review.Finding, error) {
	cmd := exec.CommandContext(ctx, e.binary, e.scanArgs(path)...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || len(output) == 0 {
			return nil, err
		}
	}

	findings, parseErr := e.parse(output, e.name)
	if parseErr != nil {
		e.logger.Warn("scanner output not parseable, treating as zero findings",
			"scanner", e.name,
			"error", parseErr)
		return nil, nil
	}
	return findings, nil
}

// NewSemgrep wraps the semgrep binary.
func NewSemgrep(logger *slog.Logger) *ExternalScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalScanner{
		name:      "semgrep",
		binary:    "semgrep",
		probeArgs: []string{"--version"},
		scanArgs: func(path string) []string {
			return []string{"scan", "--config=auto", "--json", "--quiet", path}
		},
		parse:  parseSemgrep,
		logger: logger,
	}
}

// NewESLintSecurity wraps eslint with the security plugin config.
func NewESLintSecurity(logger *slog.Logger) *ExternalScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalScanner{
		name:      "eslint-security",
		binary:    "eslint",
		probeArgs: []string{"--version"},
		scanArgs: func(path string) []string {
			return []string{"--format", "json", path}
		},
		parse:  parseESLint,
		logger: logger,
	}
}

// NewBandit wraps the bandit Python scanner.
func NewBandit(logger *slog.Logger) *ExternalScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalScanner{
		name:      "bandit",
		binary:    "bandit",
		probeArgs: []string{"--version"},
		scanArgs: func(path string) []string {
			return []string{"-f", "json", "-q", path}
		},
		parse:  parseBandit,
		logger: logger,
	}
}

// NewDevSkim wraps the Microsoft DevSkim CLI.
func NewDevSkim(logger *slog.Logger) *ExternalScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalScanner{
		name:      "devskim",
		binary:    "devskim",
		probeArgs: []string{"--version"},
		scanArgs: func(path string) []string {
			return []string{"analyze", path, "-f", "json"}
		},
		parse:  parseDevSkim,
		logger: logger,
	}
}

// CodeQLScanner wraps the codeql CLI. A scan needs a prepared database
// directory; without one the scanner reports unavailable.
type CodeQLScanner struct {
	inner    *ExternalScanner
	database string
}

// NewCodeQL wraps codeql. database may be empty, which leaves the
// scanner permanently unavailable until one is configured.
func NewCodeQL(database string, logger *slog.Logger) *CodeQLScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeQLScanner{
		database: database,
		inner: &ExternalScanner{
			name:      "codeql",
			binary:    "codeql",
			probeArgs: []string{"version", "--format=terse"},
			scanArgs: func(path string) []string {
				return []string{"database", "analyze", database, "--format=sarif-latest", "--output=-"}
			},
			parse:  parseCodeQL,
			logger: logger,
		},
	}
}

func (c *CodeQLScanner) Name() string   { return c.inner.Name() }
func (c *CodeQLScanner) External() bool { return true }

func (c *CodeQLScanner) IsAvailable(ctx context.Context) bool {
	if c.database == "" {
		return false
	}
	return c.inner.IsAvailable(ctx)
}

func (c *CodeQLScanner) Scan(ctx context.Context, path, content string) ([]review.Finding, error) {
	return c.inner.Scan(ctx, path, content)
}

func parseSemgrep(output []byte, scanner string) ([]review.Finding, error) {
	var doc struct {
		Results []struct {
			CheckID string `json:"check_id"`
			Start   struct {
				Line int `json:"line"`
				Col  int `json:"col"`
			} `json:"start"`
			Extra struct {
				Message  string `json:"message"`
				Severity string `json:"severity"`
			} `json:"extra"`
		} `json:"results"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, err
	}
	findings := make([]review.Finding, 0, len(doc.Results))
	for _, r := range doc.Results {
		severity := review.SeverityWarning
		switch r.Extra.Severity {
		case "ERROR":
			severity = review.SeverityError
		case "INFO":
			severity = review.SeverityInfo
		}
		findings = append(findings, review.Finding{
			Type:     review.TypeSecurity,
			Severity: severity,
			Message:  r.Extra.Message,
			Line:     r.Start.Line,
			Column:   r.Start.Col,
			Rule:     r.CheckID,
			Scanner:  scanner,
		})
	}
	return findings, nil
}

func parseESLint(output []byte, scanner string) ([]review.Finding, error) {
	var doc []struct {
		Messages []struct {
			RuleID   string `json:"ruleId"`
			Severity int    `json:"severity"`
			Message  string `json:"message"`
			Line     int    `json:"line"`
			Column   int    `json:"column"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, err
	}
	var findings []review.Finding
	for _, file := range doc {
		for _, m := range file.Messages {
			severity := review.SeverityWarning
			if m.Severity >= 2 {
				severity = review.SeverityError
			}
			findings = append(findings, review.Finding{
				Type:     review.TypeSecurity,
				Severity: severity,
				Message:  m.Message,
				Line:     m.Line,
				Column:   m.Column,
				Rule:     m.RuleID,
				Scanner:  scanner,
			})
		}
	}
	return findings, nil
}

func parseBandit(output []byte, scanner string) ([]review.Finding, error) {
	var doc struct {
		Results []struct {
			IssueSeverity string `json:"issue_severity"`
			IssueText     string `json:"issue_text"`
			LineNumber    int    `json:"line_number"`
			TestID        string `json:"test_id"`
		} `json:"results"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, err
	}
	findings := make([]review.Finding, 0, len(doc.Results))
	for _, r := range doc.Results {
		severity := review.SeverityWarning
		switch r.IssueSeverity {
		case "HIGH":
			severity = review.SeverityError
		case "LOW":
			severity = review.SeverityInfo
		}
		findings = append(findings, review.Finding{
			Type:     review.TypeSecurity,
			Severity: severity,
			Message:  r.IssueText,
			Line:     r.LineNumber,
			Rule:     r.TestID,
			Scanner:  scanner,
		})
	}
	return findings, nil
}

func parseDevSkim(output []byte, scanner string) ([]review.Finding, error) {
	var doc []struct {
		RuleID      string `json:"rule_id"`
		RuleName    string `json:"rule_name"`
		Severity    string `json:"severity"`
		StartLine   int    `json:"start_line"`
		StartColumn int    `json:"start_column"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, err
	}
	findings := make([]review.Finding, 0, len(doc))
	for _, r := range doc {
		severity := review.SeverityWarning
		switch r.Severity {
		case "critical", "important":
			severity = review.SeverityError
		case "best-practice", "manual-review":
			severity = review.SeverityInfo
		}
		findings = append(findings, review.Finding{
			Type:     review.TypeSecurity,
			Severity: severity,
			Message:  r.RuleName,
			Line:     r.StartLine,
			Column:   r.StartColumn,
			Rule:     r.RuleID,
			Scanner:  scanner,
		})
	}
	return findings, nil
}

func parseCodeQL(output []byte, scanner string) ([]review.Finding, error) {
	var doc struct {
		Runs []struct {
			Results []struct {
				RuleID  string `json:"ruleId"`
				Level   string `json:"level"`
				Message struct {
					Text string `json:"text"`
				} `json:"message"`
				Locations []struct {
					PhysicalLocation struct {
						Region struct {
							StartLine   int `json:"startLine"`
							StartColumn int `json:"startColumn"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, err
	}
	var findings []review.Finding
	for _, run := range doc.Runs {
		for _, r := range run.Results {
			severity := review.SeverityWarning
			switch r.Level {
			case "error":
				severity = review.SeverityError
			case "note":
				severity = review.SeverityInfo
			}
			f := review.Finding{
				Type:     review.TypeSecurity,
				Severity: severity,
				Message:  r.Message.Text,
				Rule:     r.RuleID,
				Scanner:  scanner,
			}
			if len(r.Locations) > 0 {
				f.Line = r.Locations[0].PhysicalLocation.Region.StartLine
				f.Column = r.Locations[0].PhysicalLocation.Region.StartColumn
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}
