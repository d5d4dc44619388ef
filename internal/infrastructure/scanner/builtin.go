package scanner

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// patternRule is one compiled detection rule of a built-in scanner.
type patternRule struct {
	id       string
	re       *regexp.Regexp
	message  string
	ftype    review.FindingType
	severity review.Severity
}

// PatternScanner is a built-in scanner that matches compiled regexp
// rules line by line. It has no external dependencies and is always
// available.
type PatternScanner struct {
	name  string
	rules []patternRule
}

// NewSecurityPatterns returns the built-in security scanner.
func NewSecurityPatterns() *PatternScanner {
	return &PatternScanner{
		name: "security-patterns",
		rules: []patternRule{
			{
				id:       "eval-usage",
				re:       regexp.MustCompile(`\beval\s*\(`),
				message:  "Use of eval() allows arbitrary code execution",
				ftype:    review.TypeSecurity,
				severity: review.SeverityError,
			},
			{
				id:       "exec-usage",
				re:       regexp.MustCompile(`child_process|subprocess\.call|os\.system|exec\s*\(`),
				message:  "Direct process execution; validate and sanitize all inputs",
				ftype:    review.TypeSecurity,
				severity: review.SeverityWarning,
			},
			{
				id:       "hardcoded-secret",
				re:       regexp.MustCompile(`(?i)(password|secret|api[_-]?key|token)\s*[:=]\s*['"][^'"]{8,}['"]`),
				message:  "Possible hardcoded credential",
				ftype:    review.TypeSecurity,
				severity: review.SeverityError,
			},
			{
				id:       "insecure-transport",
				re:       regexp.MustCompile(`http://(?:[a-zA-Z0-9.-]+)(?:/|\s|['"])`),
				message:  "Unencrypted http:// URL; prefer https",
				ftype:    review.TypeSecurity,
				severity: review.SeverityWarning,
			},
			{
				id:       "sql-concat",
				re:       regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\b.*["']\s*\+`),
				message:  "SQL built by string concatenation; use parameterized queries",
				ftype:    review.TypeSecurity,
				severity: review.SeverityError,
			},
		},
	}
}

// NewQualityPatterns returns the built-in quality scanner.
func NewQualityPatterns() *PatternScanner {
	return &PatternScanner{
		name: "quality-patterns",
		rules: []patternRule{
			{
				id:       "debug-print",
				re:       regexp.MustCompile(`\bconsole\.log\(|\bfmt\.Println\(|\bprint\s*\(`),
				message:  "Debug print statement left in code",
				ftype:    review.TypeQuality,
				severity: review.SeverityInfo,
			},
			{
				id:       "todo-marker",
				re:       regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`),
				message:  "Unresolved TODO/FIXME marker",
				ftype:    review.TypeQuality,
				severity: review.SeverityInfo,
			},
			{
				id:       "empty-catch",
				re:       regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`),
				message:  "Empty catch block swallows errors",
				ftype:    review.TypeQuality,
				severity: review.SeverityWarning,
			},
			{
				id:       "long-line",
				re:       regexp.MustCompile(`^.{161,}$`),
				message:  "Line exceeds 160 characters",
				ftype:    review.TypeStyle,
				severity: review.SeverityInfo,
			},
		},
	}
}

func (p *PatternScanner) Name() string { return p.name }

// IsAvailable always reports true; built-in scanners have nothing to probe.
func (p *PatternScanner) IsAvailable(ctx context.Context) bool { return true }

// Scan matches every rule against every line. When content is empty the
// file is read from disk.
func (p *PatternScanner) Scan(ctx context.Context, path, content string) ([]review.Finding, error) {
	if content == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		content = string(data)
	}

	var findings []review.Finding
	for lineNo, line := range strings.Split(content, "\n") {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		for _, rule := range p.rules {
			loc := rule.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			findings = append(findings, review.Finding{
				Type:     rule.ftype,
				Severity: rule.severity,
				Message:  rule.message,
				Line:     lineNo + 1,
				Column:   loc[0] + 1,
				Rule:     rule.id,
				Scanner:  p.name,
			})
		}
	}
	return findings, nil
}
