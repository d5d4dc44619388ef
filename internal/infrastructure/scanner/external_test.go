package scanner

import (
	"context"
	"testing"
)

func TestIsAvailable_MissingBinary(t *testing.T) {
	s := &ExternalScanner{
		name:      "ghost",
		binary:    "definitely-not-installed-scanner-7182",
		probeArgs: []string{"--version"},
	}
	if s.IsAvailable(context.Background()) {
		t.Error("missing binary must report unavailable")
	}
}

func TestCodeQL_UnavailableWithoutDatabase(t *testing.T) {
	s := NewCodeQL("", nil)
	if s.IsAvailable(context.Background()) {
		t.Error("codeql without a database must report unavailable")
	}
}

func TestParseSemgrep(t *testing.T) {
	output := []byte(`{"results":[{"check_id":"go.lang.security.audit","start":{"line":3,"col":5},"extra":{"message":"tainted input","severity":"ERROR"}}]}`)

	findings, err := parseSemgrep(output, "semgrep")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Rule != "go.lang.security.audit" || f.Line != 3 || f.Column != 5 {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.Severity != "error" || f.Scanner != "semgrep" {
		t.Errorf("unexpected finding: %+v", f)
	}
}

func TestParseESLint(t *testing.T) {
	output := []byte(`[{"filePath":"a.js","messages":[{"ruleId":"security/detect-eval","severity":2,"message":"eval","line":7,"column":2}]}]`)

	findings, err := parseESLint(output, "eslint-security")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(findings) != 1 || findings[0].Severity != "error" || findings[0].Line != 7 {
		t.Errorf("unexpected findings: %+v", findings)
	}
}

func TestParseBandit(t *testing.T) {
	output := []byte(`{"results":[{"issue_severity":"HIGH","issue_text":"shell injection","line_number":12,"test_id":"B602"}]}`)

	findings, err := parseBandit(output, "bandit")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(findings) != 1 || findings[0].Rule != "B602" || findings[0].Severity != "error" {
		t.Errorf("unexpected findings: %+v", findings)
	}
}

func TestParseGarbage(t *testing.T) {
	for name, parse := range map[string]parseFunc{
		"semgrep": parseSemgrep,
		"eslint":  parseESLint,
		"bandit":  parseBandit,
		"devskim": parseDevSkim,
		"codeql":  parseCodeQL,
	} {
		if _, err := parse([]byte("not json"), name); err == nil {
			t.Errorf("%s: expected parse error for garbage output", name)
		}
	}
}

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry(RegistryConfig{}, nil)
	if len(r.Builtin()) != 2 {
		t.Errorf("expected 2 builtin scanners, got %d", len(r.Builtin()))
	}
	if len(r.ExternalAdapters()) != 5 {
		t.Errorf("expected 5 external scanners, got %d", len(r.ExternalAdapters()))
	}
}

func TestNewRegistry_EnabledSubset(t *testing.T) {
	r := NewRegistry(RegistryConfig{Enabled: []string{"semgrep", "nope"}}, nil)
	if len(r.ExternalAdapters()) != 1 || r.ExternalAdapters()[0].Name() != "semgrep" {
		t.Errorf("unexpected external set: %v", r.ExternalAdapters())
	}
}
