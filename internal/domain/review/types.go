// Package review defines the finding and result types shared by every
// scanner and by the aggregation layer.
package review

// FindingType classifies what kind of issue a scanner reported.
type FindingType string

const (
	TypeSecurity FindingType = "security"
	TypeQuality  FindingType = "quality"
	TypeStyle    FindingType = "style"
)

// Severity ranks how urgent a finding is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Finding is one reported issue from a single scanner invocation.
// Findings are never mutated after creation.
type Finding struct {
	Type     FindingType `json:"type"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Line     int         `json:"line,omitempty"`
	Column   int         `json:"column,omitempty"`
	Rule     string      `json:"rule,omitempty"`
	Scanner  string      `json:"scanner"`
}

// Stats summarizes the findings of one review.
type Stats struct {
	TotalIssues int            `json:"totalIssues"`
	ByType      map[string]int `json:"byType"`
	BySeverity  map[string]int `json:"bySeverity"`
	ByScanner   map[string]int `json:"byScanner"`
}

// ComputeStats builds frequency maps over the finding fields.
func ComputeStats(findings []Finding) Stats {
	s := Stats{
		TotalIssues: len(findings),
		ByType:      make(map[string]int),
		BySeverity:  make(map[string]int),
		ByScanner:   make(map[string]int),
	}
	for _, f := range findings {
		s.ByType[string(f.Type)]++
		s.BySeverity[string(f.Severity)]++
		s.ByScanner[f.Scanner]++
	}
	return s
}

// Request describes one file to review.
type Request struct {
	File            string `json:"file"`
	Content         string `json:"content,omitempty"`
	IncludeExternal bool   `json:"includeExternal"`
	Tool            string `json:"tool,omitempty"`
}

// Result is the outcome of reviewing one file. It is returned to the
// caller and then discarded; nothing is persisted.
type Result struct {
	Success       bool      `json:"success"`
	Excluded      bool      `json:"excluded"`
	ExcludeReason string    `json:"excludeReason,omitempty"`
	Findings      []Finding `json:"findings"`
	Stats         Stats     `json:"stats"`
	// Warnings records degraded-mode conditions such as scanner timeouts.
	// They are not findings because they are not code issues.
	Warnings []string `json:"warnings,omitempty"`
	// FailedScanners counts adapters that errored or timed out.
	FailedScanners int `json:"failedScanners,omitempty"`
}
