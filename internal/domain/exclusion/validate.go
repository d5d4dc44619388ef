package exclusion

import (
	"fmt"
	"regexp"
)

// Nested unbounded quantifiers of the form (X+)+ or (X*)* are the classic
// catastrophic-backtracking shapes: a group whose body ends in an
// unbounded quantifier, itself quantified.
var redosShapes = []*regexp.Regexp{
	regexp.MustCompile(`\([^)]*[+*]\)[+*]`),
	regexp.MustCompile(`\([^)]*\{\d+,\}\)[+*]`),
	regexp.MustCompile(`\([^)]*[+*]\)\{\d+,\}`),
}

// ValidateConfig scans every configured pattern for constructs known to
// cause catastrophic regexp backtracking and returns human-readable
// warnings. It never rejects the config; the caller decides whether the
// warnings abort startup.
func ValidateConfig(cfg Config) []string {
	var warnings []string

	check := func(category, rule string) {
		for _, shape := range redosShapes {
			if shape.MatchString(rule) {
				warnings = append(warnings, fmt.Sprintf(
					"%s rule %q contains a nested unbounded quantifier and may cause catastrophic backtracking",
					category, rule))
				return
			}
		}
	}

	for _, rule := range cfg.Patterns {
		check("pattern", rule)
	}
	for _, rule := range cfg.ContentTypes {
		check("contentTypes", rule)
	}
	for tool, rules := range cfg.PerToolExclusions {
		for _, rule := range rules {
			check(fmt.Sprintf("perToolExclusions[%s]", tool), rule)
		}
	}
	return warnings
}
