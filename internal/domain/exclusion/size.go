package exclusion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// sizePattern accepts a decimal number followed by an optional space and
// a unit. Anything else is a parse error.
var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]+)$`)

var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
}

// ParseSizeError describes a size string that could not be parsed.
type ParseSizeError struct {
	Input  string
	Reason string
}

func (e *ParseSizeError) Error() string {
	return fmt.Sprintf("invalid size %q: %s", e.Input, e.Reason)
}

// ParseSize converts strings like "1MB", "2.5KB" or "1 gb" to a byte
// count. Units are case-insensitive.
func ParseSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	m := sizePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, &ParseSizeError{Input: s, Reason: "expected <number><unit> with unit B, KB, MB or GB"}
	}
	mult, ok := sizeUnits[strings.ToUpper(m[2])]
	if !ok {
		return 0, &ParseSizeError{Input: s, Reason: fmt.Sprintf("unknown unit %q", m[2])}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, &ParseSizeError{Input: s, Reason: "invalid number"}
	}
	return int64(value * float64(mult)), nil
}
