package exclusion_test

import (
	"errors"
	"testing"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		input string
		want  int64
	}{
		{"1MB", 1048576},
		{"2.5KB", 2560},
		{"1 GB", 1073741824},
		{"1gb", 1073741824},
		{"512B", 512},
		{"0.5 mb", 524288},
	}
	for _, tc := range cases {
		got, err := exclusion.ParseSize(tc.input)
		if err != nil {
			t.Errorf("ParseSize(%q): unexpected error %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseSize_Invalid(t *testing.T) {
	for _, input := range []string{"1MBx", "abc", "", "MB", "-1MB", "1TB", "1.2.3KB"} {
		_, err := exclusion.ParseSize(input)
		if err == nil {
			t.Errorf("ParseSize(%q): expected error", input)
			continue
		}
		var parseErr *exclusion.ParseSizeError
		if !errors.As(err, &parseErr) {
			t.Errorf("ParseSize(%q): expected *ParseSizeError, got %T", input, err)
		}
	}
}
