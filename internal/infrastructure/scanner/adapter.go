// Package scanner provides the uniform adapter interface over built-in
// pattern scanners and optional external analysis binaries.
package scanner

import (
	"context"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// Adapter is the capability-check interface every scanner implements.
//
// IsAvailable is evaluated per request, never cached across requests:
// external tool installation state can change under us. It must not
// panic and only returns false on any failure.
//
// Scan must not fail for recoverable conditions: a non-zero exit code
// with parseable output is a valid result, and unparseable output yields
// zero findings plus a logged warning rather than an error.
type Adapter interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Scan(ctx context.Context, path, content string) ([]review.Finding, error)
}

// External marks adapters that shell out to an optional binary. The
// aggregator only runs these when the request opts in.
type External interface {
	Adapter
	External() bool
}
