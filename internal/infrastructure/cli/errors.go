package cli

import (
	"errors"
	"fmt"

	"github.com/RickCogley/aichaku-sub007/internal/domain/exclusion"
	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var sizeErr *exclusion.ParseSizeError
	if errors.As(err, &sizeErr) {
		return NewCLIError(
			sizeErr.Error(),
			`Use a size like "500KB" or "10MB" for maxFileSize`,
			err,
		)
	}

	switch {
	case errors.Is(err, review.ErrSessionDead):
		return NewCLIError("session worker died", "Retry the request; a fresh worker is spawned on the next call", err)
	case errors.Is(err, review.ErrSessionClosed):
		return NewCLIError("session is closing", "Wait for the close to finish, then retry with the same session id", err)
	case errors.Is(err, review.ErrSessionNotFound):
		return NewCLIError("session not found", "POST /rpc creates a session on first use; check the session id", err)
	case errors.Is(err, review.ErrStartupTimeout):
		return NewCLIError("worker failed to start in time", "Check server logs; the worker binary may be missing or crashing", err)
	case errors.Is(err, review.ErrRequestTimeout):
		return NewCLIError("request timed out", "Raise request_timeout in reviewd.yaml or split the review", err)
	}

	return err
}
