// Package stager pulls benchmark inputs from a remote staging server into
// local storage before they are used, and cleans them up afterwards.
package stager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// Fetcher retrieves a named remote file and returns the path of its
// local copy. Fetch blocks until the transfer completes or fails.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// TransferError reports a failed staging transfer.
type TransferError struct {
	Name string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Name, e.Err.Error())
}

func (e *TransferError) Unwrap() error { return e.Err }

// Remove deletes staged files. Missing files are skipped and other
// failures are logged, never returned.
func Remove(logger *slog.Logger, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}

		err := os.Remove(p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}

		logger.Warn("failed to remove staged file",
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
	}
}
