// Package runtime abstracts the container/process boundary used for moving
// partition files and producing database dumps.
//
// Every invocation is a blocking external call under a bounded timeout; a
// timeout is treated exactly like a non-zero exit code, so the calling saga
// takes the same rollback path for both.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/egibi/tierd/internal/errors"
)

// Runtime executes file and process operations against one container (or,
// for the local variant, directly against this host).
type Runtime interface {
	// CopyFrom copies the directory src inside the container to the host
	// path dst. dst must not exist yet; it becomes the copied directory.
	CopyFrom(ctx context.Context, src, dst string) error

	// CopyTo copies the host directory src to the path dst inside the
	// container.
	CopyTo(ctx context.Context, src, dst string) error

	// Remove deletes the path inside the container recursively.
	Remove(ctx context.Context, path string) error

	// ExecToFile runs cmd inside the container and writes its stdout to
	// the host file outPath. Stderr is captured into the returned error.
	ExecToFile(ctx context.Context, cmd []string, outPath string) error
}

// validateRemovePath rejects paths that would make a recursive delete
// catastrophic. Lifecycle deletes only ever target paths at least three
// levels deep (data dir / table / partition).
func validateRemovePath(path string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return fmt.Errorf("remove path must be absolute: %q: %w", path, errors.ErrInvalidPartition)
	}
	if strings.Count(clean, "/") < 3 {
		return fmt.Errorf("remove path too shallow: %q: %w", path, errors.ErrInvalidPartition)
	}
	return nil
}

// commandError converts a process failure into a sentinel-wrapped error,
// distinguishing timeouts from plain non-zero exits.
func commandError(ctx context.Context, what string, stderr string, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s: %w", what, errors.ErrTimeout)
	}
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%s: %s: %w", what, msg, errors.ErrCommandFailed)
}
