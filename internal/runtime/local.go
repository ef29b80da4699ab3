package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalRuntime implements Runtime directly against this host's filesystem,
// for deployments where the engine and database are not containerized.
type LocalRuntime struct {
	timeout time.Duration
}

// NewLocalRuntime creates a host-local runtime.
func NewLocalRuntime(timeout time.Duration) *LocalRuntime {
	return &LocalRuntime{timeout: timeout}
}

// CopyFrom copies the directory src to dst. dst must not exist yet.
func (r *LocalRuntime) CopyFrom(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return copyDir(ctx, src, dst)
}

// CopyTo copies the directory src to dst. Same semantics as CopyFrom; the
// split only matters for the container variant.
func (r *LocalRuntime) CopyTo(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return copyDir(ctx, src, dst)
}

// Remove deletes a path recursively.
func (r *LocalRuntime) Remove(ctx context.Context, path string) error {
	if err := validateRemovePath(path); err != nil {
		return err
	}
	return os.RemoveAll(path)
}

// ExecToFile runs a host command and writes its stdout to outPath.
func (r *LocalRuntime) ExecToFile(ctx context.Context, cmd []string, outPath string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("empty command")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	command := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	command.Stdout = out

	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return commandError(ctx, fmt.Sprintf("exec %s", cmd[0]), stderr.String(), err)
	}
	return nil
}

// copyDir copies a directory tree, checking for cancellation between files.
func copyDir(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(ctx, srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Sync()
}
