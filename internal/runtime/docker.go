package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/egibi/tierd/internal/logging"
)

var dockerLog = logging.Component("runtime")

// DockerRuntime runs file and process operations against a named container
// by shelling out to the docker CLI.
type DockerRuntime struct {
	container string
	timeout   time.Duration
}

// NewDockerRuntime creates a runtime bound to the given container name.
func NewDockerRuntime(container string, timeout time.Duration) *DockerRuntime {
	return &DockerRuntime{container: container, timeout: timeout}
}

// CopyFrom copies a directory out of the container. When dst does not exist
// docker cp creates it as a copy of src, which is exactly the rename-free
// semantics the archive path needs.
func (r *DockerRuntime) CopyFrom(ctx context.Context, src, dst string) error {
	return r.run(ctx, fmt.Sprintf("copy %s out of %s", src, r.container),
		"cp", r.container+":"+src, dst)
}

// CopyTo copies a host directory into the container at dst.
func (r *DockerRuntime) CopyTo(ctx context.Context, src, dst string) error {
	return r.run(ctx, fmt.Sprintf("copy %s into %s", src, r.container),
		"cp", src, r.container+":"+dst)
}

// Remove deletes a path inside the container recursively.
func (r *DockerRuntime) Remove(ctx context.Context, path string) error {
	if err := validateRemovePath(path); err != nil {
		return err
	}
	return r.run(ctx, fmt.Sprintf("remove %s in %s", path, r.container),
		"exec", r.container, "rm", "-rf", path)
}

// ExecToFile runs a command inside the container and streams its stdout to a
// host file.
func (r *DockerRuntime) ExecToFile(ctx context.Context, cmd []string, outPath string) error {
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

	args := append([]string{"exec", r.container}, cmd...)
	command := exec.CommandContext(ctx, "docker", args...)
	command.Stdout = out

	var stderr bytes.Buffer
	command.Stderr = &stderr

	dockerLog.Debug("exec", "container", r.container, "cmd", cmd[0], "out", outPath)

	if err := command.Run(); err != nil {
		return commandError(ctx, fmt.Sprintf("exec %s in %s", cmd[0], r.container), stderr.String(), err)
	}
	return nil
}

// run executes one docker CLI invocation under the runtime timeout.
func (r *DockerRuntime) run(ctx context.Context, what string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	command := exec.CommandContext(ctx, "docker", args...)

	var stderr bytes.Buffer
	command.Stderr = &stderr

	dockerLog.Debug("docker", "args", args)

	if err := command.Run(); err != nil {
		return commandError(ctx, what, stderr.String(), err)
	}
	return nil
}
