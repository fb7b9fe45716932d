// Package runtime starts the external simulator as a supervised child process,
// either directly on the host or inside a container.
package runtime

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrEmptyCommand is returned when StartOptions carries no command.
var ErrEmptyCommand = errors.New("command is required")

// Runtime defines the interface for launching the simulator.
// Implementations include Docker and raw process execution.
type Runtime interface {
	// Start begins execution of a job and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting a job.
type StartOptions struct {
	Image   string
	Command []string
	Env     map[string]string
	// Dir is the job directory holding simulator input and output. It becomes
	// the working directory of the process.
	Dir string
}

// ExitResult is the outcome of a finished process.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents a running simulator.
type Handle interface {
	// Wait blocks until the process exits or ctx is done. On ctx expiry the
	// exit code is -1 and the process keeps running.
	Wait(ctx context.Context) (ExitResult, error)

	// Interrupt asks the process to stop and flush its output (SIGINT).
	Interrupt(ctx context.Context) error

	// Stop forcefully terminates the process.
	Stop(ctx context.Context) error

	// StreamLogs returns the combined stdout/stderr of the process.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)

	// Release frees resources held after the process exited.
	Release(ctx context.Context) error
}
