package runtime

import (
	"context"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/errors"
)

// LogFileName is the file inside the job directory receiving simulator output.
const LogFileName = "simulator.log"

// ExecRuntime implements the Runtime interface using raw OS processes.
type ExecRuntime struct {
	WorkDir string
}

// NewExecRuntime creates a process-based runtime. Jobs without an explicit
// directory run under workDir.
func NewExecRuntime(workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "pdsa", "jobs")
	}
	return &ExecRuntime{WorkDir: workDir}
}

// ExecHandle is a running child process.
type ExecHandle struct {
	cmd     *exec.Cmd
	logPath string
	logFile *os.File

	done    chan struct{}
	waitErr error
}

// Start implements Runtime.Start using os/exec. The image is ignored.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, ErrEmptyCommand
	}

	dir := opts.Dir
	if dir == "" {
		dir = e.WorkDir
		if id, ok := opts.Env["PDSA_JOB_ID"]; ok {
			dir = filepath.Join(e.WorkDir, id)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create job directory %s", dir)
	}

	logPath := filepath.Join(dir, LogFileName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create log file")
	}

	// Not CommandContext: cancellation goes through Supervise so the process
	// gets SIGINT and a grace period before the kill.
	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = dir
	setProcessGroup(cmd)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		cmd.Env = append(cmd.Env, k+"="+opts.Env[k])
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, errors.Wrapf(err, "failed to start %s", opts.Command[0])
	}

	h := &ExecHandle{
		cmd:     cmd,
		logPath: logPath,
		logFile: logFile,
		done:    make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		h.logFile.Close()
		close(h.done)
	}()
	return h, nil
}

// Wait implements Handle.Wait.
func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}

	if h.waitErr == nil {
		return ExitResult{ExitCode: 0}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		return ExitResult{ExitCode: exitErr.ExitCode(), Error: h.waitErr}, nil
	}
	return ExitResult{ExitCode: -1, Error: h.waitErr}, nil
}

// Interrupt sends SIGINT to the process group.
func (h *ExecHandle) Interrupt(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := interruptGroup(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "failed to interrupt process")
	}
	return nil
}

// Stop kills the process group and waits for the leader to be reaped.
func (h *ExecHandle) Stop(ctx context.Context) error {
	if err := killGroup(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "failed to kill process")
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StreamLogs waits for the process to exit and returns its output.
func (h *ExecHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return os.Open(h.logPath)
}

// Release kills what is left of the process group once the leader exited, such
// as solvers a launcher script left running. The log file is part of the job
// directory and is removed with it.
func (h *ExecHandle) Release(ctx context.Context) error {
	select {
	case <-h.done:
	default:
		return nil
	}
	if err := killGroup(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "failed to kill leftover processes")
	}
	return nil
}
