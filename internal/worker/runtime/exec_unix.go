//go:build unix

package runtime

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/cockroachdb/errors"
)

// setProcessGroup makes the child the leader of a new process group, so that
// signals reach whatever a launcher script spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interruptGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGINT)
}

func killGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	// the group id is the leader's pid
	if err := syscall.Kill(-p.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
