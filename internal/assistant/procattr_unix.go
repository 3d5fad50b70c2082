//go:build unix

package assistant

import (
	"os"
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so a timeout
// kill reaches grandchildren too, not just the immediate child.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers sig to the child's entire process group, falling
// back to the single process when the group cannot be resolved.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(p.Pid)
	if err != nil {
		return p.Signal(sig)
	}
	return syscall.Kill(-pgid, sig)
}

func terminateGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGTERM)
}

func killGroup(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}
