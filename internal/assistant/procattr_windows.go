//go:build windows

package assistant

import (
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; Setpgid is not supported there.
func setSysProcAttr(cmd *exec.Cmd) {
}

// terminateGroup sends a Ctrl+C equivalent, falling back to Kill.
func terminateGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}

func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
