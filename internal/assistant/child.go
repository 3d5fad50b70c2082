package assistant

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/lintmend/lintmend/internal/fault"
)

// child is a started assistant process as the interaction loop sees it.
// The real implementation wraps exec.Cmd; tests substitute a scripted fake
// through launchFn.
type child interface {
	Stdout() io.Reader
	Stdin() io.Writer
	// Wait reaps the process and returns its exit code. It must be called
	// exactly once, after the stdout stream has been fully consumed.
	Wait() (int, error)
	// Terminate asks the whole process group to shut down.
	Terminate() error
	// Kill forcibly ends the whole process group.
	Kill() error
	// StderrText returns everything the child wrote to stderr so far.
	StderrText() string
}

// launchFn starts the assistant child process. Swapped in tests.
var launchFn = launchExec

// execChild runs the assistant under exec.Cmd in its own process group.
type execChild struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

func launchExec(exe string, args []string, dir string, env []string) (child, error) {
	cmd := exec.Command(exe, args...)
	cmd.Dir = dir
	cmd.Env = env
	setSysProcAttr(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fault.NewProcessError("pipe", exe, -1, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fault.NewProcessError("pipe", exe, -1, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fault.NewProcessError("start", exe, -1, err)
	}
	return &execChild{cmd: cmd, stdout: stdout, stdin: stdin, stderr: &stderr}, nil
}

func (c *execChild) Stdout() io.Reader { return c.stdout }
func (c *execChild) Stdin() io.Writer  { return c.stdin }

func (c *execChild) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait for %s: %w", c.cmd.Path, err)
}

func (c *execChild) Terminate() error { return terminateGroup(c.cmd.Process) }
func (c *execChild) Kill() error      { return killGroup(c.cmd.Process) }

func (c *execChild) StderrText() string { return c.stderr.String() }
