// Package git wraps the git CLI operations the remediation pipeline
// needs: per-file commits, revision lookup, and reverting the most
// recent commit after a failed post-fix test run.
package git

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Service executes git operations inside one repository.
type Service struct {
	repo string
	env  []string
	log  *slog.Logger
}

// NewService creates a git service rooted at repo. env is passed to every
// git invocation; nil inherits the parent environment.
func NewService(repo string, env []string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, env: env, log: log}
}

// runGitFn is swapped in tests that exercise decision logic without a
// real repository. Integration tests use the real implementation.
var runGitFn = runGit

func runGit(dir string, env []string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// IsRepository reports whether dir is inside a git repository.
func IsRepository(dir string) bool {
	_, err := runGitFn(dir, nil, "rev-parse", "--git-dir")
	return err == nil
}

// IsTopLevel reports whether the service's repo path is the repository's
// top-level directory. Runs refuse to start anywhere else so commit and
// revert paths stay unambiguous.
func (s *Service) IsTopLevel() bool {
	out, err := runGitFn(s.repo, s.env, "rev-parse", "--show-toplevel")
	if err != nil {
		return false
	}
	top, err := filepath.Abs(strings.TrimSpace(out))
	if err != nil {
		return false
	}
	repo, err := filepath.Abs(s.repo)
	if err != nil {
		return false
	}
	return top == repo
}

// HasChanges reports whether file has uncommitted modifications.
func (s *Service) HasChanges(file string) (bool, error) {
	out, err := runGitFn(s.repo, s.env, "status", "--porcelain", "--", file)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit stages and commits file with message. A file with no pending
// changes is a logged no-op, not an error.
func (s *Service) Commit(file, message string) error {
	changed, err := s.HasChanges(file)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Info("no changes to commit", "file", file)
		return nil
	}
	if _, err := runGitFn(s.repo, s.env, "add", "--", file); err != nil {
		return err
	}
	if _, err := runGitFn(s.repo, s.env, "commit", "-m", message, "--", file); err != nil {
		return err
	}
	s.log.Info("committed changes", "file", file)
	return nil
}

// CurrentRevision returns the SHA of HEAD.
func (s *Service) CurrentRevision() (string, error) {
	out, err := runGitFn(s.repo, s.env, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RevertLastCommit reverts HEAD with a generated revert commit. The
// caller is expected to halt the run afterwards for human inspection.
func (s *Service) RevertLastCommit() error {
	s.log.Info("attempting to revert last commit")
	if _, err := runGitFn(s.repo, s.env, "revert", "--no-edit", "HEAD"); err != nil {
		return err
	}
	return nil
}

// ListTracked returns the repository's tracked file paths.
func (s *Service) ListTracked() ([]string, error) {
	out, err := runGitFn(s.repo, s.env, "ls-files")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}
