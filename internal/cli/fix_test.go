package cli

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/lintmend/lintmend/internal/config"
	"github.com/lintmend/lintmend/internal/grouper"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func TestRunFixRejectsUnknownStrategy(t *testing.T) {
	withConfig(t, config.Default())

	err := runFix(nil, grouper.Strategy("bogus"), false, true)
	if err == nil {
		t.Fatal("unknown strategy accepted")
	}
	if !strings.Contains(err.Error(), "unknown strategy") {
		t.Errorf("error = %v, want unknown strategy", err)
	}
}

func TestRunFixRefusesNonRepoPath(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	c := config.Default()
	c.RepoPath = t.TempDir()
	withConfig(t, c)

	err := runFix(nil, grouper.StrategyAuto, false, true)
	if err == nil {
		t.Fatal("non-repo path accepted")
	}
	if !strings.Contains(err.Error(), "git repository") {
		t.Errorf("error = %v, want git repository refusal", err)
	}
}

func TestRunWatchRejectsUnknownStrategy(t *testing.T) {
	withConfig(t, config.Default())

	err := runWatch(grouper.Strategy("bogus"), 0)
	if err == nil {
		t.Fatal("unknown strategy accepted")
	}
	if !strings.Contains(err.Error(), "unknown strategy") {
		t.Errorf("error = %v, want unknown strategy", err)
	}
}
