// Package scanner discovers the candidate files for a remediation run.
// Candidates are git-tracked files with the configured extension that
// survive the exclusion filters; everything skipped is reported with the
// reason so a run can be audited.
package scanner

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lintmend/lintmend/internal/config"
)

// SkipReason explains why a tracked file was not selected.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipExtension   SkipReason = "extension"
	SkipExcludedDir SkipReason = "excluded_dir"
	SkipTestFile    SkipReason = "test_file"
	SkipDunder      SkipReason = "dunder"
	SkipEmpty       SkipReason = "empty"
	SkipTooShort    SkipReason = "too_short"
	SkipTooLong     SkipReason = "too_long"
)

// Candidate is one tracked file and its selection outcome.
type Candidate struct {
	Path      string
	LineCount int
	Skip      SkipReason
}

// Selected reports whether the candidate survived all filters.
func (c Candidate) Selected() bool { return c.Skip == SkipNone }

// Scanner walks the repository's tracked files.
type Scanner struct {
	repo string
	cfg  config.ScanConfig
	log  *slog.Logger
}

// listTrackedFn is swapped in tests to avoid needing a real repository.
var listTrackedFn = listTracked

// New creates a scanner rooted at repo.
func New(repo string, cfg config.ScanConfig, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{repo: repo, cfg: cfg, log: log}
}

// Scan returns every tracked file with the configured extension and the
// filter outcome for each. The returned order follows git's listing.
func (s *Scanner) Scan() ([]Candidate, error) {
	tracked, err := listTrackedFn(s.repo)
	if err != nil {
		return nil, fmt.Errorf("listing tracked files: %w", err)
	}

	var out []Candidate
	for _, rel := range tracked {
		if !strings.HasSuffix(rel, s.cfg.Extension) {
			continue
		}
		c := s.classify(rel)
		if !c.Selected() {
			s.log.Info("skipping file", "file", rel, "reason", string(c.Skip))
		}
		out = append(out, c)
	}
	return out, nil
}

// Selected returns only the candidates that survived filtering.
func (s *Scanner) Selected() ([]Candidate, error) {
	all, err := s.Scan()
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, c := range all {
		if c.Selected() {
			out = append(out, c)
		}
	}
	return out, nil
}

// Classify applies the filters to a single explicit file path. Used for
// single-file runs so the same skip rules still apply.
func (s *Scanner) Classify(rel string) Candidate {
	return s.classify(rel)
}

func (s *Scanner) classify(rel string) Candidate {
	c := Candidate{Path: rel}

	if !strings.HasSuffix(rel, s.cfg.Extension) {
		c.Skip = SkipExtension
		return c
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, excluded := range s.cfg.ExcludeDirs {
			if part == excluded {
				c.Skip = SkipExcludedDir
				return c
			}
		}
	}

	base := filepath.Base(rel)
	if strings.HasPrefix(base, "test_") {
		c.Skip = SkipTestFile
		return c
	}
	if strings.Contains(base, "__") {
		c.Skip = SkipDunder
		return c
	}

	lines, err := countLines(filepath.Join(s.repo, rel))
	if err != nil {
		// Unreadable counts as empty; the orchestrator never sees it.
		c.Skip = SkipEmpty
		return c
	}
	c.LineCount = lines

	switch {
	case lines == 0:
		c.Skip = SkipEmpty
	case lines < s.cfg.LineCountMin:
		c.Skip = SkipTooShort
	case lines > s.cfg.LineCountMax:
		c.Skip = SkipTooLong
	}
	return c
}

func listTracked(repo string) ([]string, error) {
	cmd := exec.Command("git", "ls-files")
	cmd.Dir = repo
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
