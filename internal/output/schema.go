package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lintmend/lintmend/internal/orchestrator"
	"github.com/lintmend/lintmend/internal/scanner"
)

// ErrorResponse is the standard JSON error format
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// NewError creates a new error response
func NewError(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// NewErrorWithCode creates a new error response with a code
func NewErrorWithCode(code, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, Code: code}
}

// SuccessResponse is a simple success indicator
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewSuccess creates a success response
func NewSuccess(msg string) SuccessResponse {
	return SuccessResponse{Success: true, Message: msg}
}

// TimestampedResponse adds a timestamp to any response
type TimestampedResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// NewTimestamped creates a timestamped response base
func NewTimestamped() TimestampedResponse {
	return TimestampedResponse{GeneratedAt: Timestamp()}
}

// FileReport is the per-file slice of a fix run
type FileReport struct {
	File         string `json:"file"`
	State        string `json:"state"`
	Issues       int    `json:"issues"`
	Groups       int    `json:"groups,omitempty"`
	Sessions     int    `json:"sessions,omitempty"`
	TestsFailed  bool   `json:"tests_failed,omitempty"`
	Committed    bool   `json:"committed"`
	CommitSHA    string `json:"commit_sha,omitempty"`
	Reverted     bool   `json:"reverted,omitempty"`
	LinesAdded   int    `json:"lines_added,omitempty"`
	LinesRemoved int    `json:"lines_removed,omitempty"`
	Failure      string `json:"failure,omitempty"`
}

// FixReport is the output format for the fix command
type FixReport struct {
	TimestampedResponse
	Repo           string       `json:"repo"`
	Strategy       string       `json:"strategy"`
	Files          []FileReport `json:"files"`
	Fixed          int          `json:"fixed"`
	Clean          int          `json:"clean"`
	Failed         int          `json:"failed"`
	Halted         bool         `json:"halted,omitempty"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
}

// NewFixReport maps a batch run onto the response schema
func NewFixReport(repo, strategy string, run orchestrator.RunReport) FixReport {
	rep := FixReport{
		TimestampedResponse: NewTimestamped(),
		Repo:                repo,
		Strategy:            strategy,
		Fixed:               run.Fixed,
		Clean:               run.Clean,
		Failed:              run.Failed,
		Halted:              run.Halted,
		ElapsedSeconds:      run.Elapsed.Seconds(),
	}
	for _, fr := range run.Files {
		rep.Files = append(rep.Files, FileReport{
			File:         fr.File,
			State:        string(fr.State),
			Issues:       fr.Issues,
			Groups:       fr.Groups,
			Sessions:     fr.SessionsRun,
			TestsFailed:  fr.TestsFailed,
			Committed:    fr.Committed,
			CommitSHA:    fr.CommitSHA,
			Reverted:     fr.Reverted,
			LinesAdded:   fr.LinesAdded,
			LinesRemoved: fr.LinesRemoved,
			Failure:      fr.Failure,
		})
	}
	return rep
}

// JSON implements Result
func (r FixReport) JSON() any { return r }

// Text renders the run as a summary table plus totals
func (r FixReport) Text(w io.Writer) error {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("Fix run: "+r.Repo))
	if len(r.Files) == 0 {
		fmt.Fprintln(w, st.muted.Render("no candidate files"))
		return nil
	}

	header := []string{"FILE", "STATE", "ISSUES", "DIFF", "RESULT"}
	rows := make([][]string, 0, len(r.Files))
	for _, f := range r.Files {
		rows = append(rows, []string{
			f.File, f.State, strconv.Itoa(f.Issues), diffColumn(f), resultColumn(f),
		})
	}
	widths := columnWidths(header, rows)
	fmt.Fprintln(w, st.muted.Render(tableRow(header, widths)))
	for i, row := range rows {
		line := tableRow(row, widths)
		switch {
		case r.Files[i].Failure != "":
			line = st.bad.Render(line)
		case r.Files[i].Committed && !r.Files[i].Reverted:
			line = st.ok.Render(line)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\n%d files: %d fixed, %d clean, %d failed (%.1fs)\n",
		len(r.Files), r.Fixed, r.Clean, r.Failed, r.ElapsedSeconds)
	if r.Halted {
		fmt.Fprintln(w, st.warn.Render("run halted: last commit reverted, inspect before continuing"))
	}
	return nil
}

func diffColumn(f FileReport) string {
	if f.LinesAdded == 0 && f.LinesRemoved == 0 {
		return "-"
	}
	return fmt.Sprintf("+%d/-%d", f.LinesAdded, f.LinesRemoved)
}

func resultColumn(f FileReport) string {
	switch {
	case f.Reverted:
		return "reverted"
	case f.Failure != "":
		return "error"
	case f.Committed:
		return "committed"
	case f.TestsFailed:
		return "tests failed"
	case f.Issues == 0:
		return "clean"
	default:
		return "unchanged"
	}
}

// AskResponse is the output format for the ask command
type AskResponse struct {
	TimestampedResponse
	File     string `json:"file,omitempty"`
	Question string `json:"question"`
	Response string `json:"response"`
	Model    string `json:"model"`
}

// JSON implements Result
func (r AskResponse) JSON() any { return r }

// Text renders the critique with the question as a heading
func (r AskResponse) Text(w io.Writer) error {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render(r.Question))
	fmt.Fprintln(w)
	fmt.Fprintln(w, wrap(w, r.Response))
	if r.Model != "" {
		fmt.Fprintln(w, st.muted.Render("model: "+r.Model))
	}
	return nil
}

// SkippedFile names a file a scan filter rejected and why
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanReport is the output format for the scan command
type ScanReport struct {
	TimestampedResponse
	Repo     string        `json:"repo"`
	Selected []string      `json:"selected"`
	Skipped  []SkippedFile `json:"skipped,omitempty"`
}

// NewScanReport maps scanner candidates onto the response schema
func NewScanReport(repo string, candidates []scanner.Candidate) ScanReport {
	rep := ScanReport{TimestampedResponse: NewTimestamped(), Repo: repo}
	for _, c := range candidates {
		if c.Selected() {
			rep.Selected = append(rep.Selected, c.Path)
		} else {
			rep.Skipped = append(rep.Skipped, SkippedFile{Path: c.Path, Reason: string(c.Skip)})
		}
	}
	return rep
}

// JSON implements Result
func (r ScanReport) JSON() any { return r }

// Text lists candidates first, then what the filters skipped
func (r ScanReport) Text(w io.Writer) error {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("%d candidate files in %s", len(r.Selected), r.Repo)))
	for _, p := range r.Selected {
		fmt.Fprintln(w, "  "+p)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintln(w, st.muted.Render(fmt.Sprintf("skipped %d:", len(r.Skipped))))
		for _, sk := range r.Skipped {
			fmt.Fprintln(w, st.muted.Render("  "+sk.Path+" ("+sk.Reason+")"))
		}
	}
	return nil
}

// DryRunFile is one file's lint outcome from a dry run
type DryRunFile struct {
	File     string   `json:"file"`
	Issues   int      `json:"issues"`
	Strategy string   `json:"strategy,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// DryRunReport shows what a fix run would do without spawning sessions
type DryRunReport struct {
	TimestampedResponse
	Repo  string       `json:"repo"`
	Files []DryRunFile `json:"files"`
}

// NewDryRunReport starts an empty report for repo
func NewDryRunReport(repo string) *DryRunReport {
	return &DryRunReport{TimestampedResponse: NewTimestamped(), Repo: repo}
}

// Add records one file's lint outcome
func (r *DryRunReport) Add(file string, issues int, strategy string, groups []string) {
	r.Files = append(r.Files, DryRunFile{File: file, Issues: issues, Strategy: strategy, Groups: groups})
}

// JSON implements Result
func (r *DryRunReport) JSON() any { return r }

// Text renders the would-be work as a table plus totals
func (r *DryRunReport) Text(w io.Writer) error {
	st := newStyles(w)
	fmt.Fprintln(w, st.title.Render("Dry run: "+r.Repo))
	if len(r.Files) == 0 {
		fmt.Fprintln(w, st.muted.Render("no candidate files"))
		return nil
	}

	header := []string{"FILE", "ISSUES", "STRATEGY", "GROUPS"}
	rows := make([][]string, 0, len(r.Files))
	totalIssues := 0
	for _, f := range r.Files {
		totalIssues += f.Issues
		groups := "-"
		if len(f.Groups) > 0 {
			groups = strconv.Itoa(len(f.Groups))
		}
		strategy := f.Strategy
		if strategy == "" {
			strategy = "-"
		}
		rows = append(rows, []string{f.File, strconv.Itoa(f.Issues), strategy, groups})
	}
	widths := columnWidths(header, rows)
	fmt.Fprintln(w, st.muted.Render(tableRow(header, widths)))
	for i, row := range rows {
		line := tableRow(row, widths)
		if r.Files[i].Issues == 0 {
			line = st.muted.Render(line)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\n%d files, %d issues; no sessions were spawned\n", len(r.Files), totalIssues)
	return nil
}
