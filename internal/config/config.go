package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lintmend/lintmend/internal/util"
)

// Config represents the main configuration
type Config struct {
	RepoPath  string `toml:"repo_path"`
	RulesFile string `toml:"rules_file"` // Path to grouping rules YAML (optional)

	Tools   ToolsConfig   `toml:"tools"`
	Lint    LintConfig    `toml:"lint"`
	Scan    ScanConfig    `toml:"scan"`
	Session SessionConfig `toml:"session"`
	Limits  LimitsConfig  `toml:"limits"`
	Web     WebConfig     `toml:"web"`
}

// ToolsConfig defines the external commands the pipeline drives
type ToolsConfig struct {
	AssistantPath string `toml:"assistant_path"` // aider-compatible executable
	Model         string `toml:"model"`
	WeakModel     string `toml:"weak_model"`
	VenvPath      string `toml:"venv_path"` // virtualenv root whose bin/ is prepended to PATH
	VenvDir       string `toml:"venv_dir"`  // virtualenv directory name, excluded from scans
	TestCommand   string `toml:"test_command"`
}

// LintConfig selects the linter and the formatter gates
type LintConfig struct {
	Linter        string `toml:"linter"` // pylint, flake8, ruff
	MaxLineLength int    `toml:"max_line_length"`
	Autopep8Fix   bool   `toml:"autopep8_fix"`
	EnableBlack   bool   `toml:"enable_black"`
}

// ScanConfig controls candidate file discovery
type ScanConfig struct {
	Extension    string   `toml:"extension"`
	ExcludeDirs  []string `toml:"exclude_dirs"`
	LineCountMin int      `toml:"line_count_min"`
	LineCountMax int      `toml:"line_count_max"`
}

// SessionConfig controls the assistant interaction protocol
type SessionConfig struct {
	TimeoutSeconds     int    `toml:"timeout_seconds"`      // wall-clock budget per session
	GraceSeconds       int    `toml:"grace_seconds"`        // terminate-to-kill escalation window
	LaunchDelaySeconds int    `toml:"launch_delay_seconds"` // pacing delay before each fix launch
	CaptureMarker      string `toml:"capture_marker"`       // begin-capture substring; empty captures everything
}

// LimitsConfig bounds resource usage of the orchestrator process
type LimitsConfig struct {
	MaxMemoryMB       int     `toml:"max_memory_mb"`
	MaxCPUPercent     float64 `toml:"max_cpu_percent"`
	APIRateLimit      int     `toml:"api_rate_limit"` // calls per rolling minute
	CleanupThreshold  int     `toml:"cleanup_threshold_mb"`
	TempMaxAgeMinutes int     `toml:"temp_max_age_minutes"`
}

// WebConfig holds the suggestion web server settings
type WebConfig struct {
	Addr         string `toml:"addr"`
	Database     string `toml:"database"`
	MaxSnippetKB int    `toml:"max_snippet_kb"`
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lintmend", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lintmend", "config.toml")
}

// DefaultDatabasePath returns the default suggestion database location
func DefaultDatabasePath() string {
	dir, err := util.LintmendDir()
	if err != nil {
		return "suggestions.db"
	}
	return filepath.Join(dir, "suggestions.db")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RepoPath: ".",
		Tools: ToolsConfig{
			AssistantPath: "aider",
			Model:         "openrouter/anthropic/claude-3.5-sonnet:beta",
			WeakModel:     "openrouter/anthropic/claude-3-haiku-20240307",
		},
		Lint: LintConfig{
			Linter:        "pylint",
			MaxLineLength: 100,
		},
		Scan: ScanConfig{
			Extension:    ".py",
			ExcludeDirs:  []string{".git", "benchmark", "tests"},
			LineCountMin: 10,
			LineCountMax: 200,
		},
		Session: SessionConfig{
			TimeoutSeconds:     300,
			GraceSeconds:       5,
			LaunchDelaySeconds: 5,
		},
		Limits: LimitsConfig{
			MaxMemoryMB:       512,
			MaxCPUPercent:     80.0,
			APIRateLimit:      60,
			CleanupThreshold:  400,
			TempMaxAgeMinutes: 60,
		},
		Web: WebConfig{
			Addr:         "127.0.0.1:8799",
			Database:     DefaultDatabasePath(),
			MaxSnippetKB: 64,
		},
	}
}

// Load loads configuration from a file, filling defaults for missing
// values and applying LINTMEND_* environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.RepoPath == "" {
		cfg.RepoPath = def.RepoPath
	}
	if cfg.Tools.AssistantPath == "" {
		cfg.Tools.AssistantPath = def.Tools.AssistantPath
	}
	if cfg.Tools.Model == "" {
		cfg.Tools.Model = def.Tools.Model
	}
	if cfg.Tools.WeakModel == "" {
		cfg.Tools.WeakModel = def.Tools.WeakModel
	}
	if cfg.Lint.Linter == "" {
		cfg.Lint.Linter = def.Lint.Linter
	}
	if cfg.Lint.MaxLineLength == 0 {
		cfg.Lint.MaxLineLength = def.Lint.MaxLineLength
	}
	if cfg.Scan.Extension == "" {
		cfg.Scan.Extension = def.Scan.Extension
	}
	if len(cfg.Scan.ExcludeDirs) == 0 {
		cfg.Scan.ExcludeDirs = append([]string(nil), def.Scan.ExcludeDirs...)
	}
	if cfg.Scan.LineCountMin == 0 {
		cfg.Scan.LineCountMin = def.Scan.LineCountMin
	}
	if cfg.Scan.LineCountMax == 0 {
		cfg.Scan.LineCountMax = def.Scan.LineCountMax
	}
	if cfg.Session.TimeoutSeconds == 0 {
		cfg.Session.TimeoutSeconds = def.Session.TimeoutSeconds
	}
	if cfg.Session.GraceSeconds == 0 {
		cfg.Session.GraceSeconds = def.Session.GraceSeconds
	}
	if cfg.Session.LaunchDelaySeconds == 0 {
		cfg.Session.LaunchDelaySeconds = def.Session.LaunchDelaySeconds
	}
	if cfg.Limits.MaxMemoryMB == 0 {
		cfg.Limits.MaxMemoryMB = def.Limits.MaxMemoryMB
	}
	if cfg.Limits.MaxCPUPercent == 0 {
		cfg.Limits.MaxCPUPercent = def.Limits.MaxCPUPercent
	}
	if cfg.Limits.APIRateLimit == 0 {
		cfg.Limits.APIRateLimit = def.Limits.APIRateLimit
	}
	if cfg.Limits.CleanupThreshold == 0 {
		cfg.Limits.CleanupThreshold = def.Limits.CleanupThreshold
	}
	if cfg.Limits.TempMaxAgeMinutes == 0 {
		cfg.Limits.TempMaxAgeMinutes = def.Limits.TempMaxAgeMinutes
	}
	if cfg.Web.Addr == "" {
		cfg.Web.Addr = def.Web.Addr
	}
	if cfg.Web.Database == "" {
		cfg.Web.Database = def.Web.Database
	}
	if cfg.Web.MaxSnippetKB == 0 {
		cfg.Web.MaxSnippetKB = def.Web.MaxSnippetKB
	}

	// The virtualenv directory never belongs in a scan.
	if cfg.Tools.VenvDir != "" && !contains(cfg.Scan.ExcludeDirs, cfg.Tools.VenvDir) {
		cfg.Scan.ExcludeDirs = append(cfg.Scan.ExcludeDirs, cfg.Tools.VenvDir)
	}
}

func applyEnvOverrides(cfg *Config) {
	if repo := os.Getenv("LINTMEND_REPO"); repo != "" {
		cfg.RepoPath = repo
	}
	if path := os.Getenv("LINTMEND_ASSISTANT"); path != "" {
		cfg.Tools.AssistantPath = path
	}
	if model := os.Getenv("LINTMEND_MODEL"); model != "" {
		cfg.Tools.Model = model
	}
	if model := os.Getenv("LINTMEND_WEAK_MODEL"); model != "" {
		cfg.Tools.WeakModel = model
	}
	if db := os.Getenv("LINTMEND_DB"); db != "" {
		cfg.Web.Database = db
	}
	if addr := os.Getenv("LINTMEND_ADDR"); addr != "" {
		cfg.Web.Addr = addr
	}
	if limit := os.Getenv("LINTMEND_RATE_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			cfg.Limits.APIRateLimit = n
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Validate checks the configuration for problems that must stop startup.
func (c *Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("repo_path is required")
	}
	info, err := os.Stat(util.ExpandHome(c.RepoPath))
	if err != nil {
		return fmt.Errorf("repo_path %q: %w", c.RepoPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repo_path %q is not a directory", c.RepoPath)
	}
	switch c.Lint.Linter {
	case "pylint", "flake8", "ruff":
	default:
		return fmt.Errorf("unsupported linter %q (want pylint, flake8, or ruff)", c.Lint.Linter)
	}
	if c.Scan.LineCountMin > c.Scan.LineCountMax {
		return fmt.Errorf("line_count_min %d exceeds line_count_max %d",
			c.Scan.LineCountMin, c.Scan.LineCountMax)
	}
	if c.Tools.VenvPath != "" {
		if _, err := os.Stat(util.ExpandHome(c.Tools.VenvPath)); err != nil {
			return fmt.Errorf("venv_path %q: %w", c.Tools.VenvPath, err)
		}
	}
	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout_seconds must be positive")
	}
	if c.Limits.APIRateLimit <= 0 {
		return fmt.Errorf("api_rate_limit must be positive")
	}
	return nil
}

// AbsRepoPath returns the repository path with ~ expanded and made absolute.
func (c *Config) AbsRepoPath() string {
	path := util.ExpandHome(c.RepoPath)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// SessionTimeout returns the per-session wall-clock budget.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// KillGrace returns the terminate-to-kill escalation window.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Session.GraceSeconds) * time.Second
}

// LaunchDelay returns the pacing delay applied before each fix launch.
func (c *Config) LaunchDelay() time.Duration {
	return time.Duration(c.Session.LaunchDelaySeconds) * time.Second
}

// TempMaxAge returns the age after which registered temp artifacts are removed.
func (c *Config) TempMaxAge() time.Duration {
	return time.Duration(c.Limits.TempMaxAgeMinutes) * time.Minute
}

// ToolEnv returns the process environment for spawned tools, with the
// virtualenv bin directory prepended to PATH when one is configured.
func (c *Config) ToolEnv() []string {
	env := os.Environ()
	if c.Tools.VenvPath == "" {
		return env
	}

	venv := util.ExpandHome(c.Tools.VenvPath)
	bin := filepath.Join(venv, "bin")

	out := make([]string, 0, len(env)+2)
	pathSeen := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			out = append(out, "PATH="+bin+string(os.PathListSeparator)+strings.TrimPrefix(kv, "PATH="))
			pathSeen = true
			continue
		}
		if strings.HasPrefix(kv, "VIRTUAL_ENV=") {
			continue
		}
		out = append(out, kv)
	}
	if !pathSeen {
		out = append(out, "PATH="+bin)
	}
	out = append(out, "VIRTUAL_ENV="+venv)
	return out
}

// CreateDefault creates a default config file
func CreateDefault() (string, error) {
	path := DefaultPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Print(Default(), f); err != nil {
		return "", err
	}

	return path, nil
}

// Print writes config to a writer in TOML format
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# lintmend configuration")
	fmt.Fprintln(w, "# https://github.com/lintmend/lintmend")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Repository to remediate (must be a git top-level directory)")
	fmt.Fprintf(w, "repo_path = %q\n", cfg.RepoPath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Optional YAML file overriding the issue-category markers")
	if cfg.RulesFile != "" {
		fmt.Fprintf(w, "rules_file = %q\n", cfg.RulesFile)
	} else {
		fmt.Fprintln(w, "# rules_file = \"~/.config/lintmend/rules.yaml\"")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[tools]")
	fmt.Fprintln(w, "# External commands driven by the pipeline")
	fmt.Fprintf(w, "assistant_path = %q\n", cfg.Tools.AssistantPath)
	fmt.Fprintf(w, "model = %q\n", cfg.Tools.Model)
	fmt.Fprintf(w, "weak_model = %q\n", cfg.Tools.WeakModel)
	fmt.Fprintf(w, "venv_path = %q\n", cfg.Tools.VenvPath)
	fmt.Fprintf(w, "venv_dir = %q\n", cfg.Tools.VenvDir)
	fmt.Fprintf(w, "test_command = %q\n", cfg.Tools.TestCommand)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[lint]")
	fmt.Fprintf(w, "linter = %q  # pylint, flake8, or ruff\n", cfg.Lint.Linter)
	fmt.Fprintf(w, "max_line_length = %d\n", cfg.Lint.MaxLineLength)
	fmt.Fprintf(w, "autopep8_fix = %t\n", cfg.Lint.Autopep8Fix)
	fmt.Fprintf(w, "enable_black = %t\n", cfg.Lint.EnableBlack)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[scan]")
	fmt.Fprintf(w, "extension = %q\n", cfg.Scan.Extension)
	fmt.Fprintf(w, "exclude_dirs = [")
	for i, d := range cfg.Scan.ExcludeDirs {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprintf(w, "%q", d)
	}
	fmt.Fprintln(w, "]")
	fmt.Fprintf(w, "line_count_min = %d\n", cfg.Scan.LineCountMin)
	fmt.Fprintf(w, "line_count_max = %d\n", cfg.Scan.LineCountMax)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[session]")
	fmt.Fprintf(w, "timeout_seconds = %d\n", cfg.Session.TimeoutSeconds)
	fmt.Fprintf(w, "grace_seconds = %d\n", cfg.Session.GraceSeconds)
	fmt.Fprintf(w, "launch_delay_seconds = %d\n", cfg.Session.LaunchDelaySeconds)
	if cfg.Session.CaptureMarker != "" {
		fmt.Fprintf(w, "capture_marker = %q\n", cfg.Session.CaptureMarker)
	} else {
		fmt.Fprintln(w, "# capture_marker = \"\"  # begin-capture substring for ask sessions")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[limits]")
	fmt.Fprintf(w, "max_memory_mb = %d\n", cfg.Limits.MaxMemoryMB)
	fmt.Fprintf(w, "max_cpu_percent = %.1f\n", cfg.Limits.MaxCPUPercent)
	fmt.Fprintf(w, "api_rate_limit = %d  # assistant launches per rolling minute\n", cfg.Limits.APIRateLimit)
	fmt.Fprintf(w, "cleanup_threshold_mb = %d\n", cfg.Limits.CleanupThreshold)
	fmt.Fprintf(w, "temp_max_age_minutes = %d\n", cfg.Limits.TempMaxAgeMinutes)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[web]")
	fmt.Fprintln(w, "# Suggestion server settings")
	fmt.Fprintf(w, "addr = %q\n", cfg.Web.Addr)
	fmt.Fprintf(w, "database = %q\n", cfg.Web.Database)
	fmt.Fprintf(w, "max_snippet_kb = %d\n", cfg.Web.MaxSnippetKB)

	return nil
}
