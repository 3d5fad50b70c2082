package grouper

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryRule maps a category name to the substrings that select it.
// Rules are checked in order and the first match wins.
type CategoryRule struct {
	Name    string   `yaml:"name"`
	Markers []string `yaml:"markers"`
}

// Rules is the classification table for by-category grouping.
type Rules struct {
	Categories []CategoryRule `yaml:"categories"`
	// Fallback names the bucket for issues no rule matches.
	Fallback string `yaml:"fallback"`
}

// DefaultRules returns the built-in classification table for pylint-style
// issue lines.
func DefaultRules() Rules {
	return Rules{
		Categories: []CategoryRule{
			{Name: "complexity", Markers: []string{"too-many", "R09", "R10"}},
			{Name: "style", Markers: []string{"missing-", "unused-", "pointless-"}},
			{Name: "error_handling", Markers: []string{"exception", "return"}},
		},
		Fallback: "other",
	}
}

// LoadRules reads a classification table from a YAML file. Fields left
// empty in the file fall back to the defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if len(r.Categories) == 0 {
		r.Categories = DefaultRules().Categories
	}
	if r.Fallback == "" {
		r.Fallback = DefaultRules().Fallback
	}
	if err := r.validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func (r Rules) validate() error {
	seen := make(map[string]bool, len(r.Categories))
	for _, c := range r.Categories {
		if c.Name == "" {
			return fmt.Errorf("category rule with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category rule %q", c.Name)
		}
		seen[c.Name] = true
		if len(c.Markers) == 0 {
			return fmt.Errorf("category rule %q has no markers", c.Name)
		}
	}
	return nil
}

// classify returns the category for one issue line.
func (r Rules) classify(issue string) string {
	for _, c := range r.Categories {
		for _, m := range c.Markers {
			if strings.Contains(issue, m) {
				return c.Name
			}
		}
	}
	return r.Fallback
}
