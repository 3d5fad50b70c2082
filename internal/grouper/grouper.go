// Package grouper partitions linter findings into batches sized for one
// assistant invocation each.
package grouper

import (
	"strconv"
	"strings"
)

// Strategy selects how findings are partitioned.
type Strategy string

const (
	// StrategyAuto picks a strategy from the issue count.
	StrategyAuto Strategy = "auto"
	// StrategyCategory buckets issues by classification rule.
	StrategyCategory Strategy = "category"
	// StrategyFunction buckets issues by the function they occur in.
	StrategyFunction Strategy = "function"
	// StrategyWindow splits issues into fixed-size contiguous chunks.
	StrategyWindow Strategy = "window"
	// StrategySingle sends all issues in one batch.
	StrategySingle Strategy = "single"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyAuto, StrategyCategory, StrategyFunction, StrategyWindow, StrategySingle:
		return true
	}
	return false
}

// DefaultWindowSize is the chunk size for the window strategy.
const DefaultWindowSize = 5

// Group is one batch of issues sharing a key. All members come from the
// same file and keep the linter's original order.
type Group struct {
	Key    string
	Issues []string
}

// Instruction renders the fix instruction sent to the assistant for this
// group under the given strategy.
func (g Group) Instruction(s Strategy) string {
	joined := strings.Join(g.Issues, "\n")
	switch s {
	case StrategyCategory:
		return "Refactor to address " + g.Key + " issues: " + joined
	case StrategyFunction:
		return "Refactor function " + g.Key + " to address: " + joined
	case StrategyWindow:
		return "Address the following issues:\n" + joined
	default:
		return "Address the following issues: " + joined
	}
}

// Grouper applies the classification rules and partitioning strategies.
type Grouper struct {
	rules      Rules
	windowSize int
}

// New creates a Grouper with the given rules. A windowSize below 1 uses
// DefaultWindowSize.
func New(rules Rules, windowSize int) *Grouper {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	return &Grouper{rules: rules, windowSize: windowSize}
}

// PolicyFor maps an issue count to the strategy the orchestrator uses:
// more than 10 issues group by category, 6 through 10 by function, 5 or
// fewer go out as a single batch.
func PolicyFor(count int) Strategy {
	switch {
	case count > 10:
		return StrategyCategory
	case count > 5:
		return StrategyFunction
	default:
		return StrategySingle
	}
}

// Plan partitions issues under the requested strategy and returns the
// strategy actually applied. StrategyAuto resolves through PolicyFor.
func (g *Grouper) Plan(issues []string, s Strategy) (Strategy, []Group) {
	if s == StrategyAuto || s == "" {
		s = PolicyFor(len(issues))
	}
	switch s {
	case StrategyCategory:
		return s, g.ByCategory(issues)
	case StrategyFunction:
		return s, g.ByFunction(issues)
	case StrategyWindow:
		return s, g.ByWindow(issues)
	default:
		if len(issues) == 0 {
			return StrategySingle, nil
		}
		return StrategySingle, []Group{{Key: "all", Issues: issues}}
	}
}

// ByCategory buckets issues by the classification rules, one group per
// non-empty category, rule order first and the fallback bucket last.
func (g *Grouper) ByCategory(issues []string) []Group {
	buckets := make(map[string][]string)
	for _, issue := range issues {
		cat := g.rules.classify(issue)
		buckets[cat] = append(buckets[cat], issue)
	}

	var groups []Group
	for _, c := range g.rules.Categories {
		if members, ok := buckets[c.Name]; ok {
			groups = append(groups, Group{Key: c.Name, Issues: members})
		}
	}
	if members, ok := buckets[g.rules.Fallback]; ok {
		groups = append(groups, Group{Key: g.rules.Fallback, Issues: members})
	}
	return groups
}

// ByFunction buckets issues by the function name in the third colon-separated
// field of the issue line. Lines without that field are dropped from this
// strategy rather than merged into a catch-all.
func (g *Grouper) ByFunction(issues []string) []Group {
	buckets := make(map[string][]string)
	var order []string
	for _, issue := range issues {
		parts := strings.Split(issue, ":")
		if len(parts) <= 2 {
			continue
		}
		name := strings.TrimSpace(parts[2])
		if name == "" {
			continue
		}
		if _, ok := buckets[name]; !ok {
			order = append(order, name)
		}
		buckets[name] = append(buckets[name], issue)
	}

	groups := make([]Group, 0, len(order))
	for _, name := range order {
		groups = append(groups, Group{Key: name, Issues: buckets[name]})
	}
	return groups
}

// ByWindow splits issues into contiguous chunks of the configured window
// size. The last chunk may be shorter.
func (g *Grouper) ByWindow(issues []string) []Group {
	var groups []Group
	for i := 0; i < len(issues); i += g.windowSize {
		end := i + g.windowSize
		if end > len(issues) {
			end = len(issues)
		}
		groups = append(groups, Group{
			Key:    "window-" + strconv.Itoa(len(groups)+1),
			Issues: issues[i:end],
		})
	}
	return groups
}
