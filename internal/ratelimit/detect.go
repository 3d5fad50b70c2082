package ratelimit

import (
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// Detection captures a rate limit signal found in assistant output.
type Detection struct {
	Limited bool
	// Wait is the provider-suggested wait, when the output names one.
	Wait time.Duration
}

type waitPattern struct {
	re         *regexp.Regexp
	multiplier int
}

var waitTimePatterns = []waitPattern{
	{regexp.MustCompile(`(?i)retry-after[:=]\s*(\d+)`), 1},
	{regexp.MustCompile(`(?i)try\s+again\s+in\s+(\d+)\s*s`), 1},
	{regexp.MustCompile(`(?i)wait\s+(\d+)\s*(?:second|sec|s)`), 1},
	{regexp.MustCompile(`(?i)retry\s+(?:after|in)\s+(\d+)\s*(?:s|sec)`), 1},
	{regexp.MustCompile(`(?i)retry\s+(?:after|in)\s+(\d+)\s*(?:m|min|minute|minutes)`), 60},
	{regexp.MustCompile(`(?i)(\d+)\s*(?:second|sec)s?\s+(?:cooldown|delay|wait)`), 1},
	{regexp.MustCompile(`(?i)rate.?limit.*?(\d+)\s*s`), 1},
}

var limitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate.?limit`),
	regexp.MustCompile(`(?i)\b429\b`),
	regexp.MustCompile(`(?i)too\s+many\s+requests`),
	regexp.MustCompile(`(?i)quota\s+exceeded`),
	regexp.MustCompile(`(?i)insufficient_quota`),
	regexp.MustCompile(`(?i)tokens?\s+per\s+min`),
	regexp.MustCompile(`(?i)requests?\s+per\s+min`),
	regexp.MustCompile(`(?i)exceeded.*(?:token|request).*(?:limit|quota)`),
	regexp.MustCompile(`(?i)(?:token|request).*(?:limit|quota).*exceeded`),
	regexp.MustCompile(`(?i)usage.*(?:cap|limit).*reached`),
	regexp.MustCompile(`(?i)RateLimitError`),
	regexp.MustCompile(`(?i)overloaded_error`),
}

// ParseWaitSeconds extracts a suggested wait time in seconds from output.
// Returns 0 if no wait time is found.
func ParseWaitSeconds(output string) int {
	if output == "" {
		return 0
	}
	output = ansi.Strip(output)

	for _, pattern := range waitTimePatterns {
		if matches := pattern.re.FindStringSubmatch(output); len(matches) > 1 {
			seconds, err := strconv.Atoi(matches[1])
			if err == nil && seconds > 0 {
				return seconds * pattern.multiplier
			}
		}
	}
	return 0
}

// DetectRateLimit inspects assistant output for rate limit signals.
// The output is stripped of ANSI sequences before matching so styled
// terminal output from the assistant does not defeat the patterns.
func DetectRateLimit(output string) Detection {
	if output == "" {
		return Detection{}
	}
	cleaned := ansi.Strip(output)

	for _, pat := range limitPatterns {
		if pat.MatchString(cleaned) {
			return Detection{
				Limited: true,
				Wait:    time.Duration(ParseWaitSeconds(output)) * time.Second,
			}
		}
	}
	return Detection{}
}
