package bioinfoflow

import (
	"fmt"
	"regexp"
	"time"
)

// timeLimitTokenRegexp matches one <positive-integer><unit> pair.
var timeLimitTokenRegexp = regexp.MustCompile(`(\d+)([hms])`)

// timeLimitFullRegexp validates that the whole string is a concatenation
// of such pairs with nothing left over (guards against "1h x" parsing
// only the "1h" prefix and silently ignoring the rest).
var timeLimitFullRegexp = regexp.MustCompile(`^(?:\d+[hms])+$`)

// ParseTimeLimit parses a time-limit expression — a concatenation of one
// or more <integer><unit> pairs, unit in {h, m, s} — into a
// time.Duration. "1h30m15s" parses to 5415 seconds. An empty string is
// not a valid expression;
// callers represent "no limit" by omitting the field entirely.
func ParseTimeLimit(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time limit")
	}
	if !timeLimitFullRegexp.MatchString(s) {
		return 0, fmt.Errorf("invalid time limit %q: want a concatenation of <int>h/<int>m/<int>s", s)
	}
	var total time.Duration
	for _, m := range timeLimitTokenRegexp.FindAllStringSubmatch(s, -1) {
		var unit time.Duration
		switch m[2] {
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		case "s":
			unit = time.Second
		}
		var n int64
		if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
			return 0, fmt.Errorf("invalid time limit %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}
