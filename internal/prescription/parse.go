// Package prescription turns free-text prescription items into purchasable
// quantities and matches them against the catalog. Parsing is an ordered
// keyword heuristic, not a clinical calculator; ambiguity resolves by rule
// order, first match wins.
package prescription

import (
	"regexp"
	"strconv"
	"strings"
)

var intRe = regexp.MustCompile(`\d+`)

// firstInt extracts the first integer literal in text, or def.
func firstInt(text string, def int64) int64 {
	m := intRe.FindString(text)
	if m == "" {
		return def
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// ParseDosageQuantity reads the units-per-dose from text like "2 tablets";
// defaults to 1.
func ParseDosageQuantity(text string) int64 {
	return firstInt(text, 1)
}

type frequencyRule struct {
	contains string
	perDay   int64
}

// Ordered; the first matching rule wins. Only the multiplied phrase forms
// outrank "once"/"1 time"/"daily", so "three times daily" resolves to 3 but
// "once every 8 hours" stays at 1.
var frequencyRules = []frequencyRule{
	{"twice", 2},
	{"two times", 2},
	{"2 times", 2},
	{"three times", 3},
	{"3 times", 3},
	{"thrice", 3},
	{"four times", 4},
	{"4 times", 4},
	{"once", 1},
	{"1 time", 1},
	{"daily", 1},
	{"bd", 2},
	{"tds", 3},
	{"qds", 4},
	{"every 6 hours", 4},
	{"every 8 hours", 3},
	{"every 12 hours", 2},
}

// ParseFrequencyPerDay maps text like "Three times daily" or "tds" to doses
// per day. Unrecognized text falls back to its first integer, then to 1.
func ParseFrequencyPerDay(text string) int64 {
	lower := strings.ToLower(text)
	for _, rule := range frequencyRules {
		if strings.Contains(lower, rule.contains) {
			return rule.perDay
		}
	}
	return firstInt(lower, 1)
}

// ParseDurationDays reads a course length: "2 weeks" is 14, "1 month" is 30,
// a bare number is days.
func ParseDurationDays(text string) int64 {
	lower := strings.ToLower(text)
	n := firstInt(lower, 1)
	switch {
	case strings.Contains(lower, "week"):
		return n * 7
	case strings.Contains(lower, "month"):
		return n * 30
	}
	return n
}
