package main

import (
	"fmt"
	"strings"

	"filedrop/internal/preflight"
)

type checkState int

const (
	checkPass checkState = iota
	checkFail
	checkSkip
	checkNote
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiDim    = "\x1b[2m"
)

// checkLabelWidth fits "Download dir " plus a typical endpoint name.
const checkLabelWidth = 28

func stateOf(r preflight.Result) checkState {
	switch {
	case r.Skipped:
		return checkSkip
	case r.Passed:
		return checkPass
	default:
		return checkFail
	}
}

func (s checkState) tag() string {
	switch s {
	case checkPass:
		return "PASS"
	case checkFail:
		return "FAIL"
	case checkSkip:
		return "SKIP"
	default:
		return " -- "
	}
}

func (s checkState) color() string {
	switch s {
	case checkPass:
		return ansiGreen
	case checkFail:
		return ansiRed
	case checkSkip:
		return ansiYellow
	default:
		return ansiDim
	}
}

// renderCheckLine formats one row of doctor output as
// "  [TAG] label   detail".
func renderCheckLine(label string, state checkState, detail string, colorize bool) string {
	tag := "[" + state.tag() + "]"
	if colorize {
		tag = state.color() + tag + ansiReset
	}
	line := fmt.Sprintf("  %s %-*s %s", tag, checkLabelWidth, label, detail)
	return strings.TrimRight(line, " ")
}

// renderCheckSection renders a titled block of results with a pass count in
// the heading. Empty sections show placeholder instead.
func renderCheckSection(title string, results []preflight.Result, placeholder string, colorize bool) []string {
	passed := len(results) - preflight.Failed(results)
	heading := fmt.Sprintf("%s checks (%d/%d passed)", title, passed, len(results))
	if len(results) == 0 {
		heading = title + " checks"
	}
	if colorize {
		heading = "\x1b[1m" + heading + ansiReset
	}
	lines := []string{heading}
	if len(results) == 0 {
		return append(lines, renderCheckLine(placeholder, checkNote, "", colorize))
	}
	for _, r := range results {
		lines = append(lines, renderCheckLine(r.Name, stateOf(r), r.Detail, colorize))
	}
	return lines
}
