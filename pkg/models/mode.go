// Package models defines shared domain types for the LocalMind collective.
package models

// Mode selects how the requested worker set for a research run is chosen.
type Mode string

const (
	// ModeAuto lets the principal's query analysis decide which workers run.
	ModeAuto Mode = "auto"
	// ModeSimple runs the minimal single-worker set.
	ModeSimple Mode = "simple"
	// ModeExpert runs the full worker set including the quality auditor.
	ModeExpert Mode = "expert"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeSimple, ModeExpert:
		return true
	default:
		return false
	}
}

// ParseMode converts a string to a Mode, defaulting to ModeAuto for
// empty input. Unknown values are returned as-is and fail Valid.
func ParseMode(s string) Mode {
	if s == "" {
		return ModeAuto
	}
	return Mode(s)
}
