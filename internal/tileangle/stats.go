package tileangle

import "fmt"

// MatchStats holds the accept/reject counters of one run. The filter and the
// matchers update it through a pointer; nothing in the package keeps counters
// in shared state.
type MatchStats struct {
	FramesAvailable int `json:"frames_available"`
	FramesProcessed int `json:"frames_processed"`

	HIDAccepted  int `json:"hid_accepted"`
	HIDDiscarded int `json:"hid_discarded"`
	TIDAccepted  int `json:"tid_accepted"`
	TIDDiscarded int `json:"tid_discarded"`

	// Nearest mode: primary hits without a same-track pixel hit.
	NoCandidate int `json:"no_candidate"`
	// Helix mode: primary hits whose track has no trajectory record.
	NoTrajectory int `json:"no_trajectory"`
	// Helix mode: trajectories whose type code has no charge mapping.
	UnknownCharge int `json:"unknown_charge"`
	// Helix mode: trajectories with zero momentum.
	Degenerate int `json:"degenerate"`
	// Lenient policy: hits whose angle could not be computed.
	Skipped int `json:"skipped"`

	Matched int `json:"matched"`
}

// PrimaryTotal returns the number of tile hits that went through the hid check.
func (s MatchStats) PrimaryTotal() int { return s.HIDAccepted + s.HIDDiscarded }

// OriginTotal returns the number of pixel hits that went through the tid check.
func (s MatchStats) OriginTotal() int { return s.TIDAccepted + s.TIDDiscarded }

// SummaryLines renders the end-of-run acceptance summary.
func (s MatchStats) SummaryLines(mode Mode) []string {
	lines := []string{
		fmt.Sprintf("HID CHECK: %d of %d ok", s.HIDAccepted, s.PrimaryTotal()),
	}
	switch mode {
	case Nearest:
		lines = append(lines, fmt.Sprintf("TID CHECK: %d of %d ok", s.TIDAccepted, s.OriginTotal()))
		lines = append(lines, fmt.Sprintf("Total events with matching tile and sensor hit: %d of %d primary tile hits", s.Matched, s.HIDAccepted))
	case Helix:
		lines = append(lines, fmt.Sprintf("no trajectory: %d, unknown charge: %d, degenerate: %d", s.NoTrajectory, s.UnknownCharge, s.Degenerate))
		lines = append(lines, fmt.Sprintf("Total events with helix angle: %d of %d primary tile hits", s.Matched, s.HIDAccepted))
	}
	if s.Skipped > 0 {
		lines = append(lines, fmt.Sprintf("skipped (angle undefined): %d", s.Skipped))
	}
	return lines
}
