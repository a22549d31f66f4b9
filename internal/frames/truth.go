package frames

import "fmt"

// Truth is the MC truth table, indexed by MC index.
type Truth struct {
	tracks []TrackID
	depths []int
}

// NewTruth builds a truth table from records in MC-index order.
func NewTruth(records []TruthRecord) *Truth {
	t := &Truth{
		tracks: make([]TrackID, len(records)),
		depths: make([]int, len(records)),
	}
	for i, r := range records {
		t.tracks[i] = r.TrackID
		t.depths[i] = r.HitDepth
	}
	return t
}

// Append adds the next record and returns its MC index.
func (t *Truth) Append(track TrackID, hitDepth int) int {
	t.tracks = append(t.tracks, track)
	t.depths = append(t.depths, hitDepth)
	return len(t.tracks) - 1
}

// Len returns the number of records.
func (t *Truth) Len() int { return len(t.tracks) }

// HitDepth returns the hid of the record at mc.
func (t *Truth) HitDepth(mc int) (int, error) {
	if mc < 0 || mc >= len(t.depths) {
		return 0, fmt.Errorf("%w: %d (table has %d)", ErrUnknownMCIndex, mc, len(t.depths))
	}
	return t.depths[mc], nil
}

// OriginTrack returns the tid of the record at mc.
func (t *Truth) OriginTrack(mc int) (TrackID, error) {
	if mc < 0 || mc >= len(t.tracks) {
		return 0, fmt.Errorf("%w: %d (table has %d)", ErrUnknownMCIndex, mc, len(t.tracks))
	}
	return t.tracks[mc], nil
}

// Store bundles the frame index and the truth table of one input file.
// It satisfies both the frame-source and truth-table views used by the
// analysis.
type Store struct {
	*Index
	*Truth
}
