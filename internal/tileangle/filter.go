package tileangle

import "github.com/mu3e-tools/tileangle/internal/frames"

// IsPrimary reports whether a hit-depth rank is the primary (first) hit of
// its track. The check is rank-exact: only 1 qualifies.
func IsPrimary(hitDepth int) bool { return hitDepth == 1 }

// SharesOrigin reports whether two hits come from the same simulated track.
func SharesOrigin(a, b frames.TrackID) bool { return a == b }

// acceptPrimary applies IsPrimary and records the decision.
func acceptPrimary(hitDepth int, stats *MatchStats) bool {
	if !IsPrimary(hitDepth) {
		stats.HIDDiscarded++
		return false
	}
	stats.HIDAccepted++
	return true
}

// acceptOrigin applies SharesOrigin and records the decision.
func acceptOrigin(tile, sensor frames.TrackID, stats *MatchStats) bool {
	if !SharesOrigin(tile, sensor) {
		stats.TIDDiscarded++
		return false
	}
	stats.TIDAccepted++
	return true
}
