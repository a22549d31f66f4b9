package tileangle

import (
	"fmt"
	"sort"

	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
)

// TileRate is the primary-hit tally of one tile.
type TileRate struct {
	Tile geometry.TileID `json:"tile_id"`
	Hits int             `json:"hits"`
	// Rate is Hits per processed frame.
	Rate float64 `json:"rate"`
	// Edep is the summed energy deposit in MeV.
	Edep float64 `json:"edep"`
}

// HitRates is the result of a hit-rate pass. Tiles holds every tile with at
// least one primary hit, ordered by tile id. Edep and EdepTile list the
// deposit of each primary hit in frame order.
type HitRates struct {
	Tiles    []TileRate
	Edep     []float64
	EdepTile []geometry.TileID
	Stats    MatchStats
}

// Len returns the number of primary tile hits.
func (r *HitRates) Len() int { return len(r.Edep) }

// Tile returns the tally of id, or false when it had no primary hit.
func (r *HitRates) Tile(id geometry.TileID) (TileRate, bool) {
	i := sort.Search(len(r.Tiles), func(i int) bool { return r.Tiles[i].Tile >= id })
	if i < len(r.Tiles) && r.Tiles[i].Tile == id {
		return r.Tiles[i], true
	}
	return TileRate{}, false
}

// HitRates counts primary tile hits and their energy deposit per tile over
// frames [0, frameLimit). Only the hid check applies; no pixel hits or
// trajectories are read. A tile id missing from the geometry aborts the pass.
func (s *Session) HitRates(frameLimit int) (*HitRates, error) {
	n, available := s.window(frameLimit)

	stats := MatchStats{FramesAvailable: available}
	byTile := make(map[geometry.TileID]*TileRate)
	out := &HitRates{Edep: []float64{}, EdepTile: []geometry.TileID{}}
	progress := monitoring.NewProgress(n, s.opts.ProgressInterval, s.opts.Logf)

	for f := 0; f < n; f++ {
		for u, hit := range s.frames.TileHits(f) {
			hid, err := s.truth.HitDepth(hit.MCIndex)
			if err != nil {
				return nil, fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
			}
			if !acceptPrimary(hid, &stats) {
				continue
			}
			if _, err := s.geom.TilePosition(hit.Tile); err != nil {
				return nil, fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
			}
			tr, ok := byTile[hit.Tile]
			if !ok {
				tr = &TileRate{Tile: hit.Tile}
				byTile[hit.Tile] = tr
			}
			tr.Hits++
			tr.Edep += hit.Edep
			out.Edep = append(out.Edep, hit.Edep)
			out.EdepTile = append(out.EdepTile, hit.Tile)
			stats.Matched++
		}
		stats.FramesProcessed++
		progress.Step(f)
	}
	progress.Done()

	out.Tiles = make([]TileRate, 0, len(byTile))
	for _, tr := range byTile {
		if n > 0 {
			tr.Rate = float64(tr.Hits) / float64(n)
		}
		out.Tiles = append(out.Tiles, *tr)
	}
	sort.Slice(out.Tiles, func(i, j int) bool { return out.Tiles[i].Tile < out.Tiles[j].Tile })
	out.Stats = stats

	s.opts.Logf("HID CHECK: %d of %d ok", stats.HIDAccepted, stats.PrimaryTotal())
	s.opts.Logf("Tiles with primary hits: %d, primary hits: %d", len(out.Tiles), stats.Matched)
	return out, nil
}
