package rootio

import (
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// ResultTree is the name of the tree written by WriteResults.
const ResultTree = "tileangle"

// WriteResults writes one entry per sample (tile, angle, z) to a new ROOT file.
func WriteResults(path string, rs *tileangle.ResultSet) error {
	f, err := groot.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	defer f.Close()

	var (
		tile  int32
		angle float64
		z     float64
	)
	w, err := rtree.NewWriter(f, ResultTree, []rtree.WriteVar{
		{Name: "tile", Value: &tile},
		{Name: "angle", Value: &angle},
		{Name: "z", Value: &z},
	})
	if err != nil {
		return fmt.Errorf("could not create tree %q: %w", ResultTree, err)
	}
	for i := 0; i < rs.Len(); i++ {
		tile, angle, z = int32(rs.TileID[i]), rs.Angle[i], rs.Z[i]
		if _, err := w.Write(); err != nil {
			_ = w.Close()
			return fmt.Errorf("could not write entry %d: %w", i, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not close tree %q: %w", ResultTree, err)
	}
	return f.Close()
}

// ReadResults reads a tree written by WriteResults.
func ReadResults(path string) ([]tileangle.MatchResult, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer f.Close()

	var out []tileangle.MatchResult
	err = readTree(f, ResultTree, []string{"tile", "angle", "z"}, nil,
		func(_ int64, vars map[string]interface{}) error {
			id, err := toInt64(vars["tile"])
			if err != nil {
				return err
			}
			angle, err := toFloat64(vars["angle"])
			if err != nil {
				return err
			}
			z, err := toFloat64(vars["z"])
			if err != nil {
				return err
			}
			out = append(out, tileangle.MatchResult{TileID: geometry.TileID(id), Angle: angle, Z: z})
			return nil
		})
	return out, err
}

// WriteInput writes geometry, frames and truth in the simulation file layout.
// It produces inputs for tests and for reduced copies of real files. A nil
// geom writes the event trees only.
func WriteInput(path string, geom *geometry.Table, store frames.Store) error {
	f, err := groot.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %q: %w", path, err)
	}
	defer f.Close()

	if geom != nil {
		align, err := riofs.Dir(f).Mkdir("alignment")
		if err != nil {
			return fmt.Errorf("could not create alignment directory: %w", err)
		}
		if err := writeTiles(align, geom.Tiles()); err != nil {
			return err
		}
		if err := writeSensors(align, geom.Modules()); err != nil {
			return err
		}
	}
	if err := writeFrames(f, store.Index); err != nil {
		return err
	}
	if err := writeTruth(f, store.Truth); err != nil {
		return err
	}
	return f.Close()
}

func fillTree(dir riofs.Directory, name string, wvars []rtree.WriteVar, n int, fill func(i int)) error {
	w, err := rtree.NewWriter(dir, name, wvars)
	if err != nil {
		return fmt.Errorf("could not create tree %q: %w", name, err)
	}
	for i := 0; i < n; i++ {
		fill(i)
		if _, err := w.Write(); err != nil {
			_ = w.Close()
			return fmt.Errorf("tree %q entry %d: %w", name, i, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not close tree %q: %w", name, err)
	}
	return nil
}

func writeTiles(dir riofs.Directory, tiles []geometry.Tile) error {
	var (
		id               int32
		posx, posy, posz float64
		dirx, diry, dirz float64
	)
	return fillTree(dir, "tiles", []rtree.WriteVar{
		{Name: "sensor", Value: &id},
		{Name: "posx", Value: &posx}, {Name: "posy", Value: &posy}, {Name: "posz", Value: &posz},
		{Name: "dirx", Value: &dirx}, {Name: "diry", Value: &diry}, {Name: "dirz", Value: &dirz},
	}, len(tiles), func(i int) {
		t := tiles[i]
		id = int32(t.ID)
		posx, posy, posz = t.Position.X, t.Position.Y, t.Position.Z
		dirx, diry, dirz = t.Direction.X, t.Direction.Y, t.Direction.Z
	})
}

func writeSensors(dir riofs.Directory, modules []geometry.SensorModule) error {
	var (
		id               uint32
		vx, vy, vz       float64
		rowx, rowy, rowz float64
		colx, coly, colz float64
	)
	return fillTree(dir, "sensors", []rtree.WriteVar{
		{Name: "sensor", Value: &id},
		{Name: "vx", Value: &vx}, {Name: "vy", Value: &vy}, {Name: "vz", Value: &vz},
		{Name: "rowx", Value: &rowx}, {Name: "rowy", Value: &rowy}, {Name: "rowz", Value: &rowz},
		{Name: "colx", Value: &colx}, {Name: "coly", Value: &coly}, {Name: "colz", Value: &colz},
	}, len(modules), func(i int) {
		m := modules[i]
		id = uint32(m.ID)
		vx, vy, vz = m.Origin.X, m.Origin.Y, m.Origin.Z
		rowx, rowy, rowz = m.Row.X, m.Row.Y, m.Row.Z
		colx, coly, colz = m.Col.X, m.Col.Y, m.Col.Z
	})
}

func writeFrames(dir riofs.Directory, idx *frames.Index) error {
	var (
		nTile, nHit, nTraj int32
		tileIDs, tileMC    []int32
		tileEdep           []float64
		pixelIDs           []uint32
		hitMC              []int32
		trajID, trajType   []int32
		vx, vy, vz         []float64
		px, py, pz         []float64
	)
	wvars := []rtree.WriteVar{
		{Name: "ntilehit", Value: &nTile},
		{Name: "tilehit_tile", Value: &tileIDs, Count: "ntilehit"},
		{Name: "tilehit_mc_i", Value: &tileMC, Count: "ntilehit"},
		{Name: "tilehit_edep", Value: &tileEdep, Count: "ntilehit"},
		{Name: "nhit", Value: &nHit},
		{Name: "hit_pixelid", Value: &pixelIDs, Count: "nhit"},
		{Name: "hit_mc_i", Value: &hitMC, Count: "nhit"},
		{Name: "ntraj", Value: &nTraj},
		{Name: "traj_ID", Value: &trajID, Count: "ntraj"},
		{Name: "traj_type", Value: &trajType, Count: "ntraj"},
		{Name: "traj_vx", Value: &vx, Count: "ntraj"},
		{Name: "traj_vy", Value: &vy, Count: "ntraj"},
		{Name: "traj_vz", Value: &vz, Count: "ntraj"},
		{Name: "traj_px", Value: &px, Count: "ntraj"},
		{Name: "traj_py", Value: &py, Count: "ntraj"},
		{Name: "traj_pz", Value: &pz, Count: "ntraj"},
	}
	return fillTree(dir, FrameTree, wvars, idx.FrameCount(), func(f int) {
		tileIDs, tileMC, tileEdep = tileIDs[:0], tileMC[:0], tileEdep[:0]
		for _, h := range idx.TileHits(f) {
			tileIDs = append(tileIDs, int32(h.Tile))
			tileMC = append(tileMC, int32(h.MCIndex))
			tileEdep = append(tileEdep, h.Edep)
		}
		nTile = int32(len(tileIDs))

		pixelIDs, hitMC = pixelIDs[:0], hitMC[:0]
		for _, h := range idx.SensorHits(f) {
			pixelIDs = append(pixelIDs, uint32(h.Pixel))
			hitMC = append(hitMC, int32(h.MCIndex))
		}
		nHit = int32(len(pixelIDs))

		trajID, trajType = trajID[:0], trajType[:0]
		vx, vy, vz, px, py, pz = vx[:0], vy[:0], vz[:0], px[:0], py[:0], pz[:0]
		for _, tr := range idx.Trajectories(f) {
			trajID = append(trajID, int32(tr.TrackID))
			trajType = append(trajType, int32(tr.Type))
			vx, vy, vz = append(vx, tr.Vertex.X), append(vy, tr.Vertex.Y), append(vz, tr.Vertex.Z)
			px, py, pz = append(px, tr.Momentum.X), append(py, tr.Momentum.Y), append(pz, tr.Momentum.Z)
		}
		nTraj = int32(len(trajID))
	})
}

func writeTruth(dir riofs.Directory, truth *frames.Truth) error {
	var tid, hid int32
	return fillTree(dir, TruthTree, []rtree.WriteVar{
		{Name: "tid", Value: &tid},
		{Name: "hid", Value: &hid},
	}, truth.Len(), func(mc int) {
		track, _ := truth.OriginTrack(mc)
		depth, _ := truth.HitDepth(mc)
		tid, hid = int32(track), int32(depth)
	})
}
