// Package rootio reads simulated mu3e ROOT files into the geometry, frame and
// truth tables of the analysis, and writes result trees back to ROOT.
package rootio

import (
	"errors"
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
)

// Tree names inside a simulation output file.
const (
	FrameTree  = "mu3e"
	TruthTree  = "mu3e_mchits"
	TileTree   = "alignment/tiles"
	SensorTree = "alignment/sensors"
)

var (
	// ErrMismatchedBranches is returned when parallel per-frame branches
	// differ in length.
	ErrMismatchedBranches = errors.New("rootio: parallel branches differ in length")
	// ErrNoGeometry is returned by OpenEvents without an alignment table.
	ErrNoGeometry = errors.New("rootio: no geometry")
)

// Input is everything one analysis needs from a single file.
type Input struct {
	Path     string
	Geometry *geometry.Table
	Store    frames.Store
}

// OpenSession reads geometry, frames and truth from the file at path.
func OpenSession(path string) (*Input, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer f.Close()

	geom, err := ReadGeometry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	store, err := readStore(f, path)
	if err != nil {
		return nil, err
	}
	return &Input{Path: path, Geometry: geom, Store: store}, nil
}

// OpenEvents reads frames and truth from the file at path and binds them to
// geom. The file's own alignment trees are neither read nor required.
func OpenEvents(path string, geom *geometry.Table) (*Input, error) {
	if geom == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoGeometry)
	}
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer f.Close()

	store, err := readStore(f, path)
	if err != nil {
		return nil, err
	}
	return &Input{Path: path, Geometry: geom, Store: store}, nil
}

func readStore(dir riofs.Directory, path string) (frames.Store, error) {
	idx, err := ReadFrames(dir)
	if err != nil {
		return frames.Store{}, fmt.Errorf("%s: %w", path, err)
	}
	truth, err := ReadTruth(dir)
	if err != nil {
		return frames.Store{}, fmt.Errorf("%s: %w", path, err)
	}
	tiles, sensors, trajs := idx.Totals()
	monitoring.Logf("[rootio] %s: %d frames, %d tile hits, %d pixel hits, %d trajectories, %d mc hits",
		path, idx.FrameCount(), tiles, sensors, trajs, truth.Len())
	return frames.Store{Index: idx, Truth: truth}, nil
}

// OpenGeometry reads only the alignment trees of the file at path.
func OpenGeometry(path string) (*geometry.Table, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	defer f.Close()

	geom, err := ReadGeometry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return geom, nil
}

func getTree(dir riofs.Directory, name string) (rtree.Tree, error) {
	obj, err := riofs.Dir(dir).Get(name)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve tree %q: %w", name, err)
	}
	t, ok := obj.(rtree.Tree)
	if !ok {
		return nil, fmt.Errorf("object %q is a %T, not a tree", name, obj)
	}
	return t, nil
}

// readTree runs fn for every entry of tree name with the selected branches.
func readTree(dir riofs.Directory, name string, required, optional []string, fn func(entry int64, vars map[string]interface{}) error) error {
	t, err := getTree(dir, name)
	if err != nil {
		return err
	}
	rvars, err := selectVars(t, required, optional)
	if err != nil {
		return err
	}
	r, err := rtree.NewReader(t, rvars)
	if err != nil {
		return fmt.Errorf("could not create reader for %q: %w", name, err)
	}
	defer r.Close()

	vars := varsByName(rvars)
	err = r.Read(func(ctx rtree.RCtx) error {
		return fn(ctx.Entry, vars)
	})
	if err != nil {
		return fmt.Errorf("could not read tree %q: %w", name, err)
	}
	return nil
}

// ReadGeometry loads tile and sensor-module alignment.
func ReadGeometry(dir riofs.Directory) (*geometry.Table, error) {
	var tiles []geometry.Tile
	err := readTree(dir, TileTree,
		[]string{"sensor", "posx", "posy", "posz", "dirx", "diry", "dirz"}, nil,
		func(_ int64, vars map[string]interface{}) error {
			id, err := toInt64(vars["sensor"])
			if err != nil {
				return err
			}
			pos, err := vec3(vars, "posx", "posy", "posz")
			if err != nil {
				return err
			}
			dir, err := vec3(vars, "dirx", "diry", "dirz")
			if err != nil {
				return err
			}
			tiles = append(tiles, geometry.Tile{
				ID:        geometry.TileID(id),
				Position:  toVec(pos),
				Direction: toVec(dir),
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	var modules []geometry.SensorModule
	err = readTree(dir, SensorTree,
		[]string{"vx", "vy", "vz", "rowx", "rowy", "rowz", "colx", "coly", "colz"}, []string{"sensor"},
		func(entry int64, vars map[string]interface{}) error {
			// Files without a sensor branch are indexed by entry number.
			id := entry
			if v, ok := vars["sensor"]; ok {
				var err error
				if id, err = toInt64(v); err != nil {
					return err
				}
			}
			origin, err := vec3(vars, "vx", "vy", "vz")
			if err != nil {
				return err
			}
			row, err := vec3(vars, "rowx", "rowy", "rowz")
			if err != nil {
				return err
			}
			col, err := vec3(vars, "colx", "coly", "colz")
			if err != nil {
				return err
			}
			modules = append(modules, geometry.SensorModule{
				ID:     geometry.ModuleID(id),
				Origin: toVec(origin),
				Row:    toVec(row),
				Col:    toVec(col),
			})
			return nil
		})
	if err != nil {
		return nil, err
	}

	return geometry.NewTable(tiles, modules), nil
}

var (
	trajBranches = []string{"traj_ID", "traj_type", "traj_vx", "traj_vy", "traj_vz", "traj_px", "traj_py", "traj_pz"}
	// Energy deposits and trajectories are read when present.
	frameOptional = append([]string{"tilehit_edep"}, trajBranches...)
)

// ReadFrames builds the per-frame hit index from the frame tree. Trajectory
// branches are optional; without them helix mode finds no trajectories.
// Without tilehit_edep every tile hit has a zero deposit.
func ReadFrames(dir riofs.Directory) (*frames.Index, error) {
	b := frames.NewBuilder()
	var (
		tileIDs, tileMC, pixelIDs, pixelMC, trajIDs, trajTypes []int64
		tileEdep                                               []float64
		trajCols                                               [6][]float64
		tiles                                                  []frames.TileHit
		sensors                                                []frames.SensorHit
		trajs                                                  []frames.Trajectory
	)
	err := readTree(dir, FrameTree,
		[]string{"tilehit_tile", "tilehit_mc_i", "hit_pixelid", "hit_mc_i"}, frameOptional,
		func(entry int64, vars map[string]interface{}) error {
			var err error
			if tileIDs, err = appendInts(tileIDs[:0], vars["tilehit_tile"]); err != nil {
				return err
			}
			if tileMC, err = appendInts(tileMC[:0], vars["tilehit_mc_i"]); err != nil {
				return err
			}
			if pixelIDs, err = appendInts(pixelIDs[:0], vars["hit_pixelid"]); err != nil {
				return err
			}
			if pixelMC, err = appendInts(pixelMC[:0], vars["hit_mc_i"]); err != nil {
				return err
			}
			if len(tileIDs) != len(tileMC) || len(pixelIDs) != len(pixelMC) {
				return fmt.Errorf("frame %d: %w", entry, ErrMismatchedBranches)
			}
			tileEdep = tileEdep[:0]
			if v, ok := vars["tilehit_edep"]; ok {
				if tileEdep, err = appendFloats(tileEdep, v); err != nil {
					return err
				}
				if len(tileEdep) != len(tileIDs) {
					return fmt.Errorf("frame %d branch %q: %w", entry, "tilehit_edep", ErrMismatchedBranches)
				}
			}

			tiles = tiles[:0]
			for i := range tileIDs {
				hit := frames.TileHit{Tile: geometry.TileID(tileIDs[i]), MCIndex: int(tileMC[i])}
				if len(tileEdep) > 0 {
					hit.Edep = tileEdep[i]
				}
				tiles = append(tiles, hit)
			}
			sensors = sensors[:0]
			for i := range pixelIDs {
				sensors = append(sensors, frames.SensorHit{Pixel: geometry.PixelID(pixelIDs[i]), MCIndex: int(pixelMC[i])})
			}

			trajs = trajs[:0]
			if _, ok := vars["traj_ID"]; ok {
				if trajs, err = decodeTrajectories(entry, vars, &trajIDs, &trajTypes, &trajCols, trajs); err != nil {
					return err
				}
			}

			b.AddFrame(tiles, sensors, trajs)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func decodeTrajectories(entry int64, vars map[string]interface{}, ids, types *[]int64, cols *[6][]float64, dst []frames.Trajectory) ([]frames.Trajectory, error) {
	var err error
	for _, name := range trajBranches {
		if _, ok := vars[name]; !ok {
			return dst, fmt.Errorf("frame %d: trajectory branch %q missing", entry, name)
		}
	}
	if *ids, err = appendInts((*ids)[:0], vars["traj_ID"]); err != nil {
		return dst, err
	}
	if *types, err = appendInts((*types)[:0], vars["traj_type"]); err != nil {
		return dst, err
	}
	for i, name := range trajBranches[2:] {
		if cols[i], err = appendFloats(cols[i][:0], vars[name]); err != nil {
			return dst, err
		}
		if len(cols[i]) != len(*ids) {
			return dst, fmt.Errorf("frame %d branch %q: %w", entry, name, ErrMismatchedBranches)
		}
	}
	if len(*types) != len(*ids) {
		return dst, fmt.Errorf("frame %d branch %q: %w", entry, "traj_type", ErrMismatchedBranches)
	}
	for i, id := range *ids {
		dst = append(dst, frames.Trajectory{
			TrackID:  frames.TrackID(id),
			Type:     int((*types)[i]),
			Vertex:   geometry.Vec{X: cols[0][i], Y: cols[1][i], Z: cols[2][i]},
			Momentum: geometry.Vec{X: cols[3][i], Y: cols[4][i], Z: cols[5][i]},
		})
	}
	return dst, nil
}

// ReadTruth loads the MC truth table. Entry i describes MC index i.
func ReadTruth(dir riofs.Directory) (*frames.Truth, error) {
	var records []frames.TruthRecord
	err := readTree(dir, TruthTree, []string{"tid", "hid"}, nil,
		func(_ int64, vars map[string]interface{}) error {
			tid, err := toInt64(vars["tid"])
			if err != nil {
				return err
			}
			hid, err := toInt64(vars["hid"])
			if err != nil {
				return err
			}
			records = append(records, frames.TruthRecord{TrackID: frames.TrackID(tid), HitDepth: int(hid)})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return frames.NewTruth(records), nil
}

func toVec(v [3]float64) geometry.Vec {
	return geometry.Vec{X: v[0], Y: v[1], Z: v[2]}
}
