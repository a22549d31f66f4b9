package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

// ErrGeometryNotFound is returned by Load for an unknown geometry name.
var ErrGeometryNotFound = errors.New("geometry not found")

// GeometryInfo describes a cached geometry.
type GeometryInfo struct {
	Name        string `json:"name"`
	SourcePath  string `json:"source_path"`
	TileCount   int    `json:"tile_count"`
	ModuleCount int    `json:"module_count"`
	CreatedAt   int64  `json:"created_at"`
}

// GeometryStore caches detector alignment tables by name, so repeated runs
// over files from the same simulation do not re-read the alignment trees.
type GeometryStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Save stores t under name, replacing any geometry of the same name.
func (s *GeometryStore) Save(name, sourcePath string, t *geometry.Table) error {
	return retryOnBusy(s.clock, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		for _, table := range []string{"geometry_tiles", "geometry_modules"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE geometry = ?`, name); err != nil {
				return fmt.Errorf("delete %s of %s: %w", table, name, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM geometries WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete geometry %s: %w", name, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO geometries (name, source_path, tile_count, module_count, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			name, sourcePath, t.TileCount(), t.ModuleCount(), s.clock.Now().UnixNano(),
		); err != nil {
			return fmt.Errorf("insert geometry %s: %w", name, err)
		}

		tileStmt, err := tx.Prepare(`
			INSERT INTO geometry_tiles (geometry, tile_id, posx, posy, posz, dirx, diry, dirz)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare tiles: %w", err)
		}
		defer tileStmt.Close()
		for _, tile := range t.Tiles() {
			p, d := tile.Position, tile.Direction
			if _, err := tileStmt.Exec(name, int64(tile.ID), p.X, p.Y, p.Z, d.X, d.Y, d.Z); err != nil {
				return fmt.Errorf("insert tile %d: %w", tile.ID, err)
			}
		}

		modStmt, err := tx.Prepare(`
			INSERT INTO geometry_modules (geometry, module_id, vx, vy, vz, rowx, rowy, rowz, colx, coly, colz)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare modules: %w", err)
		}
		defer modStmt.Close()
		for _, m := range t.Modules() {
			o, r, c := m.Origin, m.Row, m.Col
			if _, err := modStmt.Exec(name, int64(m.ID), o.X, o.Y, o.Z, r.X, r.Y, r.Z, c.X, c.Y, c.Z); err != nil {
				return fmt.Errorf("insert module %d: %w", m.ID, err)
			}
		}

		return tx.Commit()
	})
}

// Load rebuilds the geometry stored under name.
func (s *GeometryStore) Load(name string) (*geometry.Table, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM geometries WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query geometry %s: %w", name, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGeometryNotFound, name)
	}

	rows, err := s.db.Query(`
		SELECT tile_id, posx, posy, posz, dirx, diry, dirz
		FROM geometry_tiles WHERE geometry = ? ORDER BY tile_id`, name)
	if err != nil {
		return nil, fmt.Errorf("query tiles: %w", err)
	}
	var tiles []geometry.Tile
	for rows.Next() {
		var (
			id   int64
			tile geometry.Tile
		)
		p, d := &tile.Position, &tile.Direction
		if err := rows.Scan(&id, &p.X, &p.Y, &p.Z, &d.X, &d.Y, &d.Z); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		tile.ID = geometry.TileID(id)
		tiles = append(tiles, tile)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
		SELECT module_id, vx, vy, vz, rowx, rowy, rowz, colx, coly, colz
		FROM geometry_modules WHERE geometry = ? ORDER BY module_id`, name)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()
	var modules []geometry.SensorModule
	for rows.Next() {
		var (
			id int64
			m  geometry.SensorModule
		)
		o, r, c := &m.Origin, &m.Row, &m.Col
		if err := rows.Scan(&id, &o.X, &o.Y, &o.Z, &r.X, &r.Y, &r.Z, &c.X, &c.Y, &c.Z); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		m.ID = geometry.ModuleID(id)
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return geometry.NewTable(tiles, modules), nil
}

// List returns the cached geometries ordered by name.
func (s *GeometryStore) List() ([]GeometryInfo, error) {
	rows, err := s.db.Query(`
		SELECT name, COALESCE(source_path, ''), tile_count, module_count, created_at
		FROM geometries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query geometries: %w", err)
	}
	defer rows.Close()

	var out []GeometryInfo
	for rows.Next() {
		var g GeometryInfo
		if err := rows.Scan(&g.Name, &g.SourcePath, &g.TileCount, &g.ModuleCount, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan geometry: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
