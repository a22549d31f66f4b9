package tileangle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
)

// GeometryTable is the read-only detector alignment used by a run.
type GeometryTable interface {
	TilePosition(id geometry.TileID) (geometry.Vec, error)
	TileDirection(id geometry.TileID) (geometry.Vec, error)
	SensorBasis(id geometry.ModuleID) (origin, row, col geometry.Vec, err error)
}

// FrameSource gives ordered per-frame hit lists.
type FrameSource interface {
	FrameCount() int
	TileHits(frame int) []frames.TileHit
	SensorHits(frame int) []frames.SensorHit
}

// TruthTable resolves MC indices and per-frame trajectories.
type TruthTable interface {
	HitDepth(mc int) (int, error)
	OriginTrack(mc int) (frames.TrackID, error)
	Trajectory(frame int, track frames.TrackID) (frames.Trajectory, bool)
}

// Mode selects the matching strategy.
type Mode int

const (
	// Nearest matches each tile hit to the closest same-track pixel hit.
	Nearest Mode = iota + 1
	// Helix builds the track helix from its simulated initial state.
	Helix
)

var (
	// ErrUnknownConvention is the configuration error for an unknown angle name.
	ErrUnknownConvention = geometry.ErrUnknownConvention
	// ErrUnknownMode is the configuration error for an unknown matching mode.
	ErrUnknownMode = errors.New("unknown matching mode")
	// ErrNotSupported is returned when a convention is not implemented for a mode.
	ErrNotSupported = helix.ErrNotSupported
)

// ParseMode maps a mode name to its value. "tid" is accepted for Nearest.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest", "tid":
		return Nearest, nil
	case "helix":
		return Helix, nil
	}
	return 0, fmt.Errorf("%w: %q (want nearest or helix)", ErrUnknownMode, name)
}

func (m Mode) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Helix:
		return "helix"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Options tune a Session. The zero value is valid: strict policy, 3D phi,
// nominal field, progress every 1000 frames, logging through monitoring.Logf.
type Options struct {
	Policy           Policy
	PhiPlane         geometry.PhiPlane
	FieldTesla       float64
	ProgressInterval int
	Logf             func(format string, v ...interface{})
}

func (o Options) withDefaults() Options {
	if o.FieldTesla == 0 {
		o.FieldTesla = helix.DefaultFieldTesla
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = monitoring.DefaultProgressInterval
	}
	if o.Logf == nil {
		o.Logf = monitoring.Prefixed("TileHitAngle", nil)
	}
	return o
}

// Session owns one input file's geometry, frames and truth. Each Run
// recomputes its ResultSet from scratch; a Session is not safe for
// concurrent Runs only because of its logger, the inputs are read-only.
type Session struct {
	geom   GeometryTable
	frames FrameSource
	truth  TruthTable
	opts   Options
}

// NewSession binds the inputs of one analysis.
func NewSession(geom GeometryTable, src FrameSource, truth TruthTable, opts Options) *Session {
	return &Session{geom: geom, frames: src, truth: truth, opts: opts.withDefaults()}
}

// RunNamed parses mode and convention names at the call boundary and runs.
// Unknown names are configuration errors: they are logged and returned
// before any frame is processed.
func (s *Session) RunNamed(mode, convention string, frameLimit int) (*ResultSet, error) {
	m, err := ParseMode(mode)
	if err != nil {
		s.opts.Logf("ERROR: %v", err)
		return nil, err
	}
	c, err := geometry.ParseConvention(convention)
	if err != nil {
		s.opts.Logf("ERROR: angle != [norm, theta, phi]: %v", err)
		return nil, err
	}
	return s.Run(m, c, frameLimit)
}

// Run processes frames [0, frameLimit) and returns the accumulated samples.
// frameLimit 0 means all frames; a limit above the frame count is clamped.
// On error no ResultSet is returned.
func (s *Session) Run(mode Mode, convention geometry.Convention, frameLimit int) (*ResultSet, error) {
	if err := s.validate(mode, convention); err != nil {
		s.opts.Logf("ERROR: %v", err)
		return nil, err
	}

	n, available := s.window(frameLimit)

	stats := &MatchStats{FramesAvailable: available}
	acc := newAccumulator(mode, convention)
	engine := newAngleEngine(s.opts.Policy, convention, s.opts.PhiPlane)
	progress := monitoring.NewProgress(n, s.opts.ProgressInterval, s.opts.Logf)

	for f := 0; f < n; f++ {
		if err := s.processFrame(f, mode, engine, acc, stats); err != nil {
			return nil, err
		}
		stats.FramesProcessed++
		progress.Step(f)
	}
	progress.Done()

	rs := acc.finalize(*stats)
	for _, line := range rs.Stats.SummaryLines(mode) {
		s.opts.Logf("%s", line)
	}
	return rs, nil
}

// window clamps frameLimit to the available frames and logs the result.
func (s *Session) window(frameLimit int) (n, available int) {
	available = s.frames.FrameCount()
	n = frameLimit
	if n <= 0 || n > available {
		n = available
	}
	s.opts.Logf("Frames to analyze: %d of %d", n, available)
	return n, available
}

func (s *Session) validate(mode Mode, convention geometry.Convention) error {
	switch convention {
	case geometry.Norm, geometry.Theta, geometry.Phi:
	default:
		return fmt.Errorf("%w: %v", ErrUnknownConvention, convention)
	}
	switch mode {
	case Nearest:
		return nil
	case Helix:
		if convention != geometry.Phi {
			return fmt.Errorf("helix mode, %q: %w", convention, ErrNotSupported)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnknownMode, mode)
}

func (s *Session) processFrame(f int, mode Mode, engine *angleEngine, acc *accumulator, stats *MatchStats) error {
	for u, hit := range s.frames.TileHits(f) {
		hid, err := s.truth.HitDepth(hit.MCIndex)
		if err != nil {
			return fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
		}
		if !acceptPrimary(hid, stats) {
			continue
		}

		tilePos, err := s.geom.TilePosition(hit.Tile)
		if err != nil {
			return fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
		}
		tileDir, err := s.geom.TileDirection(hit.Tile)
		if err != nil {
			return fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
		}
		tid, err := s.truth.OriginTrack(hit.MCIndex)
		if err != nil {
			return fmt.Errorf("frame %d tile hit %d: %w", f, u, err)
		}

		var (
			angle float64
			ok    bool
		)
		switch mode {
		case Nearest:
			angle, ok, err = s.nearestAngle(f, tilePos, tileDir, tid, engine, stats)
		case Helix:
			angle, ok, err = s.helixAngle(f, tilePos, tileDir, tid, engine, stats)
		}
		if err != nil {
			return fmt.Errorf("frame %d tile %d: %w", f, hit.Tile, err)
		}
		if !ok {
			continue
		}
		acc.add(hit.Tile, angle, tilePos.Z)
		stats.Matched++
	}
	return nil
}

func (s *Session) nearestAngle(f int, tilePos, tileDir geometry.Vec, tid frames.TrackID, engine *angleEngine, stats *MatchStats) (float64, bool, error) {
	pixelPos, found, err := nearestSensor(s.geom, s.truth, s.frames.SensorHits(f), tilePos, tid, s.opts.Policy, stats)
	if err != nil || !found {
		if err == nil {
			stats.NoCandidate++
		}
		return 0, false, err
	}
	return engine.fromPixel(pixelPos, tilePos, tileDir, stats, s.opts.Logf)
}

func (s *Session) helixAngle(f int, tilePos, tileDir geometry.Vec, tid frames.TrackID, engine *angleEngine, stats *MatchStats) (float64, bool, error) {
	h, ok, err := helixFor(s.truth, f, tid, tilePos, s.opts.FieldTesla, stats)
	if err != nil || !ok {
		return 0, false, err
	}
	return engine.fromHelix(h, tileDir, stats, s.opts.Logf)
}
