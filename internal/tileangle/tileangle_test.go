package tileangle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
	"github.com/mu3e-tools/tileangle/internal/testutil"
)

type logCapture struct {
	mu    sync.Mutex
	lines []string
}

func (c *logCapture) logf(format string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func (c *logCapture) contains(sub string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func px(m geometry.ModuleID, col, row uint8) geometry.PixelID {
	return geometry.PackPixelID(m, col, row)
}

func newSession(store frames.Store, opts Options) *Session {
	if opts.Logf == nil {
		opts.Logf = monitoring.Discard
	}
	return NewSession(testutil.UnitGeometry(), store, store, opts)
}

// threeFrames has one primary tile hit in frame 0 whose pixel hit sits at
// offset (3,4,12) from the tile.
func threeFrames() frames.Store {
	return testutil.BuildStore(
		testutil.FrameSpec{
			Tiles:  []testutil.TileSpec{{Tile: testutil.TileBeam, Track: 1, Depth: 1}},
			Pixels: []testutil.PixelSpec{{Pixel: px(testutil.ModuleLow, 3, 4), Track: 1}},
		},
		testutil.FrameSpec{
			Tiles:  []testutil.TileSpec{{Tile: testutil.TileBeam, Track: 2, Depth: 2}},
			Pixels: []testutil.PixelSpec{{Pixel: px(testutil.ModuleLow, 1, 1), Track: 2}},
		},
		testutil.FrameSpec{},
	)
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	rs, err := newSession(threeFrames(), Options{}).Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())

	row := rs.Row(0)
	assert.Equal(t, testutil.TileBeam, row.TileID)
	assert.InDelta(t, -12, row.Z, 1e-12)
	assert.InDelta(t, math.Acos(12.0/13.0), row.Angle, 1e-12)

	assert.Equal(t, 3, rs.Stats.FramesProcessed)
	assert.Equal(t, 1, rs.Stats.HIDAccepted)
	assert.Equal(t, 1, rs.Stats.HIDDiscarded)
	assert.Equal(t, 1, rs.Stats.Matched)
	assert.Equal(t, Nearest, rs.Mode)
	assert.Equal(t, geometry.Norm, rs.Convention)
}

func TestRunThetaMatchesNormForAxialTile(t *testing.T) {
	t.Parallel()

	s := newSession(threeFrames(), Options{})
	norm, err := s.Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	theta, err := s.Run(Nearest, geometry.Theta, 0)
	require.NoError(t, err)
	assert.Equal(t, norm.Angle, theta.Angle)
}

func TestRunHitDepthFilterIsRankExact(t *testing.T) {
	t.Parallel()

	var tiles []testutil.TileSpec
	var pixels []testutil.PixelSpec
	for i, depth := range []int{-1, 0, 2, 3, 10} {
		track := frames.TrackID(i + 1)
		tiles = append(tiles, testutil.TileSpec{Tile: testutil.TileBeam, Track: track, Depth: depth})
		pixels = append(pixels, testutil.PixelSpec{Pixel: px(testutil.ModuleLow, 0, 0), Track: track})
	}
	store := testutil.BuildStore(testutil.FrameSpec{Tiles: tiles, Pixels: pixels})

	rs, err := newSession(store, Options{}).Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
	assert.Equal(t, 0, rs.Stats.HIDAccepted)
	assert.Equal(t, 5, rs.Stats.HIDDiscarded)
	assert.Equal(t, 0, rs.Stats.OriginTotal(), "sensor hits are never inspected for rejected tile hits")
}

func TestRunHitDepthFilterKeepsWideDepths(t *testing.T) {
	t.Parallel()
	if strconv.IntSize < 64 {
		t.Skip("needs 64-bit int")
	}

	wide := int64(1)<<32 + 1
	var tiles []testutil.TileSpec
	var pixels []testutil.PixelSpec
	for i, depth := range []int{int(wide), int(-wide + 2)} {
		track := frames.TrackID(i + 1)
		tiles = append(tiles, testutil.TileSpec{Tile: testutil.TileBeam, Track: track, Depth: depth})
		pixels = append(pixels, testutil.PixelSpec{Pixel: px(testutil.ModuleLow, 0, 0), Track: track})
	}
	store := testutil.BuildStore(testutil.FrameSpec{Tiles: tiles, Pixels: pixels})

	rs, err := newSession(store, Options{}).Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
	assert.Equal(t, 0, rs.Stats.HIDAccepted)
	assert.Equal(t, 2, rs.Stats.HIDDiscarded)
}

func TestRunNoCandidate(t *testing.T) {
	t.Parallel()

	store := testutil.BuildStore(testutil.FrameSpec{
		Tiles:  []testutil.TileSpec{{Tile: testutil.TileBeam, Track: 1, Depth: 1}},
		Pixels: []testutil.PixelSpec{{Pixel: px(testutil.ModuleLow, 0, 0), Track: 2}},
	})

	rs, err := newSession(store, Options{}).Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
	assert.Equal(t, 1, rs.Stats.HIDAccepted)
	assert.Equal(t, 1, rs.Stats.TIDDiscarded)
	assert.Equal(t, 1, rs.Stats.NoCandidate)
	assert.Equal(t, 0, rs.Stats.Matched)
	assert.NotNil(t, rs.Z)
}

func tieStore() frames.Store {
	// Both pixels are sqrt(145) from the side tile at (10,0,-12).
	return testutil.BuildStore(testutil.FrameSpec{
		Tiles: []testutil.TileSpec{{Tile: testutil.TileSide, Track: 1, Depth: 1}},
		Pixels: []testutil.PixelSpec{
			{Pixel: px(testutil.ModuleLow, 11, 0), Track: 1},
			{Pixel: px(testutil.ModuleLow, 9, 0), Track: 1},
		},
	})
}

func TestRunTieBreak(t *testing.T) {
	t.Parallel()

	first := math.Acos(1 / math.Sqrt(145))
	last := math.Acos(-1 / math.Sqrt(145))

	tests := []struct {
		name   string
		policy Policy
		want   float64
	}{
		{"strict keeps first", StrictPolicy, first},
		{"lenient keeps last", LenientPolicy, last},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rs, err := newSession(tieStore(), Options{Policy: tt.policy}).Run(Nearest, geometry.Norm, 0)
			require.NoError(t, err)
			require.Equal(t, 1, rs.Len())
			assert.InDelta(t, tt.want, rs.Angle[0], 1e-12)
		})
	}
}

func TestRunFrameLimit(t *testing.T) {
	t.Parallel()

	s := newSession(threeFrames(), Options{})
	all, err := s.Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	over, err := s.Run(Nearest, geometry.Norm, 99)
	require.NoError(t, err)
	if diff := cmp.Diff(all, over); diff != "" {
		t.Errorf("frameLimit above frame count differs from 0 (-all +over):\n%s", diff)
	}

	one, err := s.Run(Nearest, geometry.Norm, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Stats.FramesProcessed)
	assert.Equal(t, 0, one.Stats.HIDDiscarded)
}

func TestRunNamedUnknownConvention(t *testing.T) {
	t.Parallel()

	logs := &logCapture{}
	rs, err := newSession(threeFrames(), Options{Logf: logs.logf}).RunNamed("nearest", "xyz", 0)
	require.ErrorIs(t, err, ErrUnknownConvention)
	assert.Nil(t, rs)
	assert.True(t, logs.contains("angle != [norm, theta, phi]"))
	assert.False(t, logs.contains("Frames to analyze"), "no frame may be processed")
}

func TestRunNamedUnknownMode(t *testing.T) {
	t.Parallel()

	rs, err := newSession(threeFrames(), Options{}).RunNamed("closest", "norm", 0)
	require.ErrorIs(t, err, ErrUnknownMode)
	assert.Nil(t, rs)
}

func TestRunNamedAcceptsTIDAlias(t *testing.T) {
	t.Parallel()

	rs, err := newSession(threeFrames(), Options{}).RunNamed("tid", "Norm", 0)
	require.NoError(t, err)
	assert.Equal(t, Nearest, rs.Mode)
	assert.Equal(t, 1, rs.Len())
}

func TestRunUnknownTileAborts(t *testing.T) {
	t.Parallel()

	store := testutil.BuildStore(testutil.FrameSpec{
		Tiles: []testutil.TileSpec{{Tile: 999, Track: 1, Depth: 1}},
	})
	rs, err := newSession(store, Options{}).Run(Nearest, geometry.Norm, 0)
	require.ErrorIs(t, err, geometry.ErrUnknownTile)
	assert.Nil(t, rs)
}

func TestRunPhiPlane(t *testing.T) {
	t.Parallel()

	// Offset (0,3,12) from the side tile, whose phi axis is (0,-1,0).
	store := testutil.BuildStore(testutil.FrameSpec{
		Tiles:  []testutil.TileSpec{{Tile: testutil.TileSide, Track: 1, Depth: 1}},
		Pixels: []testutil.PixelSpec{{Pixel: px(testutil.ModuleLow, 10, 3), Track: 1}},
	})

	rs3d, err := newSession(store, Options{PhiPlane: geometry.PhiPlane3D}).Run(Nearest, geometry.Phi, 0)
	require.NoError(t, err)
	require.Equal(t, 1, rs3d.Len())
	assert.InDelta(t, math.Acos(-3/math.Sqrt(153)), rs3d.Angle[0], 1e-12)

	rsXY, err := newSession(store, Options{PhiPlane: geometry.PhiPlaneXY}).Run(Nearest, geometry.Phi, 0)
	require.NoError(t, err)
	require.Equal(t, 1, rsXY.Len())
	assert.InDelta(t, math.Pi, rsXY.Angle[0], 1e-9)
}

func TestRunUndefinedAngle(t *testing.T) {
	t.Parallel()

	// The pixel sits straight above the side tile: no x-y component.
	store := testutil.BuildStore(testutil.FrameSpec{
		Tiles:  []testutil.TileSpec{{Tile: testutil.TileSide, Track: 1, Depth: 1}},
		Pixels: []testutil.PixelSpec{{Pixel: px(testutil.ModuleLow, 10, 0), Track: 1}},
	})
	opts := Options{PhiPlane: geometry.PhiPlaneXY}

	rs, err := newSession(store, opts).Run(Nearest, geometry.Phi, 0)
	require.ErrorIs(t, err, geometry.ErrZeroVector)
	assert.Nil(t, rs)

	opts.Policy = LenientPolicy
	rs, err = newSession(store, opts).Run(Nearest, geometry.Phi, 0)
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
	assert.Equal(t, 1, rs.Stats.Skipped)
	assert.Equal(t, 0, rs.Stats.Matched)
}

func helixStore() frames.Store {
	side := func(track frames.TrackID) testutil.TileSpec {
		return testutil.TileSpec{Tile: testutil.TileSide, Track: track, Depth: 1}
	}
	vertex := geometry.Vec{X: 10, Y: 0, Z: -12}
	return testutil.BuildStore(testutil.FrameSpec{
		Tiles: []testutil.TileSpec{side(5), side(6), side(7), side(8)},
		Trajectories: []frames.Trajectory{
			{TrackID: 5, Type: 11, Vertex: vertex, Momentum: geometry.Vec{Y: -30}},
			{TrackID: 7, Type: 13, Vertex: vertex, Momentum: geometry.Vec{X: 30}},
			{TrackID: 8, Type: 12, Vertex: vertex},
		},
	})
}

func TestRunHelix(t *testing.T) {
	t.Parallel()

	rs, err := newSession(helixStore(), Options{}).Run(Helix, geometry.Phi, 0)
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())

	// Track 5 starts at the tile flying along the phi axis.
	assert.InDelta(t, 0, rs.Angle[0], 1e-6)
	assert.InDelta(t, -12, rs.Z[0], 1e-12)
	assert.Equal(t, 4, rs.Stats.HIDAccepted)
	assert.Equal(t, 1, rs.Stats.NoTrajectory)
	assert.Equal(t, 1, rs.Stats.UnknownCharge)
	assert.Equal(t, 1, rs.Stats.Degenerate)
	assert.Equal(t, 1, rs.Stats.Matched)
}

func TestHelixForReturnsConstructionErrors(t *testing.T) {
	t.Parallel()

	store := helixStore()
	tilePos := geometry.Vec{X: 10, Z: -12}

	var stats MatchStats
	h, ok, err := helixFor(store, 0, 5, tilePos, 0, &stats)
	require.ErrorIs(t, err, helix.ErrZeroField)
	assert.Nil(t, h)
	assert.False(t, ok)
	assert.Equal(t, MatchStats{}, stats, "configuration errors are not per-hit skips")

	h, ok, err = helixFor(store, 0, 8, tilePos, helix.DefaultFieldTesla, &stats)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.False(t, ok)
	assert.Equal(t, 1, stats.Degenerate)

	_, ok, err = helixFor(store, 0, 5, tilePos, helix.DefaultFieldTesla, &stats)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunHelixRejectsNormAndTheta(t *testing.T) {
	t.Parallel()

	for _, c := range []geometry.Convention{geometry.Norm, geometry.Theta} {
		logs := &logCapture{}
		rs, err := newSession(helixStore(), Options{Logf: logs.logf}).Run(Helix, c, 0)
		require.ErrorIs(t, err, ErrNotSupported, "convention %v", c)
		assert.Nil(t, rs)
		assert.False(t, logs.contains("Frames to analyze"))
	}
}

func TestSummaryLines(t *testing.T) {
	t.Parallel()

	stats := MatchStats{HIDAccepted: 3, HIDDiscarded: 1, TIDAccepted: 2, TIDDiscarded: 4, Matched: 2}
	got := stats.SummaryLines(Nearest)
	want := []string{
		"HID CHECK: 3 of 4 ok",
		"TID CHECK: 2 of 6 ok",
		"Total events with matching tile and sensor hit: 2 of 3 primary tile hits",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SummaryLines mismatch (-want +got):\n%s", diff)
	}

	stats.Skipped = 1
	got = stats.SummaryLines(Helix)
	assert.Len(t, got, 4)
	assert.Equal(t, "skipped (angle undefined): 1", got[3])
}

func TestRunLogsProgressAndSummary(t *testing.T) {
	t.Parallel()

	logs := &logCapture{}
	_, err := newSession(threeFrames(), Options{Logf: logs.logf, ProgressInterval: 1}).Run(Nearest, geometry.Norm, 0)
	require.NoError(t, err)
	assert.True(t, logs.contains("Frames to analyze: 3 of 3"))
	assert.True(t, logs.contains("100%"))
	assert.True(t, logs.contains("HID CHECK: 1 of 2 ok"))
}

func TestParsePolicyAndMode(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StrictPolicy, p)
	p, err = ParsePolicy("lenient")
	require.NoError(t, err)
	assert.Equal(t, "lenient", p.String())
	_, err = ParsePolicy("loose")
	assert.Error(t, err)

	m, err := ParseMode(" Helix ")
	require.NoError(t, err)
	assert.Equal(t, "helix", m.String())
}

func TestResultSetMoments(t *testing.T) {
	t.Parallel()

	rs := &ResultSet{Angle: []float64{1, 2, 3}, Z: []float64{0, 0, 0}, TileID: []geometry.TileID{1, 1, 1}}
	mean, std := rs.AngleMoments()
	assert.InDelta(t, 2, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)
	assert.Len(t, rs.Rows(), 3)
}

func TestHitRates(t *testing.T) {
	t.Parallel()

	store := testutil.BuildStore(
		testutil.FrameSpec{Tiles: []testutil.TileSpec{
			{Tile: testutil.TileSide, Track: 1, Depth: 1, Edep: 1.0},
			{Tile: testutil.TileBeam, Track: 2, Depth: 1, Edep: 0.5},
			{Tile: testutil.TileSide, Track: 3, Depth: 2, Edep: 9},
		}},
		testutil.FrameSpec{Tiles: []testutil.TileSpec{
			{Tile: testutil.TileBeam, Track: 4, Depth: 1, Edep: 0.25},
		}},
		testutil.FrameSpec{},
		testutil.FrameSpec{Tiles: []testutil.TileSpec{
			{Tile: testutil.TileBeam, Track: 5, Depth: 1, Edep: 7},
		}},
	)

	logs := &logCapture{}
	hr, err := newSession(store, Options{Logf: logs.logf}).HitRates(3)
	require.NoError(t, err)

	want := []TileRate{
		{Tile: testutil.TileBeam, Hits: 2, Rate: 2.0 / 3, Edep: 0.75},
		{Tile: testutil.TileSide, Hits: 1, Rate: 1.0 / 3, Edep: 1.0},
	}
	if diff := cmp.Diff(want, hr.Tiles); diff != "" {
		t.Errorf("tile rates (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{1.0, 0.5, 0.25}, hr.Edep)
	assert.Equal(t, []geometry.TileID{testutil.TileSide, testutil.TileBeam, testutil.TileBeam}, hr.EdepTile)
	assert.Equal(t, 3, hr.Len())

	assert.Equal(t, 3, hr.Stats.HIDAccepted)
	assert.Equal(t, 1, hr.Stats.HIDDiscarded)
	assert.Equal(t, 3, hr.Stats.FramesProcessed)
	assert.Equal(t, 4, hr.Stats.FramesAvailable)
	assert.Zero(t, hr.Stats.OriginTotal())
	assert.True(t, logs.contains("HID CHECK: 3 of 4 ok"))

	side, ok := hr.Tile(testutil.TileSide)
	require.True(t, ok)
	assert.Equal(t, 1, side.Hits)
	_, ok = hr.Tile(999)
	assert.False(t, ok)
}

func TestHitRatesEmptyAndUnknownTile(t *testing.T) {
	t.Parallel()

	hr, err := newSession(testutil.BuildStore(), Options{}).HitRates(0)
	require.NoError(t, err)
	assert.Empty(t, hr.Tiles)
	assert.NotNil(t, hr.Edep)

	store := testutil.BuildStore(testutil.FrameSpec{
		Tiles: []testutil.TileSpec{{Tile: 999, Track: 1, Depth: 1}},
	})
	hr, err = newSession(store, Options{}).HitRates(0)
	require.ErrorIs(t, err, geometry.ErrUnknownTile)
	assert.Nil(t, hr)
}
