package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu3e-tools/tileangle/internal/geometry"
)

func TestAssertHelpersPass(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, assert.AnError)
	AssertFloatsClose(t, []float64{1, 2}, []float64{1, 2 + 1e-12}, 1e-9)

	req := NewTestRequest(http.MethodGet, "/debug/")
	assert.Equal(t, "/debug/", req.URL.Path)
	assert.Equal(t, http.StatusOK, NewTestRecorder().Code)
}

func TestUnitGeometryPixelGrid(t *testing.T) {
	t.Parallel()

	g := UnitGeometry()
	pos, err := g.PixelPosition(geometry.PackPixelID(ModuleLow, 3, 4))
	require.NoError(t, err)
	assert.InDelta(t, 3, pos.X, 1e-12)
	assert.InDelta(t, 4, pos.Y, 1e-12)
	assert.InDelta(t, 0, pos.Z, 1e-12)

	pos, err = g.PixelPosition(geometry.PackPixelID(ModuleTop, 0, 0))
	require.NoError(t, err)
	assert.InDelta(t, 50, pos.Z, 1e-12)
}

func TestBuildStoreAssignsMCIndices(t *testing.T) {
	t.Parallel()

	store := BuildStore(
		FrameSpec{
			Tiles:  []TileSpec{{Tile: TileBeam, Track: 7, Depth: 1}},
			Pixels: []PixelSpec{{Pixel: geometry.PackPixelID(ModuleLow, 1, 1), Track: 7}},
		},
		FrameSpec{Tiles: []TileSpec{{Tile: TileSide, Track: 8, Depth: 2}}},
	)
	require.Equal(t, 2, store.FrameCount())
	assert.Equal(t, 3, store.Len())

	hit := store.TileHits(1)[0]
	assert.Equal(t, 2, hit.MCIndex)
	depth, err := store.HitDepth(hit.MCIndex)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}
