package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
	"github.com/mu3e-tools/tileangle/internal/testutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	monitoring.SetLogger(nil)
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigratesToLatest(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	_, err = db.Exec(`SELECT error_code FROM analysis_runs`)
	assert.Error(t, err, "error_code column should be gone")

	require.NoError(t, db.MigrateDown())
	_, err = db.Exec(`SELECT COUNT(*) FROM analysis_runs`)
	assert.Error(t, err, "runs table should be gone")
}

func TestGeometryStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := db.Geometries()

	want := testutil.UnitGeometry()
	require.NoError(t, store.Save("unit", "sim.root", want))

	got, err := store.Load("unit")
	require.NoError(t, err)
	if diff := cmp.Diff(want.Tiles(), got.Tiles()); diff != "" {
		t.Errorf("tiles (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Modules(), got.Modules()); diff != "" {
		t.Errorf("modules (-want +got):\n%s", diff)
	}

	// Saving again replaces rather than duplicates.
	smaller := geometry.NewTable(testutil.UnitTiles()[:1], nil)
	require.NoError(t, store.Save("unit", "other.root", smaller))
	got, err = store.Load("unit")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TileCount())
	assert.Equal(t, 0, got.ModuleCount())

	infos, err := store.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "other.root", infos[0].SourcePath)
	assert.Equal(t, 1, infos[0].TileCount)
}

func TestGeometryStoreLoadMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Geometries().Load("nope")
	assert.ErrorIs(t, err, ErrGeometryNotFound)
}

func TestRunStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	runs := db.Runs()

	run := &Run{InputPath: "sim.root", Mode: "nearest", Convention: "norm", Policy: "strict", PhiPlane: "3d"}
	require.NoError(t, runs.InsertRun(run))
	require.NotEmpty(t, run.RunID)

	rs := &tileangle.ResultSet{
		Z:      []float64{-12, 4},
		Angle:  []float64{0.5, 1.0},
		TileID: []geometry.TileID{100, 101},
	}
	require.NoError(t, runs.InsertSamples(run.RunID, rs))
	require.NoError(t, runs.InsertSamples(run.RunID, rs))

	stats := &tileangle.MatchStats{HIDAccepted: 4, Matched: 4}
	require.NoError(t, runs.CompleteRun(run.RunID, stats, nil))

	got, err := runs.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 4, got.SampleCount)
	assert.NotZero(t, got.CompletedAt)
	if diff := cmp.Diff(stats, got.Stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}

	samples, err := runs.Samples(run.RunID)
	require.NoError(t, err)
	want := append(rs.Rows(), rs.Rows()...)
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Errorf("samples (-want +got):\n%s", diff)
	}
}

func TestRunStoreTimestampsUseClock(t *testing.T) {
	db := openTestDB(t)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	db.SetClock(clock)
	runs := db.Runs()

	run := &Run{InputPath: "sim.root", Mode: "nearest", Convention: "norm", Policy: "strict", PhiPlane: "3d"}
	require.NoError(t, runs.InsertRun(run))
	clock.Advance(90 * time.Second)
	require.NoError(t, runs.CompleteRun(run.RunID, nil, nil))

	got, err := runs.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, start.UnixNano(), got.CreatedAt)
	assert.Equal(t, start.Add(90*time.Second).UnixNano(), got.CompletedAt)

	require.NoError(t, db.Geometries().Save("unit", "", testutil.UnitGeometry()))
	infos, err := db.Geometries().List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, start.Add(90*time.Second).UnixNano(), infos[0].CreatedAt)
}

func TestRunStoreFailedRun(t *testing.T) {
	db := openTestDB(t)
	runs := db.Runs()

	run := &Run{RunID: "fixed-id", InputPath: "bad.root", Mode: "helix", Convention: "norm", Policy: "strict", PhiPlane: "3d"}
	require.NoError(t, runs.InsertRun(run))
	runErr := fmt.Errorf("frame 0 tile 7: helix mode, %q: %w", "norm", tileangle.ErrNotSupported)
	require.NoError(t, runs.CompleteRun(run.RunID, nil, runErr))

	got, err := runs.GetRun("fixed-id")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, runErr.Error(), got.Error)
	assert.Equal(t, CodeUnsupported, got.ErrorCode)
	assert.Nil(t, got.Stats)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("run: %w", tileangle.ErrUnknownConvention), CodeConfig},
		{tileangle.ErrUnknownMode, CodeConfig},
		{fmt.Errorf("track 5: %w", helix.ErrZeroField), CodeConfig},
		{fmt.Errorf("wrapped: %w", tileangle.ErrNotSupported), CodeUnsupported},
		{fmt.Errorf("frame 2: %w", geometry.ErrUnknownTile), CodeGeometry},
		{geometry.ErrUnknownModule, CodeGeometry},
		{fmt.Errorf("tile hit 0: %w", frames.ErrUnknownMCIndex), CodeTruth},
		{context.Canceled, CodeCancelled},
		{errors.New("corrupt basket"), CodeOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), "error %v", tt.err)
	}
}

func TestRunStoreUnknownRun(t *testing.T) {
	db := openTestDB(t)
	runs := db.Runs()

	_, err := runs.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, runs.CompleteRun("missing", nil, nil), ErrRunNotFound)
	assert.ErrorIs(t, runs.InsertSamples("missing", &tileangle.ResultSet{}), ErrRunNotFound)
	assert.ErrorIs(t, runs.DeleteRun("missing"), ErrRunNotFound)
}

func TestRunStoreListAndDelete(t *testing.T) {
	db := openTestDB(t)
	runs := db.Runs()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, runs.InsertRun(&Run{
			RunID: id, InputPath: id + ".root", Mode: "nearest", Convention: "phi",
			Policy: "lenient", PhiPlane: "xy", CreatedAt: int64(i + 1),
		}))
	}

	list, err := runs.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].RunID, "newest first")
	assert.Equal(t, StatusRunning, list[0].Status)

	list, err = runs.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, runs.DeleteRun("b"))
	list, err = runs.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("success after retry", func(t *testing.T) {
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		callCount := 0
		err := retryOnBusy(clock, func() error {
			callCount++
			if callCount < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, callCount)
		assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, clock.Sleeps())
	})

	t.Run("non-busy error fails immediately", func(t *testing.T) {
		callCount := 0
		testErr := errors.New("some other error")
		err := retryOnBusy(timeutil.RealClock{}, func() error {
			callCount++
			return testErr
		})
		assert.Equal(t, testErr, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		callCount := 0
		err := retryOnBusy(clock, func() error {
			callCount++
			return errors.New("SQLITE_BUSY")
		})
		assert.Error(t, err)
		assert.Equal(t, maxBusyRetries, callCount)
		assert.Len(t, clock.Sleeps(), maxBusyRetries-1)
	})
}

func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}
