// Package api serves the persisted analysis runs over HTTP: run listings,
// per-run summaries, raw samples and chart pages.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/export"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
	"github.com/mu3e-tools/tileangle/internal/units"
)

// ANSI escape codes for request logs
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

const defaultListLimit = 50

type Server struct {
	runs       *db.RunStore
	geometries *db.GeometryStore
	export     export.Options
}

func NewServer(database *db.DB, opts export.Options) *Server {
	return &Server{
		runs:       database.Runs(),
		geometries: database.Geometries(),
		export:     opts,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes are attached separately.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.deleteRun)
	mux.HandleFunc("GET /api/runs/{id}/samples", s.listSamples)
	mux.HandleFunc("GET /api/runs/{id}/chart", s.showChart)
	mux.HandleFunc("GET /api/geometries", s.listGeometries)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// angleUnits returns the requested angle unit, radians by default.
func angleUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return units.Rad, true
	}
	if !units.IsValid(u) {
		writeJSONError(w, http.StatusBadRequest, "invalid units; must be one of "+units.GetValidUnitsString())
		return "", false
	}
	return u, true
}

// writeStoreError maps store errors to 404 or 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Printf("[api] store error: %v", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// Summary describes the angle distribution of one run.
type Summary struct {
	Units   string   `json:"units"`
	Count   int      `json:"count"`
	Mean    *float64 `json:"mean,omitempty"`
	StdDev  *float64 `json:"std_dev,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	MeanZ   *float64 `json:"mean_z,omitempty"`
	TileIDs int      `json:"distinct_tiles"`
}

// Summarize computes the distribution summary of samples with angles in
// unit. Moments that are undefined for the sample count are left out.
func Summarize(samples []tileangle.MatchResult, unit string) Summary {
	sum := Summary{Units: unit, Count: len(samples)}
	if len(samples) == 0 {
		return sum
	}
	angles := make([]float64, len(samples))
	zs := make([]float64, len(samples))
	tiles := make(map[geometry.TileID]bool)
	for i, s := range samples {
		angles[i], zs[i] = units.ConvertAngle(s.Angle, unit), s.Z
		tiles[s.TileID] = true
	}
	sum.TileIDs = len(tiles)

	mean, std := stat.MeanStdDev(angles, nil)
	lo, hi, meanZ := floats.Min(angles), floats.Max(angles), stat.Mean(zs, nil)
	sum.Mean, sum.Min, sum.Max, sum.MeanZ = &mean, &lo, &hi, &meanZ
	if !math.IsNaN(std) {
		sum.StdDev = &std
	}
	return sum
}

type runDetail struct {
	*db.Run
	Summary Summary `json:"summary"`
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	unit, ok := angleUnits(w, r)
	if !ok {
		return
	}
	run, err := s.runs.GetRun(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	samples, err := s.runs.Samples(run.RunID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDetail{Run: run, Summary: Summarize(samples, unit)})
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.DeleteRun(r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	unit, ok := angleUnits(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := s.runs.GetRun(id); err != nil {
		writeStoreError(w, err)
		return
	}
	samples, err := s.runs.Samples(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if samples == nil {
		samples = []tileangle.MatchResult{}
	}
	for i := range samples {
		samples[i].Angle = units.ConvertAngle(samples[i].Angle, unit)
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	samples, err := s.runs.Samples(run.RunID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	rs := &tileangle.ResultSet{
		Z:      make([]float64, len(samples)),
		Angle:  make([]float64, len(samples)),
		TileID: make([]geometry.TileID, len(samples)),
	}
	rs.Mode, _ = tileangle.ParseMode(run.Mode)
	rs.Convention, _ = geometry.ParseConvention(run.Convention)
	for i, smp := range samples {
		rs.Z[i], rs.Angle[i], rs.TileID[i] = smp.Z, smp.Angle, smp.TileID
	}

	opts := s.export
	opts.Title = run.InputPath
	page, err := export.RenderHTML(rs, opts)
	if err != nil {
		log.Printf("[api] render chart for %s: %v", run.RunID, err)
		writeJSONError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) listGeometries(w http.ResponseWriter, r *http.Request) {
	infos, err := s.geometries.List()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if infos == nil {
		infos = []db.GeometryInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}
