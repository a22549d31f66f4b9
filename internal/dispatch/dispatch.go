// Package dispatch runs one analysis session per input file on a bounded
// pool of workers and writes each file's results under its own output name.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/export"
	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/monitoring"
	"github.com/mu3e-tools/tileangle/internal/rootio"
	"github.com/mu3e-tools/tileangle/internal/security"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
	"github.com/mu3e-tools/tileangle/internal/timeutil"
)

// DefaultOutputPrefix names batch outputs out1, out2, ...
const DefaultOutputPrefix = "out"

// Analyses a Job can run.
const (
	// AnalysisAngle reconstructs tile hit angles.
	AnalysisAngle = "angle"
	// AnalysisRate counts primary hits and energy deposit per tile.
	AnalysisRate = "rate"
)

var (
	// ErrNoInputs is returned when the job matches no files.
	ErrNoInputs = errors.New("no input files")
	// ErrUnknownAnalysis is returned for an analysis name other than angle or rate.
	ErrUnknownAnalysis = errors.New("unknown analysis")
)

// RunRecorder persists runs. *db.RunStore satisfies it.
type RunRecorder interface {
	InsertRun(run *db.Run) error
	InsertSamples(runID string, rs *tileangle.ResultSet) error
	CompleteRun(runID string, stats *tileangle.MatchStats, runErr error) error
}

// Job describes a batch. Inputs takes precedence over Pattern. An empty
// Analysis runs the angle analysis; Mode and Convention only apply to it.
type Job struct {
	Analysis string

	Pattern      string
	Inputs       []string
	OutputDir    string
	OutputPrefix string

	Mode       string
	Convention string
	FrameLimit int
	Session    tileangle.Options

	Formats []string
	Export  export.Options

	WorkersReserved int
	FailFast        bool

	// Optional collaborators. Nil FS uses the OS, nil Open reads ROOT files,
	// nil Runs disables persistence and nil Clock uses the wall clock.
	FS    fsutil.FileSystem
	Open  func(path string) (*rootio.Input, error)
	Runs  RunRecorder
	Clock timeutil.Clock
}

// FileResult is the outcome of one input file. Number is the 1-based file
// number that appears in the output name and the logs. Samples counts tiles
// with hits for a rate analysis.
type FileResult struct {
	Number   int
	Input    string
	Base     string
	Files    []string
	RunID    string
	Samples  int
	Stats    tileangle.MatchStats
	Duration time.Duration
	Err      error
}

// Report collects the per-file outcomes in input order.
type Report struct {
	Workers int
	Results []FileResult
}

// Failed returns the results that ended in an error.
func (r *Report) Failed() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Workers returns the pool size for reserved spare CPUs, at least one.
func Workers(reserved int) int {
	return max(1, runtime.NumCPU()-reserved)
}

func (j Job) withDefaults() Job {
	if j.FS == nil {
		j.FS = fsutil.OSFileSystem{}
	}
	if j.Open == nil {
		j.Open = rootio.OpenSession
	}
	if j.Clock == nil {
		j.Clock = timeutil.RealClock{}
	}
	if j.Analysis == "" {
		j.Analysis = AnalysisAngle
	}
	if j.OutputDir == "" {
		j.OutputDir = "."
	}
	if j.OutputPrefix == "" {
		j.OutputPrefix = DefaultOutputPrefix
	}
	if len(j.Formats) == 0 {
		j.Formats = []string{"txt"}
	}
	return j
}

func (j Job) inputs() ([]string, error) {
	if len(j.Inputs) > 0 {
		return j.Inputs, nil
	}
	if j.Pattern == "" {
		return nil, ErrNoInputs
	}
	files, err := j.FS.Glob(j.Pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", j.Pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoInputs, j.Pattern)
	}
	return files, nil
}

// Run analyses every input of job. Per-file failures are recorded in the
// report; with FailFast the first failure cancels the remaining files and is
// returned. A cancelled ctx stops files that have not started yet.
func Run(ctx context.Context, job Job) (*Report, error) {
	job = job.withDefaults()
	inputs, err := job.inputs()
	if err != nil {
		return nil, err
	}
	if err := job.validate(); err != nil {
		return nil, err
	}
	if err := job.FS.MkdirAll(job.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	report := &Report{Workers: Workers(job.WorkersReserved), Results: make([]FileResult, len(inputs))}
	monitoring.Logf("[dispatch] %d files, %d workers", len(inputs), report.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(report.Workers)

	var mu sync.Mutex
	for i, path := range inputs {
		n := i + 1
		report.Results[i] = FileResult{Number: n, Input: path}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				report.Results[i].Err = err
				mu.Unlock()
				return nil
			}
			monitoring.Logf("[dispatch] read file %d: %s", n, path)
			monitoring.Logf("[dispatch] started worker %d", n)

			base, err := job.outputBase(job.OutputPrefix + strconv.Itoa(n))
			res := FileResult{Number: n, Input: path, Base: base, Err: err}
			if err == nil {
				res = ProcessFile(gctx, job, n, path, base)
			}

			mu.Lock()
			report.Results[i] = res
			mu.Unlock()

			if res.Err != nil {
				monitoring.Logf("[dispatch] worker %d failed: %v", n, res.Err)
				if job.FailFast {
					return fmt.Errorf("%s: %w", path, res.Err)
				}
				return nil
			}
			monitoring.Logf("[dispatch] worker %d done: %d samples in %s", n, res.Samples, res.Duration.Round(time.Millisecond))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (j Job) validate() error {
	switch j.Analysis {
	case AnalysisRate:
		return export.CheckRateFormats(j.Formats)
	case AnalysisAngle:
	default:
		return fmt.Errorf("%w: %q (want angle or rate)", ErrUnknownAnalysis, j.Analysis)
	}
	if _, err := tileangle.ParseMode(j.Mode); err != nil {
		return err
	}
	if _, err := geometry.ParseConvention(j.Convention); err != nil {
		return err
	}
	for _, f := range j.Formats {
		if _, err := export.ForFormat(f, j.Export); err != nil {
			return err
		}
	}
	return nil
}

// outputBase places name inside the output directory. Symlinks are only
// resolved for outputs on the OS filesystem.
func (j Job) outputBase(name string) (string, error) {
	if _, ok := j.FS.(fsutil.OSFileSystem); ok {
		return security.OutputBase(j.OutputDir, name)
	}
	return security.JoinWithin(j.OutputDir, name)
}

// ProcessFile runs the full pipeline for one file: open, analyse, export
// under base and persist when job.Runs is set. number only labels the logs.
func ProcessFile(ctx context.Context, job Job, number int, path, base string) FileResult {
	job = job.withDefaults()
	start := job.Clock.Now()
	res := FileResult{Number: number, Input: path, Base: base}

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	var run *db.Run
	if job.Runs != nil {
		run = &db.Run{
			InputPath:  path,
			Mode:       job.Mode,
			Convention: job.Convention,
			Policy:     job.Session.Policy.String(),
			PhiPlane:   job.Session.PhiPlane.String(),
			FrameLimit: job.FrameLimit,
		}
		if job.Analysis == AnalysisRate {
			run.Mode, run.Convention = AnalysisRate, ""
		}
		if err := job.Runs.InsertRun(run); err != nil {
			res.Err = fmt.Errorf("record run: %w", err)
			return res
		}
		res.RunID = run.RunID
	}

	var (
		stats *tileangle.MatchStats
		err   error
	)
	if job.Analysis == AnalysisRate {
		var hr *tileangle.HitRates
		if hr, err = hitRates(job, number, path); err == nil {
			stats = &hr.Stats
			res.Samples = hr.Len()
			res.Files, err = export.WriteRates(job.FS, base, hr, job.Formats, job.Export)
		}
	} else {
		var rs *tileangle.ResultSet
		if rs, err = analyse(job, number, path); err == nil {
			stats = &rs.Stats
			res.Samples = rs.Len()
			res.Files, err = export.WriteAll(job.FS, base, rs, job.Formats, job.Export)
		}
		if err == nil && job.Runs != nil {
			err = job.Runs.InsertSamples(run.RunID, rs)
		}
	}
	if stats != nil {
		res.Stats = *stats
	}

	if job.Runs != nil {
		if cerr := job.Runs.CompleteRun(run.RunID, stats, err); cerr != nil && err == nil {
			err = fmt.Errorf("complete run: %w", cerr)
		}
	}
	res.Err = err
	res.Duration = job.Clock.Since(start)
	return res
}

func analyse(job Job, number int, path string) (*tileangle.ResultSet, error) {
	s, err := openSession(job, number, path)
	if err != nil {
		return nil, err
	}
	return s.RunNamed(job.Mode, job.Convention, job.FrameLimit)
}

func hitRates(job Job, number int, path string) (*tileangle.HitRates, error) {
	s, err := openSession(job, number, path)
	if err != nil {
		return nil, err
	}
	return s.HitRates(job.FrameLimit)
}

func openSession(job Job, number int, path string) (*tileangle.Session, error) {
	in, err := job.Open(path)
	if err != nil {
		return nil, err
	}
	opts := job.Session
	if opts.Logf == nil {
		opts.Logf = monitoring.Prefixed("worker "+strconv.Itoa(number), nil)
	}
	return tileangle.NewSession(in.Geometry, in.Store, in.Store, opts), nil
}

// GeometryLoader returns a cached alignment table by name. *db.GeometryStore
// satisfies it.
type GeometryLoader interface {
	Load(name string) (*geometry.Table, error)
}

// CachedGeometryOpener returns an Open function that reads frames and truth
// from each file and takes the alignment from the geometry cached as name.
// The geometry is loaded once, on first use.
func CachedGeometryOpener(store GeometryLoader, name string) func(string) (*rootio.Input, error) {
	load := sync.OnceValues(func() (*geometry.Table, error) {
		geom, err := store.Load(name)
		if err != nil {
			return nil, fmt.Errorf("load geometry %q: %w", name, err)
		}
		return geom, nil
	})
	return func(path string) (*rootio.Input, error) {
		geom, err := load()
		if err != nil {
			return nil, err
		}
		return rootio.OpenEvents(path, geom)
	}
}
