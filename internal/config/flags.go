package config

import (
	"flag"
	"strings"
)

// Overrides are command-line values layered over a loaded AnalysisConfig.
// Only flags that were set on the command line are applied.
type Overrides struct {
	fs *flag.FlagSet

	analysis                           string
	mode, convention, phiPlane, policy string
	formats, outputDir, dbPath         string
	frameLimit, progressInterval       int
	workersReserved                    int
	field                              float64
	failFast                           bool
}

// RegisterFlags defines the analysis flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Overrides {
	o := &Overrides{fs: fs}
	fs.StringVar(&o.analysis, "analysis", "", "analysis: angle (tile hit angles) or rate (primary hits per tile)")
	fs.StringVar(&o.mode, "mode", "", "matching mode: nearest (alias tid) or helix")
	fs.StringVar(&o.convention, "angle", "", "angle convention: norm, theta or phi")
	fs.StringVar(&o.phiPlane, "phi-plane", "", "phi angle plane: 3d or xy")
	fs.StringVar(&o.policy, "policy", "", "tie-break and error policy: strict or lenient")
	fs.IntVar(&o.frameLimit, "frames", 0, "number of frames to analyze (0 = all)")
	fs.IntVar(&o.progressInterval, "progress", 0, "log progress every N frames")
	fs.Float64Var(&o.field, "field", 0, "magnetic field in tesla for helix mode")
	fs.StringVar(&o.formats, "formats", "", "comma-separated output formats (txt,yoda,png,pdf,svg,html,pb,root)")
	fs.StringVar(&o.outputDir, "outdir", "", "directory for output files")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database for run history (empty disables)")
	fs.IntVar(&o.workersReserved, "reserve", 0, "CPUs kept free by the batch worker pool")
	fs.BoolVar(&o.failFast, "fail-fast", false, "abort the batch on the first failing file")
	return o
}

// Apply copies every flag that was set into cfg and validates the result.
func (o *Overrides) Apply(cfg *AnalysisConfig) error {
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "analysis":
			cfg.Analysis = ptr(o.analysis)
		case "mode":
			cfg.Mode = ptr(o.mode)
		case "angle":
			cfg.Convention = ptr(o.convention)
		case "phi-plane":
			cfg.PhiPlane = ptr(o.phiPlane)
		case "policy":
			cfg.Policy = ptr(o.policy)
		case "frames":
			cfg.FrameLimit = ptr(o.frameLimit)
		case "progress":
			cfg.ProgressInterval = ptr(o.progressInterval)
		case "field":
			cfg.MagneticFieldTesla = ptr(o.field)
		case "formats":
			cfg.OutputFormats = splitList(o.formats)
		case "outdir":
			cfg.OutputDir = ptr(o.outputDir)
		case "db":
			cfg.DBPath = ptr(o.dbPath)
		case "reserve":
			cfg.WorkersReserved = ptr(o.workersReserved)
		case "fail-fast":
			cfg.FailFast = ptr(o.failFast)
		}
	})
	return cfg.Validate()
}

func ptr[T any](v T) *T { return &v }

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
