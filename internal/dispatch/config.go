package dispatch

import (
	"fmt"

	"github.com/mu3e-tools/tileangle/internal/config"
	"github.com/mu3e-tools/tileangle/internal/export"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// JobFromConfig fills the analysis, export and batch settings of a Job from
// cfg. Inputs, FS and Runs are left to the caller.
func JobFromConfig(cfg *config.AnalysisConfig) (Job, error) {
	if err := cfg.Validate(); err != nil {
		return Job{}, err
	}
	policy, err := tileangle.ParsePolicy(cfg.GetPolicy())
	if err != nil {
		return Job{}, err
	}
	plane, err := geometry.ParsePhiPlane(cfg.GetPhiPlane())
	if err != nil {
		return Job{}, err
	}
	if _, err := tileangle.ParseMode(cfg.GetMode()); err != nil {
		return Job{}, fmt.Errorf("config: %w", err)
	}

	return Job{
		Analysis:   cfg.GetAnalysis(),
		OutputDir:  cfg.GetOutputDir(),
		Mode:       cfg.GetMode(),
		Convention: cfg.GetConvention(),
		FrameLimit: cfg.GetFrameLimit(),
		Session: tileangle.Options{
			Policy:           policy,
			PhiPlane:         plane,
			FieldTesla:       cfg.GetMagneticFieldTesla(),
			ProgressInterval: cfg.GetProgressInterval(),
		},
		Formats: cfg.GetOutputFormats(),
		Export: export.Options{
			Bins: cfg.GetHistogramBins(),
			Min:  cfg.GetHistogramMin(),
			Max:  cfg.GetHistogramMax(),
		},
		WorkersReserved: cfg.GetWorkersReserved(),
		FailFast:        cfg.GetFailFast(),
	}, nil
}
