package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// Supported output format names.
var knownFormats = map[string]bool{
	"txt": true, "yoda": true, "png": true, "pdf": true, "svg": true,
	"html": true, "pb": true, "root": true,
}

// AnalysisConfig holds the parameters of a tile-angle analysis. Every field is
// optional; the Get* accessors supply the default for a missing value, so a
// partial file only overrides what it names.
type AnalysisConfig struct {
	Analysis *string `json:"analysis,omitempty"` // "angle" or "rate"

	// Matching
	Mode       *string `json:"mode,omitempty"`       // "nearest" or "helix"
	Convention *string `json:"convention,omitempty"` // "norm", "theta" or "phi"
	PhiPlane   *string `json:"phi_plane,omitempty"`  // "3d" or "xy"
	Policy     *string `json:"policy,omitempty"`     // "strict" or "lenient"

	FrameLimit         *int     `json:"frame_limit,omitempty"` // 0 = all frames
	ProgressInterval   *int     `json:"progress_interval,omitempty"`
	MagneticFieldTesla *float64 `json:"magnetic_field_tesla,omitempty"`

	// Binned output
	Histogram *HistogramConfig `json:"histogram,omitempty"`

	// Output
	OutputFormats []string `json:"output_formats,omitempty"`
	OutputDir     *string  `json:"output_dir,omitempty"`
	DBPath        *string  `json:"db_path,omitempty"`

	// Batch
	WorkersReserved *int  `json:"workers_reserved,omitempty"`
	FailFast        *bool `json:"fail_fast,omitempty"`
}

// HistogramConfig is the binning of the angle histogram.
type HistogramConfig struct {
	Bins *int     `json:"bins,omitempty"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/results-server/
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Names are checked
// for shape only; the analysis packages parse them into their enums.
func (c *AnalysisConfig) Validate() error {
	if c.Analysis != nil && !oneOf(*c.Analysis, "angle", "rate") {
		return fmt.Errorf("analysis must be angle or rate, got %q", *c.Analysis)
	}
	if c.Mode != nil && !oneOf(*c.Mode, "nearest", "tid", "helix") {
		return fmt.Errorf("mode must be nearest or helix, got %q", *c.Mode)
	}
	if c.Convention != nil && !oneOf(*c.Convention, "norm", "theta", "phi") {
		return fmt.Errorf("convention must be norm, theta or phi, got %q", *c.Convention)
	}
	if c.PhiPlane != nil && !oneOf(*c.PhiPlane, "", "3d", "xy", "2d") {
		return fmt.Errorf("phi_plane must be 3d or xy, got %q", *c.PhiPlane)
	}
	if c.Policy != nil && !oneOf(*c.Policy, "", "strict", "lenient") {
		return fmt.Errorf("policy must be strict or lenient, got %q", *c.Policy)
	}
	if c.FrameLimit != nil && *c.FrameLimit < 0 {
		return fmt.Errorf("frame_limit must be non-negative, got %d", *c.FrameLimit)
	}
	if c.ProgressInterval != nil && *c.ProgressInterval <= 0 {
		return fmt.Errorf("progress_interval must be positive, got %d", *c.ProgressInterval)
	}
	if c.MagneticFieldTesla != nil && *c.MagneticFieldTesla == 0 {
		return fmt.Errorf("magnetic_field_tesla must be non-zero")
	}
	if c.WorkersReserved != nil && *c.WorkersReserved < 0 {
		return fmt.Errorf("workers_reserved must be non-negative, got %d", *c.WorkersReserved)
	}
	if h := c.Histogram; h != nil {
		if h.Bins != nil && *h.Bins <= 0 {
			return fmt.Errorf("histogram.bins must be positive, got %d", *h.Bins)
		}
		if c.GetHistogramMin() >= c.GetHistogramMax() {
			return fmt.Errorf("histogram.min (%g) must be below histogram.max (%g)", c.GetHistogramMin(), c.GetHistogramMax())
		}
	}
	for _, f := range c.OutputFormats {
		if !knownFormats[strings.ToLower(f)] {
			return fmt.Errorf("unknown output format %q", f)
		}
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// GetAnalysis returns the analysis value or the default (angle).
func (c *AnalysisConfig) GetAnalysis() string {
	if c.Analysis == nil {
		return "angle"
	}
	return strings.ToLower(strings.TrimSpace(*c.Analysis))
}

// GetMode returns the mode value or the default.
func (c *AnalysisConfig) GetMode() string {
	if c.Mode == nil {
		return "nearest"
	}
	return *c.Mode
}

// GetConvention returns the convention value or the default.
func (c *AnalysisConfig) GetConvention() string {
	if c.Convention == nil {
		return "norm"
	}
	return *c.Convention
}

// GetPhiPlane returns the phi_plane value or the default.
func (c *AnalysisConfig) GetPhiPlane() string {
	if c.PhiPlane == nil || *c.PhiPlane == "" {
		return "3d"
	}
	return *c.PhiPlane
}

// GetPolicy returns the policy value or the default.
func (c *AnalysisConfig) GetPolicy() string {
	if c.Policy == nil || *c.Policy == "" {
		return "strict"
	}
	return *c.Policy
}

// GetFrameLimit returns the frame_limit value or the default (all frames).
func (c *AnalysisConfig) GetFrameLimit() int {
	if c.FrameLimit == nil {
		return 0
	}
	return *c.FrameLimit
}

// GetProgressInterval returns the progress_interval value or the default.
func (c *AnalysisConfig) GetProgressInterval() int {
	if c.ProgressInterval == nil {
		return 1000
	}
	return *c.ProgressInterval
}

// GetMagneticFieldTesla returns the magnetic_field_tesla value or the default.
func (c *AnalysisConfig) GetMagneticFieldTesla() float64 {
	if c.MagneticFieldTesla == nil {
		return 1.0
	}
	return *c.MagneticFieldTesla
}

// GetHistogramBins returns the histogram bin count or the default.
func (c *AnalysisConfig) GetHistogramBins() int {
	if c.Histogram == nil || c.Histogram.Bins == nil {
		return 100
	}
	return *c.Histogram.Bins
}

// GetHistogramMin returns the lower histogram edge or the default (0 rad).
func (c *AnalysisConfig) GetHistogramMin() float64 {
	if c.Histogram == nil || c.Histogram.Min == nil {
		return 0
	}
	return *c.Histogram.Min
}

// GetHistogramMax returns the upper histogram edge or the default (π rad).
func (c *AnalysisConfig) GetHistogramMax() float64 {
	if c.Histogram == nil || c.Histogram.Max == nil {
		return 3.141592653589793
	}
	return *c.Histogram.Max
}

// GetOutputFormats returns the output formats or the default (txt).
func (c *AnalysisConfig) GetOutputFormats() []string {
	if len(c.OutputFormats) == 0 {
		return []string{"txt"}
	}
	out := make([]string, len(c.OutputFormats))
	for i, f := range c.OutputFormats {
		out[i] = strings.ToLower(f)
	}
	return out
}

// GetOutputDir returns the output_dir value or the default.
func (c *AnalysisConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "."
	}
	return *c.OutputDir
}

// GetDBPath returns the db_path value. Empty disables run persistence.
func (c *AnalysisConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetWorkersReserved returns the workers_reserved value or the default.
func (c *AnalysisConfig) GetWorkersReserved() int {
	if c.WorkersReserved == nil {
		return 2
	}
	return *c.WorkersReserved
}

// GetFailFast returns the fail_fast value or the default.
func (c *AnalysisConfig) GetFailFast() bool {
	if c.FailFast == nil {
		return false
	}
	return *c.FailFast
}
