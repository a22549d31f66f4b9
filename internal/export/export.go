// Package export writes analysis results in the formats consumed downstream:
// plain text columns, YODA histograms, plots, HTML charts, a protobuf wire
// stream and ROOT trees.
package export

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go-hep.org/x/hep/hbook"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// ErrUnknownFormat is returned for an output format with no writer.
var ErrUnknownFormat = errors.New("unknown output format")

// Options control binning and labels shared by the writers.
type Options struct {
	Bins  int
	Min   float64
	Max   float64
	Title string
}

// DefaultOptions bins angles over [0, π] in 100 bins.
func DefaultOptions() Options {
	return Options{Bins: 100, Min: 0, Max: math.Pi, Title: "tile hit angle"}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Bins <= 0 {
		o.Bins = d.Bins
	}
	if o.Min >= o.Max {
		o.Min, o.Max = d.Min, d.Max
	}
	if o.Title == "" {
		o.Title = d.Title
	}
	return o
}

// Writer writes one result set next to base and returns the files written.
type Writer interface {
	Write(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error)

// Write calls f.
func (f WriterFunc) Write(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
	return f(fsys, base, rs)
}

// ForFormat returns the writer for a format name.
func ForFormat(format string, opts Options) (Writer, error) {
	opts = opts.withDefaults()
	switch f := strings.ToLower(format); f {
	case "txt":
		return WriterFunc(WriteText), nil
	case "yoda":
		return WriterFunc(func(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
			return WriteYODA(fsys, base, rs, opts)
		}), nil
	case "png", "pdf", "svg":
		return WriterFunc(func(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
			return WritePlots(fsys, base, rs, f, opts)
		}), nil
	case "html":
		return WriterFunc(func(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
			return WriteHTML(fsys, base, rs, opts)
		}), nil
	case "pb":
		return WriterFunc(WritePB), nil
	case "root":
		return WriterFunc(WriteROOT), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Formats lists the supported format names.
func Formats() []string {
	f := []string{"txt", "yoda", "png", "pdf", "svg", "html", "pb", "root"}
	sort.Strings(f)
	return f
}

// WriteAll writes rs in every requested format. All formats are resolved
// before anything is written.
func WriteAll(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet, formats []string, opts Options) ([]string, error) {
	writers := make([]Writer, 0, len(formats))
	for _, f := range formats {
		w, err := ForFormat(f, opts)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	var written []string
	for i, w := range writers {
		files, err := w.Write(fsys, base, rs)
		written = append(written, files...)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", formats[i], err)
		}
	}
	return written, nil
}

// AngleHistogram bins the angles of rs.
func AngleHistogram(rs *tileangle.ResultSet, opts Options) *hbook.H1D {
	opts = opts.withDefaults()
	h := hbook.NewH1D(opts.Bins, opts.Min, opts.Max)
	h.Annotation()["name"] = "angle"
	h.Annotation()["title"] = fmt.Sprintf("%s (%s, %s)", opts.Title, rs.Mode, rs.Convention)
	for _, a := range rs.Angle {
		h.Fill(a, 1)
	}
	return h
}

// zRange returns the z extent of rs, padded so that a single value or an
// empty set still yields a valid binning.
func zRange(rs *tileangle.ResultSet) (lo, hi float64) {
	if rs.Len() == 0 {
		return -1, 1
	}
	lo, hi = rs.Z[0], rs.Z[0]
	for _, z := range rs.Z[1:] {
		lo, hi = math.Min(lo, z), math.Max(hi, z)
	}
	pad := 0.01 * (hi - lo)
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}
