package export

import (
	"fmt"
	"image/color"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// WritePlots renders the angle histogram to <base>_angle.<format> and the
// angle-vs-z scatter to <base>_angle_z.<format>.
func WritePlots(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet, format string, opts Options) ([]string, error) {
	opts = opts.withDefaults()

	hist := hplot.New()
	hist.Title.Text = fmt.Sprintf("%s (%s, %s)", opts.Title, rs.Mode, rs.Convention)
	hist.X.Label.Text = "angle [rad]"
	hist.Y.Label.Text = "entries"
	h := hplot.NewH1D(AngleHistogram(rs, opts))
	h.Infos.Style = hplot.HInfoSummary
	hist.Add(h, hplot.NewGrid())

	scatter := plot.New()
	scatter.Title.Text = "angle vs tile z"
	scatter.X.Label.Text = "z [mm]"
	scatter.Y.Label.Text = "angle [rad]"
	pts := make(plotter.XYs, rs.Len())
	for i := range pts {
		pts[i].X, pts[i].Y = rs.Z[i], rs.Angle[i]
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(1.5)
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scatter.Add(s)

	var written []string
	for _, out := range []struct {
		name string
		p    *plot.Plot
	}{
		{base + "_angle." + format, hist.Plot},
		{base + "_angle_z." + format, scatter},
	} {
		if err := savePlot(fsys, out.name, out.p, format); err != nil {
			return written, err
		}
		written = append(written, out.name)
	}
	return written, nil
}

func savePlot(fsys fsutil.FileSystem, name string, p *plot.Plot, format string) error {
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	f, err := fsys.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
