package export

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// RenderHTML renders the angle histogram and the angle-vs-z scatter as one
// echarts page.
func RenderHTML(rs *tileangle.ResultSet, o Options) ([]byte, error) {
	o = o.withDefaults()
	subtitle := fmt.Sprintf("mode=%s angle=%s samples=%d", rs.Mode, rs.Convention, rs.Len())

	h := AngleHistogram(rs, o)
	bins := h.Binning.Bins
	xs := make([]string, len(bins))
	counts := make([]opts.BarData, len(bins))
	for i, b := range bins {
		xs[i] = fmt.Sprintf("%.3f", b.XMid())
		counts[i] = opts.BarData{Value: b.SumW()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tile hit angles", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: o.Title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "angle [rad]", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "entries"}),
	)
	bar.SetXAxis(xs).AddSeries("angle", counts)

	zlo, zhi := zRange(rs)
	points := make([]opts.ScatterData, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		points = append(points, opts.ScatterData{Value: []interface{}{rs.Z[i], rs.Angle[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tile hit angles", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "angle vs tile z", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "z [mm]", Min: zlo, Max: zhi, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "angle [rad]", Min: o.Min, Max: o.Max}),
	)
	scatter.AddSeries("samples", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	page := components.NewPage()
	page.AddCharts(bar, scatter)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML writes the chart page to <base>.html.
func WriteHTML(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet, o Options) ([]string, error) {
	page, err := RenderHTML(rs, o)
	if err != nil {
		return nil, err
	}
	name := base + ".html"
	if err := fsys.WriteFile(name, page, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}
