package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/floats"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// RateFormats lists the formats available for hit-rate results.
func RateFormats() []string { return []string{"html", "txt", "yoda"} }

// CheckRateFormats reports the first format that has no hit-rate writer.
func CheckRateFormats(formats []string) error {
	for _, f := range formats {
		switch strings.ToLower(f) {
		case "txt", "yoda", "html":
		default:
			return fmt.Errorf("%w for hit rates: %q", ErrUnknownFormat, f)
		}
	}
	return nil
}

// WriteRates writes hr in every requested format:
//
//	txt   <base>_rate (tile hits rate edep per line) and <base>_edep
//	yoda  <base>_rate.yoda with the hits-per-tile and deposit histograms
//	html  <base>_rate.html with a hits-per-tile bar chart
func WriteRates(fsys fsutil.FileSystem, base string, hr *tileangle.HitRates, formats []string, o Options) ([]string, error) {
	if err := CheckRateFormats(formats); err != nil {
		return nil, err
	}
	o = o.withDefaults()

	var written []string
	for _, f := range formats {
		var (
			files []string
			err   error
		)
		switch strings.ToLower(f) {
		case "txt":
			files, err = writeRateText(fsys, base, hr)
		case "yoda":
			files, err = writeRateYODA(fsys, base, hr, o)
		case "html":
			files, err = writeRateHTML(fsys, base, hr)
		}
		written = append(written, files...)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", f, err)
		}
	}
	return written, nil
}

func writeRateText(fsys fsutil.FileSystem, base string, hr *tileangle.HitRates) ([]string, error) {
	rateName, edepName := base+"_rate", base+"_edep"
	err := writeLines(fsys, rateName, len(hr.Tiles), func(i int) string {
		t := hr.Tiles[i]
		return fmt.Sprintf("%d %d %.18e %.18e", t.Tile, t.Hits, t.Rate, t.Edep)
	})
	if err != nil {
		return nil, err
	}
	err = writeLines(fsys, edepName, len(hr.Edep), func(i int) string {
		return fmt.Sprintf("%.18e", hr.Edep[i])
	})
	if err != nil {
		return []string{rateName}, err
	}
	return []string{rateName, edepName}, nil
}

// RateHistograms bins the hits per tile id and the per-hit deposits. The
// deposit range is [0, max deposit], or [0, 1] without deposits.
func RateHistograms(hr *tileangle.HitRates, o Options) (hits, edep *hbook.H1D) {
	o = o.withDefaults()

	lo, hi := 0.0, 1.0
	if len(hr.Tiles) > 0 {
		lo = float64(hr.Tiles[0].Tile) - 0.5
		hi = float64(hr.Tiles[len(hr.Tiles)-1].Tile) + 0.5
	}
	hits = hbook.NewH1D(int(hi-lo), lo, hi)
	hits.Annotation()["name"] = "hits_per_tile"
	for _, t := range hr.Tiles {
		hits.Fill(float64(t.Tile), float64(t.Hits))
	}

	emax := 1.0
	if len(hr.Edep) > 0 {
		if m := floats.Max(hr.Edep); m > 0 {
			emax = m * 1.01
		}
	}
	edep = hbook.NewH1D(o.Bins, 0, emax)
	edep.Annotation()["name"] = "edep"
	for _, e := range hr.Edep {
		edep.Fill(e, 1)
	}
	return hits, edep
}

func writeRateYODA(fsys fsutil.FileSystem, base string, hr *tileangle.HitRates, o Options) ([]string, error) {
	hits, edep := RateHistograms(hr, o)
	var buf bytes.Buffer
	for _, h := range []*hbook.H1D{hits, edep} {
		raw, err := h.MarshalYODA()
		if err != nil {
			return nil, fmt.Errorf("marshal yoda: %w", err)
		}
		buf.Write(raw)
	}
	name := base + "_rate.yoda"
	if err := fsys.WriteFile(name, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}

func writeRateHTML(fsys fsutil.FileSystem, base string, hr *tileangle.HitRates) ([]string, error) {
	xs := make([]string, len(hr.Tiles))
	counts := make([]opts.BarData, len(hr.Tiles))
	for i, t := range hr.Tiles {
		xs[i] = strconv.Itoa(int(t.Tile))
		counts[i] = opts.BarData{Value: t.Hits}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tile hit rates", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "primary hits per tile",
			Subtitle: fmt.Sprintf("tiles=%d hits=%d frames=%d", len(hr.Tiles), hr.Len(), hr.Stats.FramesProcessed),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tile", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "hits"}),
	)
	bar.SetXAxis(xs).AddSeries("hits", counts)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	name := base + "_rate.html"
	if err := fsys.WriteFile(name, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}
