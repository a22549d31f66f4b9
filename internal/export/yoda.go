package export

import (
	"bytes"
	"fmt"

	"go-hep.org/x/hep/hbook"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// WriteYODA writes the angle histogram and the angle-vs-z histogram to
// <base>.yoda.
func WriteYODA(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	h1 := AngleHistogram(rs, opts)

	zlo, zhi := zRange(rs)
	h2 := hbook.NewH2D(opts.Bins, opts.Min, opts.Max, opts.Bins, zlo, zhi)
	h2.Annotation()["name"] = "angle_vs_z"
	for i := 0; i < rs.Len(); i++ {
		h2.Fill(rs.Angle[i], rs.Z[i], 1)
	}

	var buf bytes.Buffer
	for _, h := range []interface{ MarshalYODA() ([]byte, error) }{h1, h2} {
		raw, err := h.MarshalYODA()
		if err != nil {
			return nil, fmt.Errorf("marshal yoda: %w", err)
		}
		buf.Write(raw)
	}

	name := base + ".yoda"
	if err := fsys.WriteFile(name, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}
