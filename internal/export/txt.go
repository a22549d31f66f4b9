package export

import (
	"bufio"
	"fmt"
	"strconv"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// WriteText writes one value per line to <base>_z, <base>_angle and
// <base>_id. Floats use %.18e so the files match numpy's savetxt output.
func WriteText(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
	columns := []struct {
		suffix string
		n      int
		format func(i int) string
	}{
		{"_z", len(rs.Z), func(i int) string { return fmt.Sprintf("%.18e", rs.Z[i]) }},
		{"_angle", len(rs.Angle), func(i int) string { return fmt.Sprintf("%.18e", rs.Angle[i]) }},
		{"_id", len(rs.TileID), func(i int) string { return strconv.Itoa(int(rs.TileID[i])) }},
	}

	var written []string
	for _, col := range columns {
		name := base + col.suffix
		if err := writeLines(fsys, name, col.n, col.format); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func writeLines(fsys fsutil.FileSystem, name string, n int, line func(i int) string) error {
	f, err := fsys.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		w.WriteString(line(i))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
