package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mu3e-tools/tileangle/internal/fsutil"
	"github.com/mu3e-tools/tileangle/internal/rootio"
	"github.com/mu3e-tools/tileangle/internal/tileangle"
)

// WriteROOT writes the samples as a flat tree to <base>.root. The ROOT
// writer needs a real file, so the tree is staged in a temporary directory
// and copied into fsys.
func WriteROOT(fsys fsutil.FileSystem, base string, rs *tileangle.ResultSet) ([]string, error) {
	tmp, err := os.MkdirTemp("", "tileangle-root-*")
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	staged := filepath.Join(tmp, "results.root")
	if err := rootio.WriteResults(staged, rs); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(staged)
	if err != nil {
		return nil, fmt.Errorf("read staged tree: %w", err)
	}

	name := base + ".root"
	if err := fsys.WriteFile(name, data, 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return []string{name}, nil
}
