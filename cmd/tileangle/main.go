// Command tileangle reconstructs tile hit angles from one simulation file
// and writes them in the configured output formats.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mu3e-tools/tileangle/internal/config"
	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/dispatch"
	"github.com/mu3e-tools/tileangle/internal/security"
	"github.com/mu3e-tools/tileangle/internal/version"
)

var (
	configPath  = flag.String("config", "", "analysis config JSON (defaults apply when empty)")
	input       = flag.String("in", "", "input ROOT file")
	outName     = flag.String("out", "", "output base name (default: input file name without extension)")
	geomName    = flag.String("geometry", "", "use the geometry cached under this name instead of the file's alignment trees")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	log.SetPrefix("[tileangle] ")
	overrides := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *input == "" {
		log.Fatalf("-in is required")
	}

	cfg := config.EmptyAnalysisConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if err := overrides.Apply(cfg); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}
	job, err := dispatch.JobFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		if database, err = db.Open(path); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		job.Runs = database.Runs()
	}
	if *geomName != "" {
		if database == nil {
			log.Fatalf("-geometry requires -db")
		}
		job.Open = dispatch.CachedGeometryOpener(database.Geometries(), *geomName)
	}

	name := *outName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	}
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}
	base, err := security.OutputBase(job.OutputDir, name)
	if err != nil {
		log.Fatalf("invalid output name: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := dispatch.ProcessFile(ctx, job, 1, *input, base)
	if res.Err != nil {
		log.Fatalf("analysis failed: %v", res.Err)
	}
	for _, f := range res.Files {
		log.Printf("wrote %s", f)
	}
	if res.RunID != "" {
		log.Printf("recorded run %s", res.RunID)
	}
	unit := "samples"
	if job.Analysis == dispatch.AnalysisRate {
		unit = "tiles"
	}
	log.Printf("%d %s in %s", res.Samples, unit, res.Duration)
}
