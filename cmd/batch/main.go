// Command batch runs the tile angle analysis over every file matching a glob
// pattern, one worker per file, writing out1, out2, ... in input order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mu3e-tools/tileangle/internal/config"
	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/dispatch"
	"github.com/mu3e-tools/tileangle/internal/version"
)

var (
	configPath  = flag.String("config", "", "analysis config JSON (defaults apply when empty)")
	pattern     = flag.String("pattern", "", "glob pattern of input ROOT files, e.g. 'sim/*.root'")
	prefix      = flag.String("prefix", dispatch.DefaultOutputPrefix, "output name prefix")
	geomName    = flag.String("geometry", "", "use the geometry cached under this name instead of each file's alignment trees")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	log.SetPrefix("[batch] ")
	overrides := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
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
	job.Pattern = *pattern
	job.Inputs = flag.Args()
	job.OutputPrefix = *prefix

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := dispatch.Run(ctx, job)
	if report == nil {
		log.Fatalf("batch failed: %v", runErr)
	}
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			log.Printf("%s: FAILED: %v", res.Input, res.Err)
		default:
			log.Printf("%s -> %s: %d samples (%d of %d primary tile hits matched)",
				res.Input, res.Base, res.Samples, res.Stats.Matched, res.Stats.HIDAccepted)
		}
	}
	failed := len(report.Failed())
	log.Printf("%d of %d files succeeded with %d workers", len(report.Results)-failed, len(report.Results), report.Workers)
	if runErr != nil {
		log.Fatalf("batch aborted: %v", runErr)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
