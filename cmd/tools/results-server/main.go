// Command results-server serves the run history of a tileangle database:
// JSON run listings and summaries, per-run chart pages, and the tailsql
// console and backup download under /debug/.
//
// Usage:
//
//	go run ./cmd/tools/results-server -db tileangle.db -listen :8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mu3e-tools/tileangle/internal/api"
	"github.com/mu3e-tools/tileangle/internal/config"
	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/export"
	"github.com/mu3e-tools/tileangle/internal/version"
)

func main() {
	dbPath := flag.String("db", "tileangle.db", "SQLite database path")
	listen := flag.String("listen", "localhost:8080", "Listen address")
	configPath := flag.String("config", "", "analysis config JSON for chart binning")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	log.SetPrefix("[results-server] ")

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

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	mux := api.NewServer(database, export.Options{
		Bins: cfg.GetHistogramBins(),
		Min:  cfg.GetHistogramMin(),
		Max:  cfg.GetHistogramMax(),
	}).ServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}
	go func() {
		log.Printf("serving %s on %s", *dbPath, *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
