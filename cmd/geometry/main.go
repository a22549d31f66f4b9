// Command geometry caches detector alignment tables in the run database and
// prints what is cached.
//
//	geometry -db runs.db -save sim/run1.root -name mu3e-2024
//	geometry -db runs.db -list
//	geometry -db runs.db -show mu3e-2024
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mu3e-tools/tileangle/internal/db"
	"github.com/mu3e-tools/tileangle/internal/rootio"
	"github.com/mu3e-tools/tileangle/internal/version"
)

var (
	dbPath      = flag.String("db", "tileangle.db", "SQLite database path")
	saveFrom    = flag.String("save", "", "ROOT file whose alignment trees are cached")
	name        = flag.String("name", "", "geometry name (default: the ROOT file path)")
	list        = flag.Bool("list", false, "list cached geometries")
	show        = flag.String("show", "", "print tile and module counts of a cached geometry")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	log.SetPrefix("[geometry] ")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *saveFrom == "" && !*list && *show == "" {
		flag.Usage()
		os.Exit(2)
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()
	store := database.Geometries()

	if *saveFrom != "" {
		geom, err := rootio.OpenGeometry(*saveFrom)
		if err != nil {
			log.Fatalf("failed to read geometry: %v", err)
		}
		key := *name
		if key == "" {
			key = *saveFrom
		}
		if err := store.Save(key, *saveFrom, geom); err != nil {
			log.Fatalf("failed to save geometry: %v", err)
		}
		fmt.Printf("saved %q: %d tiles, %d modules\n", key, geom.TileCount(), geom.ModuleCount())
	}

	if *show != "" {
		geom, err := store.Load(*show)
		if err != nil {
			log.Fatalf("failed to load geometry: %v", err)
		}
		fmt.Printf("%s: %d tiles, %d modules\n", *show, geom.TileCount(), geom.ModuleCount())
	}

	if *list {
		infos, err := store.List()
		if err != nil {
			log.Fatalf("failed to list geometries: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTILES\tMODULES\tSOURCE\tCREATED")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", info.Name, info.TileCount, info.ModuleCount,
				info.SourcePath, time.Unix(0, info.CreatedAt).Format(time.RFC3339))
		}
		w.Flush()
	}
}
