// Command plot-run renders telemetry charts for a run stored in the
// telemetry database: an HTML report and optional PNG plots.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/skyfleet-robotics/formation.control/internal/swarm/monitor"
	"github.com/skyfleet-robotics/formation.control/internal/swarm/store"
)

var (
	dbPath  = flag.String("db", "swarm.db", "Telemetry sqlite database path")
	runID   = flag.String("run", "", "Run id to plot (latest when empty)")
	outPath = flag.String("out", "report.html", "Output HTML report path")
	plotDir = flag.String("plot-dir", "", "Also write PNG plots into this directory")
	list    = flag.Bool("list", false, "List stored runs and exit")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("plot-run: %v", err)
	}
}

func run() error {
	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if *list {
		runs, err := st.Runs()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %-8s  %d ticks\n",
				r.ID, r.Started.Format("2006-01-02 15:04:05"), r.FinalState, r.Ticks)
		}
		return nil
	}

	id := *runID
	if id == "" {
		runs, err := st.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs stored in %s", *dbPath)
		}
		id = runs[0].ID
		log.Printf("plotting latest run %s", id)
	}

	recs, err := st.TicksForRun(id)
	if err != nil {
		return err
	}

	f, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := monitor.WriteReport(f, id, recs); err != nil {
		return err
	}
	log.Printf("wrote report to %s", *outPath)

	if *plotDir != "" {
		files, err := monitor.SavePlots(*plotDir, recs)
		if err != nil {
			return err
		}
		log.Printf("wrote %d plots to %s", len(files), *plotDir)
	}
	return nil
}
