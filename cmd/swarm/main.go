// Command swarm runs a formation-control simulation: a fleet of agents
// converging on and tracking a moving target while the CBF safety filter
// keeps them clear of each other and of configured obstacles.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/skyfleet-robotics/formation.control/internal/config"
	"github.com/skyfleet-robotics/formation.control/internal/swarm"
	"github.com/skyfleet-robotics/formation.control/internal/swarm/monitor"
	"github.com/skyfleet-robotics/formation.control/internal/swarm/store"
)

var (
	configPath    = flag.String("config", "", "Path to simulation config JSON (defaults apply when empty)")
	obstaclesPath = flag.String("obstacles", "", "Path to obstacles JSON file")
	ticks         = flag.Int("ticks", 1500, "Number of ticks to simulate")
	seed          = flag.Int64("seed", 42, "Seed for initial agent placement")
	dbPath        = flag.String("db", "", "Telemetry sqlite database path (in-memory only when empty)")
	reportPath    = flag.String("report", "", "Write an HTML telemetry report to this path")
	plotDir       = flag.String("plot-dir", "", "Write PNG telemetry plots into this directory")
	targetSpeed   = flag.Float64("target-speed", 1.0, "Target speed along +X, m/s")
	spawnSpread   = flag.Float64("spawn-spread", 30.0, "Half-width of the random initial placement box, m")
)

// obstacleSpec is the JSON shape of one obstacle in the -obstacles file.
type obstacleSpec struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	VX     float64 `json:"vx,omitempty"`
	VY     float64 `json:"vy,omitempty"`
	VZ     float64 `json:"vz,omitempty"`
	Radius float64 `json:"radius"`
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("swarm: %v", err)
	}
}

func run() error {
	cfg := config.EmptySimConfig()
	if *configPath != "" {
		loaded, err := config.LoadSimConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	obstacles, err := loadObstacles(*obstaclesPath)
	if err != nil {
		return err
	}

	formation, err := cfg.ToFormation()
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))
	n := cfg.GetAgentCount()
	agents := make([]swarm.AgentState, n)
	for i := range agents {
		agents[i] = swarm.AgentState{
			ID: i,
			Position: r3.Vec{
				X: (rng.Float64()*2 - 1) * *spawnSpread,
				Y: (rng.Float64()*2 - 1) * *spawnSpread,
				Z: 10,
			},
		}
	}

	target := swarm.TargetState{
		Position: r3.Vec{X: 50, Y: 50, Z: 10},
		Velocity: r3.Vec{X: *targetSpeed},
	}

	var recorder swarm.Recorder
	mem := &swarm.MemoryRecorder{}
	recorder = mem

	var st *store.Store
	var runID string
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		runID, err = st.BeginRun(cfgJSON, time.Now())
		if err != nil {
			return err
		}
		recorder = teeRecorder{mem, st.Recorder(runID)}
		log.Printf("recording run %s to %s", runID, *dbPath)
	}

	orch, err := swarm.NewOrchestrator(cfg.ToParams(), formation, agents, obstacles, target, recorder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := orch.Run(ctx, *ticks)
	switch {
	case errors.Is(runErr, swarm.ErrHalted):
		log.Printf("run halted after %d ticks (sustained infeasibility)", orch.TickCount())
	case errors.Is(runErr, context.Canceled):
		log.Printf("run interrupted after %d ticks", orch.TickCount())
	case runErr != nil:
		return runErr
	}

	printSummary(orch, cfg)

	if st != nil {
		if err := st.FinishRun(runID, orch.State(), time.Now()); err != nil {
			return err
		}
	}

	if *reportPath != "" {
		f, err := os.Create(*reportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := monitor.WriteReport(f, runLabel(runID), mem.Records); err != nil {
			return err
		}
		log.Printf("wrote report to %s", *reportPath)
	}
	if *plotDir != "" {
		files, err := monitor.SavePlots(*plotDir, mem.Records)
		if err != nil {
			return err
		}
		log.Printf("wrote %d plots to %s", len(files), *plotDir)
	}
	return nil
}

func printSummary(orch *swarm.Orchestrator, cfg *config.SimConfig) {
	stats := orch.Stats()
	log.Printf("final state: %s after %d ticks", orch.State(), orch.TickCount())
	log.Printf("QP solves: %d (%d infeasible), mean %v, max %v",
		stats.Solves, stats.Infeasible, stats.MeanSolveTime(), stats.MaxSolveTime())

	agents := orch.Agents()
	positions := make([]r3.Vec, len(agents))
	for i, a := range agents {
		positions[i] = a.Position
	}
	// Final safety audit over the fleet's resting configuration.
	safe, violations := swarm.CheckSafety(positions, nil, cfg.GetSafetyDistance(), cfg.GetObstacleMargin())
	if safe {
		log.Printf("final configuration safe: min pair distance %.3fm", swarm.MinPairDistance(positions))
	} else {
		for _, v := range violations {
			log.Printf("safety violation: %s", v)
		}
	}
}

func loadObstacles(path string) ([]swarm.Obstacle, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read obstacles file: %w", err)
	}
	var specs []obstacleSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse obstacles JSON: %w", err)
	}
	obstacles := make([]swarm.Obstacle, len(specs))
	for i, s := range specs {
		if s.Radius <= 0 {
			return nil, fmt.Errorf("obstacle %d: radius must be positive, got %v", i, s.Radius)
		}
		obstacles[i] = swarm.Obstacle{
			ID:       i,
			Position: r3.Vec{X: s.X, Y: s.Y, Z: s.Z},
			Velocity: r3.Vec{X: s.VX, Y: s.VY, Z: s.VZ},
			Radius:   s.Radius,
		}
	}
	return obstacles, nil
}

func runLabel(runID string) string {
	if runID == "" {
		return "local"
	}
	return runID
}

// teeRecorder fans telemetry out to multiple sinks; the first error wins.
type teeRecorder []swarm.Recorder

func (t teeRecorder) RecordTick(rec swarm.TickRecord) error {
	for _, r := range t {
		if err := r.RecordTick(rec); err != nil {
			return err
		}
	}
	return nil
}
