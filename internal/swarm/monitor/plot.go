package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/skyfleet-robotics/formation.control/internal/swarm"
)

// SavePlots writes PNG line plots of a run's telemetry series into
// outputDir: separation.png, tracking_error.png, activity.png. Returns
// the paths written.
func SavePlots(outputDir string, recs []swarm.TickRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("no telemetry records to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	type labeled struct {
		label string
		pts   plotter.XYs
	}

	var written []string
	save := func(name, title, yLabel string, series []labeled) error {
		p := plot.New()
		p.Title.Text = title
		p.X.Label.Text = "time (s)"
		p.Y.Label.Text = yLabel
		for idx, s := range series {
			line, err := plotter.NewLine(s.pts)
			if err != nil {
				return fmt.Errorf("build line %q: %w", s.label, err)
			}
			line.Width = vg.Points(1)
			line.Color = plotColor(idx)
			p.Add(line)
			p.Legend.Add(s.label, line)
		}
		file := filepath.Join(outputDir, name)
		if err := p.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
			return fmt.Errorf("save %s: %w", file, err)
		}
		written = append(written, file)
		return nil
	}

	if err := save("separation.png", "Separation", "meters", []labeled{
		{"min agent distance", series(recs, func(r swarm.TickRecord) float64 { return r.MinAgentDistance })},
		{"min obstacle distance", series(recs, func(r swarm.TickRecord) float64 { return r.MinObstacleDistance })},
	}); err != nil {
		return written, err
	}
	if err := save("tracking_error.png", "Formation tracking error", "meters", []labeled{
		{"mean", series(recs, func(r swarm.TickRecord) float64 { return r.MeanFormationError })},
		{"max", series(recs, func(r swarm.TickRecord) float64 { return r.MaxFormationError })},
	}); err != nil {
		return written, err
	}
	if err := save("activity.png", "Safety filter activity", "count", []labeled{
		{"CBF activations", series(recs, func(r swarm.TickRecord) float64 { return float64(r.CBFActivations) })},
		{"infeasible agents", series(recs, func(r swarm.TickRecord) float64 { return float64(r.InfeasibleAgents) })},
	}); err != nil {
		return written, err
	}
	return written, nil
}

// series extracts one plottable series, skipping non-finite samples.
func series(recs []swarm.TickRecord, f func(swarm.TickRecord) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(recs))
	for _, rec := range recs {
		v := f(rec)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: rec.Time, Y: v})
	}
	return pts
}

func plotColor(idx int) color.Color {
	palette := []color.RGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	}
	return palette[idx%len(palette)]
}
