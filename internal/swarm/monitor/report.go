// Package monitor turns stored run telemetry into charts: an HTML report
// via go-echarts for interactive inspection and PNG plots via gonum/plot
// for headless pipelines.
package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/skyfleet-robotics/formation.control/internal/swarm"
)

// WriteReport renders an HTML report for one run: separation distances,
// formation tracking error, and safety-filter activity over time.
func WriteReport(w io.Writer, runID string, recs []swarm.TickRecord) error {
	if len(recs) == 0 {
		return fmt.Errorf("no telemetry records for run %s", runID)
	}

	times := make([]string, len(recs))
	minAgent := make([]opts.LineData, len(recs))
	minObstacle := make([]opts.LineData, len(recs))
	meanErr := make([]opts.LineData, len(recs))
	maxErr := make([]opts.LineData, len(recs))
	activations := make([]opts.LineData, len(recs))
	infeasible := make([]opts.LineData, len(recs))

	for i, rec := range recs {
		times[i] = fmt.Sprintf("%.2f", rec.Time)
		minAgent[i] = opts.LineData{Value: finiteOrNil(rec.MinAgentDistance)}
		minObstacle[i] = opts.LineData{Value: finiteOrNil(rec.MinObstacleDistance)}
		meanErr[i] = opts.LineData{Value: rec.MeanFormationError}
		maxErr[i] = opts.LineData{Value: rec.MaxFormationError}
		activations[i] = opts.LineData{Value: rec.CBFActivations}
		infeasible[i] = opts.LineData{Value: rec.InfeasibleAgents}
	}

	separation := newLine("Separation (run "+runID+")", "meters")
	separation.SetXAxis(times).
		AddSeries("min agent distance", minAgent).
		AddSeries("min obstacle distance", minObstacle)

	tracking := newLine("Formation tracking error", "meters")
	tracking.SetXAxis(times).
		AddSeries("mean", meanErr).
		AddSeries("max", maxErr)

	activity := newLine("Safety filter activity", "count")
	activity.SetXAxis(times).
		AddSeries("CBF activations", activations).
		AddSeries("infeasible agents", infeasible)

	page := components.NewPage()
	page.AddCharts(separation, tracking, activity)
	return page.Render(w)
}

func newLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
		charts.WithInitializationOpts(opts.Initialization{Width: "1100px", Height: "380px"}),
	)
	return line
}

// finiteOrNil keeps ±Inf sentinels (single-agent fleet, no obstacles)
// out of the chart payload.
func finiteOrNil(v float64) interface{} {
	if v != v || v > 1e300 || v < -1e300 {
		return nil
	}
	return v
}
