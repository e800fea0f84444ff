package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/grocerybot/core/model"
)

// Sample is one step of a simulation run.
type Sample struct {
	Step   int64
	Pose   model.Pose
	Left   float64
	Right  float64
	Branch string
}

// RunChart renders the wheel commands and the trajectory of a run as an
// HTML page.
func RunChart(w io.Writer, title string, samples []Sample) error {
	steps := make([]string, len(samples))
	left := make([]opts.LineData, len(samples))
	right := make([]opts.LineData, len(samples))
	trail := make([]opts.ScatterData, len(samples))
	for i, s := range samples {
		steps[i] = strconv.FormatInt(s.Step, 10)
		left[i] = opts.LineData{Value: s.Left}
		right[i] = opts.LineData{Value: s.Right}
		trail[i] = opts.ScatterData{Value: []interface{}{s.Pose.X, s.Pose.Y, s.Branch}}
	}

	wheels := charts.NewLine()
	wheels.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Wheel commands", Subtitle: fmt.Sprintf("steps=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "rad/s"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	wheels.SetXAxis(steps).
		AddSeries("left", left).
		AddSeries("right", right).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	path := charts.NewScatter()
	path.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", Type: "value"}),
	)
	path.AddSeries("pose", trail, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(wheels, path)
	return page.Render(w)
}
