package export

import (
	"bytes"
	"encoding/json"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/model"
)

var route = []model.Point{{X: 1, Y: 2}, {X: 3.5, Y: -4}}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, route))
	want := "index,x,y\n0,1,2\n1,3.5,-4\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, route))
	var got []model.Point
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	if diff := cmp.Diff(route, got); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestPlotPathWritesPNG(t *testing.T) {
	tf := grid.Transform{MinX: -5, MinY: -5, Span: 10, Dim: 20}
	g := grid.New(20)
	for row := 5; row < 15; row++ {
		g.Set(grid.Cell{Col: 10, Row: row}, true)
	}
	pp := PathPlot{
		Grid:      g,
		Transform: tf,
		Start:     model.Point{X: -4, Y: 0},
		Goal:      model.Point{X: 4, Y: 0},
		Raw:       []model.Point{{X: 2, Y: 10}, {X: 9, Y: 17}, {X: 18, Y: 10}},
		Waypoints: []model.Point{{X: 0, Y: 4}, {X: 4, Y: 0}},
	}
	var buf bytes.Buffer
	require.NoError(t, PlotPath(&buf, pp, 3))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
}

func TestRunChart(t *testing.T) {
	samples := []Sample{
		{Step: 1, Pose: model.Pose{X: 0}, Left: 1, Right: 1, Branch: "root/patrol"},
		{Step: 2, Pose: model.Pose{X: 0.1}, Left: 0.5, Right: 1, Branch: "root/patrol"},
	}
	var buf bytes.Buffer
	require.NoError(t, RunChart(&buf, "sim run", samples))
	html := buf.String()
	assert.True(t, strings.Contains(html, "Wheel commands"))
	assert.True(t, strings.Contains(html, "Trajectory"))
	assert.Contains(t, html, "sim run")
}
