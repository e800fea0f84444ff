package export

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/kilianp07/grocerybot/core/grid"
	"github.com/kilianp07/grocerybot/core/model"
)

// PathPlot is a planning result drawn over its map.
type PathPlot struct {
	Grid      *grid.Grid
	Transform grid.Transform
	Start     model.Point
	Goal      model.Point
	// Raw is the tree path in grid coordinates.
	Raw []model.Point
	// Waypoints are world positions.
	Waypoints []model.Point
}

// PlotPath renders pp as a PNG image of the given size in inches.
func PlotPath(w io.Writer, pp PathPlot, size float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Path %s -> %s", pp.Start, pp.Goal)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	t := pp.Transform
	p.X.Min, p.X.Max = t.MinX, t.MinX+t.Span
	p.Y.Min, p.Y.Max = t.MinY, t.MinY+t.Span

	if pp.Grid != nil && pp.Grid.Count() > 0 {
		obstacles := make(plotter.XYs, 0, pp.Grid.Count())
		dim := pp.Grid.Dim()
		for row := 0; row < dim; row++ {
			for col := 0; col < dim; col++ {
				c := grid.Cell{Col: col, Row: row}
				if pp.Grid.Occupied(c) {
					q := t.ToWorld(float64(col)+0.5, float64(row)+0.5)
					obstacles = append(obstacles, plotter.XY{X: q.X, Y: q.Y})
				}
			}
		}
		sc, err := plotter.NewScatter(obstacles)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Radius = vg.Points(1)
		sc.GlyphStyle.Color = color.Gray{Y: 96}
		p.Add(sc)
		p.Legend.Add("obstacles", sc)
	}

	if len(pp.Raw) > 1 {
		raw := make(plotter.XYs, len(pp.Raw))
		for i, q := range pp.Raw {
			wq := t.ToWorld(q.X, q.Y)
			raw[i] = plotter.XY{X: wq.X, Y: wq.Y}
		}
		l, err := plotter.NewLine(raw)
		if err != nil {
			return err
		}
		l.Width = vg.Points(1)
		l.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
		l.Color = color.RGBA{R: 200, G: 120, A: 255}
		p.Add(l)
		p.Legend.Add("tree path", l)
	}

	route := make(plotter.XYs, 0, len(pp.Waypoints)+1)
	route = append(route, plotter.XY{X: pp.Start.X, Y: pp.Start.Y})
	for _, q := range pp.Waypoints {
		route = append(route, plotter.XY{X: q.X, Y: q.Y})
	}
	l, pts, err := plotter.NewLinePoints(route)
	if err != nil {
		return err
	}
	l.Width = vg.Points(2)
	l.Color = color.RGBA{B: 200, A: 255}
	pts.Color = l.Color
	p.Add(l, pts)
	p.Legend.Add("waypoints", l, pts)
	p.Legend.Top = true

	wt, err := p.WriterTo(vg.Length(size)*vg.Inch, vg.Length(size)*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
