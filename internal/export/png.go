package export

import (
	"image/color"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/citypath/internal/model"
)

// WritePNG renders scored hexes as a lon/lat scatter, shaded from green
// (lowest score) to red (highest).
func WritePNG(path, title string, recs []model.ScoreRecord) error {
	if len(recs) == 0 {
		return eris.New("export: no records to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	pts := make(plotter.XYs, len(recs))
	lo, hi := recs[0].Score, recs[0].Score
	for i, r := range recs {
		pts[i].X = r.Lon
		pts[i].Y = r.Lat
		lo = min(lo, r.Score)
		hi = max(hi, r.Score)
	}

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return eris.Wrap(err, "export: scatter")
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{
			Color:  ramp(recs[i].Score, lo, hi),
			Radius: vg.Points(3),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(s, plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "export: save plot %s", path)
	}
	return nil
}

// ramp maps v in [lo, hi] onto a green to red gradient. A flat range maps
// to the midpoint.
func ramp(v, lo, hi float64) color.RGBA {
	t := 0.5
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	return color.RGBA{R: uint8(255 * t), G: uint8(255 * (1 - t)), B: 60, A: 255}
}
