// Package report renders evaluation plots of a trained model.
package report

import (
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/propval/metrics"
	"github.com/YuminosukeSato/propval/pkg/errors"
)

// Default image size.
const (
	DefaultWidth  = 6 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// PredictionScatter plots true against predicted prices with the identity
// line y = x. report, when not nil, is shown in the title.
func PredictionScatter(yTrue, yPred []float64, report metrics.Report) (*plot.Plot, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("PredictionScatter", errors.ErrEmptyData.Error())
	}
	if len(yPred) != len(yTrue) {
		return nil, errors.NewDimensionError("PredictionScatter", len(yTrue), len(yPred), 0)
	}

	p := plot.New()
	p.Title.Text = "Predicted vs actual price"
	if report != nil {
		p.Title.Text += "\n" + summary(report)
	}
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"
	p.Add(plotter.NewGrid())

	lo, hi := math.Inf(1), math.Inf(-1)
	pts := make(plotter.XYs, len(yTrue))
	for i := range yTrue {
		pts[i] = plotter.XY{X: yTrue[i], Y: yPred[i]}
		lo = math.Min(lo, math.Min(yTrue[i], yPred[i]))
		hi = math.Max(hi, math.Max(yTrue[i], yPred[i]))
	}

	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build scatter")
	}
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	s.GlyphStyle.Radius = vg.Points(2)
	s.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 160}

	// 理想線 y = x
	l, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build identity line")
	}
	l.LineStyle.Width = vg.Points(1)
	l.LineStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(s, l)
	p.Legend.Add("test rows", s)
	p.Legend.Add("y = x", l)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WritePNG renders p as a PNG of the default size.
func WritePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, "png")
	if err != nil {
		return errors.Wrap(err, "failed to render plot")
	}
	_, err = wt.WriteTo(w)
	return errors.WithStack(err)
}

func summary(r metrics.Report) string {
	return "MAE " + format(r[metrics.MAEName]) +
		"  MAPE " + format(r[metrics.MAPEName]) +
		"  RMSE " + format(r[metrics.RMSEName])
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}
