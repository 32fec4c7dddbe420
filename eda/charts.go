package eda

import (
	"image/color"
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"obesityboard/dataset"
	"obesityboard/ml"
)

var (
	chartWidth  = 6 * vg.Inch
	chartHeight = 4 * vg.Inch
	barColor    = color.RGBA{R: 0x4c, G: 0x72, B: 0xb0, A: 0xff}
)

// WriteHistogramSVG renders the distribution of one numeric feature.
func WriteHistogramSVG(w io.Writer, records []dataset.Record, feature string, bins int) error {
	values, err := FeatureValues(records, feature)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.Wrapf(ml.ErrDegenerateInput, "no values for %s", feature)
	}
	if bins <= 0 {
		bins = DefaultBins
	}
	p := plot.New()
	p.Title.Text = feature + " distribution"
	p.X.Label.Text = feature
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return errors.Wrap(err, "build histogram")
	}
	h.FillColor = barColor
	p.Add(h)
	return writeSVG(w, p)
}

// WriteBMIBoxPlotSVG renders one box per gender/label group.
func WriteBMIBoxPlotSVG(w io.Writer, records []dataset.Record) error {
	summaries, err := BMIBoxPlots(records)
	if err != nil {
		return err
	}
	groups := make(map[[2]string][]float64)
	for _, r := range records {
		k := [2]string{r.Gender, r.Label}
		groups[k] = append(groups[k], r.BMI)
	}

	p := plot.New()
	p.Title.Text = "BMI by gender and label"
	p.Y.Label.Text = "BMI"
	names := make([]string, len(summaries))
	for i, s := range summaries {
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(groups[[2]string{s.Gender, s.Label}]))
		if err != nil {
			return errors.Wrap(err, "build box plot")
		}
		box.FillColor = barColor
		p.Add(box)
		names[i] = s.Gender + " / " + s.Label
	}
	p.NominalX(names...)
	return writeSVG(w, p)
}

// WriteImportanceSVG renders feature importances as a bar chart, in the
// order given.
func WriteImportanceSVG(w io.Writer, importances []ml.FeatureImportance) error {
	if len(importances) == 0 {
		return errors.Wrap(ml.ErrDegenerateInput, "no importances to plot")
	}
	values := make(plotter.Values, len(importances))
	names := make([]string, len(importances))
	for i, imp := range importances {
		values[i] = imp.Importance
		names[i] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.Y.Label.Text = "mean decrease in impurity"
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	return writeSVG(w, p)
}

func writeSVG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(chartWidth, chartHeight, "svg")
	if err != nil {
		return errors.Wrap(err, "prepare svg")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write svg")
	}
	return nil
}

type correlationGrid struct {
	m *CorrelationMatrix
}

func (g correlationGrid) Dims() (c, r int) { return len(g.m.Columns), len(g.m.Columns) }
func (g correlationGrid) X(c int) float64  { return float64(c) }
func (g correlationGrid) Y(r int) float64  { return float64(r) }

func (g correlationGrid) Z(c, r int) float64 {
	v := g.m.Values[r][c]
	if v == nil {
		return math.NaN()
	}
	return *v
}

// WriteCorrelationSVG renders the correlation matrix as a heat map on a
// blue-red diverging scale fixed to [-1, 1]. Undefined cells are grey.
func WriteCorrelationSVG(w io.Writer, corr *CorrelationMatrix) error {
	if corr == nil || len(corr.Columns) == 0 {
		return errors.Wrap(ml.ErrDegenerateInput, "no correlation matrix to plot")
	}
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(-1)
	cmap.SetMax(1)

	p := plot.New()
	p.Title.Text = "Correlation"
	hm := plotter.NewHeatMap(correlationGrid{m: corr}, cmap.Palette(64))
	hm.Min, hm.Max = -1, 1
	hm.NaN = color.Gray{Y: 0xcc}
	p.Add(hm)
	p.NominalX(corr.Columns...)
	p.NominalY(corr.Columns...)
	return writeSVG(w, p)
}
