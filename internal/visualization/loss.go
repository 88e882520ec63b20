// Package visualization renders training diagnostics with gonum/plot.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// EpochLoss is one point of the loss history
type EpochLoss struct {
	Epoch int
	Train float64
	Vali  float64
	Test  float64
}

var seriesColors = map[string]color.RGBA{
	"train": {R: 20, G: 80, B: 200, A: 255},
	"vali":  {R: 230, G: 120, B: 20, A: 255},
	"test":  {R: 40, G: 150, B: 40, A: 255},
}

// SaveLossCurve draws train, vali and test loss per epoch and writes the
// image to path. The format follows the file extension.
func SaveLossCurve(path string, history []EpochLoss) error {
	if len(history) == 0 {
		return fmt.Errorf("loss history is empty")
	}

	p := plot.New()
	p.Title.Text = "Loss per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "MSE"
	p.Add(plotter.NewGrid())

	series := []struct {
		name string
		pick func(EpochLoss) float64
	}{
		{"train", func(e EpochLoss) float64 { return e.Train }},
		{"vali", func(e EpochLoss) float64 { return e.Vali }},
		{"test", func(e EpochLoss) float64 { return e.Test }},
	}

	for _, s := range series {
		xys := make(plotter.XYs, len(history))
		for i, e := range history {
			xys[i] = plotter.XY{X: float64(e.Epoch), Y: s.pick(e)}
		}

		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return fmt.Errorf("%s series: %w", s.name, err)
		}
		line.Color = seriesColors[s.name]
		line.Width = vg.Points(1.2)
		points.Color = seriesColors[s.name]
		points.Radius = vg.Points(2)

		p.Add(line, points)
		p.Legend.Add(s.name, line, points)
	}
	p.Legend.Top = true

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
