// Package chart renders temperature history as a line chart image.
package chart

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"time"

	"github.com/fogleman/gg"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/bjorntas/kthmon/kth"
)

// A Provider supplies the readings to render, typically a *kth.Monitor.
type Provider interface {
	Readings() []kth.Reading
}

// Canvas dimensions, following the device's companion tooling.
const (
	chartWidth  = 8 * vg.Inch
	chartHeight = 7 * vg.Inch

	// pixel equivalents at vgimg's default 96 DPI
	widthPx  = 768
	heightPx = 672
)

const backgroundHex = "#707576"

// Source generates images from the current contents of a reading provider.
type Source struct {
	provider Provider
}

// NewSource returns a source rendering the given provider's readings.
func NewSource(provider Provider) *Source {
	return &Source{provider: provider}
}

type series struct {
	name   string
	points plotter.XYs
}

// temperatureSeries groups temperature readings into one series per
// thermocouple, in register table order.
func temperatureSeries(readings []kth.Reading) []series {
	var out []series
	for _, reg := range kth.Registers {
		if reg.Unit != kth.UnitTemperature {
			continue
		}
		var pts plotter.XYs
		for _, r := range readings {
			if r.ID != reg.Name || r.Unit != kth.UnitTemperature {
				continue
			}
			pts = append(pts, plotter.XY{
				X: float64(r.Time.UnixNano()) / float64(time.Second),
				Y: r.Value,
			})
		}
		if len(pts) == 0 {
			continue
		}
		out = append(out, series{name: reg.Name, points: pts})
	}
	return out
}

// Next renders the provider's current temperature history. With no
// temperature readings yet it renders a placeholder so there is always an
// image to show.
func (cs *Source) Next(ctx context.Context) (image.Image, error) {
	allSeries := temperatureSeries(cs.provider.Readings())
	if len(allSeries) == 0 {
		return cs.placeholder(), nil
	}

	p := plot.New()
	p.Title.Text = "Temperature"
	p.Y.Label.Text = "Temperature [Celsius]"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}

	for i, s := range allSeries {
		line, err := plotter.NewLine(s.points)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	canvas := vgimg.New(chartWidth, chartHeight)
	p.Draw(draw.New(canvas))
	return canvas.Image(), nil
}

func (cs *Source) placeholder() image.Image {
	dc := gg.NewContext(widthPx, heightPx)
	dc.SetHexColor(backgroundHex)
	dc.Clear()
	dc.SetColor(color.White)
	dc.DrawStringAnchored("waiting for temperature readings", widthPx/2, heightPx/2, 0.5, 0.5)
	return dc.Image()
}

// WritePNG renders the chart and writes it to w as a PNG.
func (cs *Source) WritePNG(ctx context.Context, w io.Writer) error {
	img, err := cs.Next(ctx)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Close does nothing; a source holds no resources.
func (cs *Source) Close() error {
	return nil
}
