package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"

	"spotplot/internal/pricing"
)

const (
	defaultWidth      = 1850
	defaultHeight     = 1050
	defaultTimeFormat = "2006-01-02 15:04"
)

// ErrNoLines indicates there is nothing to draw.
var ErrNoLines = errors.New("chart: no series to render")

// Line is one plotted series.
type Line struct {
	Name   string
	Times  []time.Time
	Values []float64
}

// LineFromZoneSeries converts a processor series into a plotted line named after its zone.
func LineFromZoneSeries(s *pricing.ZoneSeries) Line {
	values := make([]float64, len(s.Prices))
	for i, p := range s.Prices {
		values[i] = p.InexactFloat64()
	}
	times := make([]time.Time, len(s.Timestamps))
	copy(times, s.Timestamps)
	return Line{Name: s.Zone, Times: times, Values: values}
}

// Options tune the rendered image.
type Options struct {
	Title      string
	Width      int
	Height     int
	TimeFormat string
	XAxisName  string
	YAxisName  string
	// Mean draws a dashed horizontal reference line when set.
	Mean      *float64
	MeanLabel string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Height <= 0 {
		o.Height = defaultHeight
	}
	if o.TimeFormat == "" {
		o.TimeFormat = defaultTimeFormat
	}
	if o.XAxisName == "" {
		o.XAxisName = "Time"
	}
	if o.YAxisName == "" {
		o.YAxisName = "Price (USD/hour)"
	}
	if o.MeanLabel == "" {
		o.MeanLabel = "mean"
	}
	return o
}

// Render draws lines as a PNG time-series chart with the legend on the top left.
func Render(w io.Writer, opts Options, lines []Line) error {
	opts = opts.withDefaults()

	drawn := make([]Line, 0, len(lines))
	for _, line := range lines {
		if len(line.Times) != len(line.Values) {
			return fmt.Errorf("chart: series %q has %d timestamps and %d values", line.Name, len(line.Times), len(line.Values))
		}
		if len(line.Values) > 0 {
			drawn = append(drawn, line)
		}
	}
	if len(drawn) == 0 {
		return ErrNoLines
	}

	tMin, tMax, vMin, vMax := bounds(drawn)
	if opts.Mean != nil {
		vMin = math.Min(vMin, *opts.Mean)
		vMax = math.Max(vMax, *opts.Mean)
	}
	xMin, xMax := padTimes(tMin, tMax)
	yMin, yMax := padValues(vMin, vMax)

	priceFormatter := func(v interface{}) string {
		return gochart.FloatValueFormatterWithFormat(v, "%.4f")
	}

	series := make([]gochart.Series, 0, len(drawn)+1)
	for i, line := range drawn {
		color := gochart.GetDefaultColor(i)
		series = append(series, gochart.TimeSeries{
			Name: line.Name,
			Style: gochart.Style{
				StrokeColor: color,
				StrokeWidth: 1.5,
				DotColor:    color,
				DotWidth:    2.5,
			},
			XValues: line.Times,
			YValues: line.Values,
		})
	}
	if opts.Mean != nil {
		series = append(series, gochart.TimeSeries{
			Name: opts.MeanLabel,
			Style: gochart.Style{
				StrokeColor:     gochart.ColorBlack,
				StrokeWidth:     1,
				StrokeDashArray: []float64{6, 4},
			},
			XValues: []time.Time{xMin, xMax},
			YValues: []float64{*opts.Mean, *opts.Mean},
		})
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: gochart.XAxis{
			Name:           opts.XAxisName,
			ValueFormatter: gochart.TimeValueFormatterWithFormat(opts.TimeFormat),
			Range: &gochart.ContinuousRange{
				Min: gochart.TimeToFloat64(xMin),
				Max: gochart.TimeToFloat64(xMax),
			},
		},
		YAxis: gochart.YAxis{
			Name:           opts.YAxisName,
			ValueFormatter: priceFormatter,
			Range:          &gochart.ContinuousRange{Min: yMin, Max: yMax},
		},
		Series: series,
	}
	graph.Elements = []gochart.Renderable{gochart.LegendLeft(&graph)}

	return graph.Render(gochart.PNG, w)
}

// WritePNG renders lines to path, creating parent directories.
func WritePNG(path string, opts Options, lines []Line) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Render(file, opts, lines); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

func bounds(lines []Line) (tMin, tMax time.Time, vMin, vMax float64) {
	vMin, vMax = math.Inf(1), math.Inf(-1)
	for _, line := range lines {
		for i, ts := range line.Times {
			if tMin.IsZero() || ts.Before(tMin) {
				tMin = ts
			}
			if ts.After(tMax) {
				tMax = ts
			}
			vMin = math.Min(vMin, line.Values[i])
			vMax = math.Max(vMax, line.Values[i])
		}
	}
	return tMin, tMax, vMin, vMax
}

// padTimes widens a degenerate window, go-chart refuses a zero x delta.
func padTimes(lo, hi time.Time) (time.Time, time.Time) {
	if hi.After(lo) {
		return lo, hi
	}
	return lo.Add(-time.Hour), hi.Add(time.Hour)
}

// padValues leaves 5% headroom on both sides; flat prices get 10% of their level.
func padValues(lo, hi float64) (float64, float64) {
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Abs(hi) * 0.1
	}
	if pad == 0 {
		pad = 0.001
	}
	lo -= pad
	if lo < 0 && hi >= 0 {
		lo = 0
	}
	return lo, hi + pad
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
