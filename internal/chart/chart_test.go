package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotplot/internal/pricing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleLines() []Line {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []Line{
		{
			Name:   "us-west-1a",
			Times:  []time.Time{start, start.Add(6 * time.Hour), start.Add(12 * time.Hour)},
			Values: []float64{0.21, 0.22, 0.20},
		},
		{
			Name:   "us-west-1b",
			Times:  []time.Time{start.Add(time.Hour), start.Add(8 * time.Hour)},
			Values: []float64{0.19, 0.18},
		},
	}
}

func TestRenderPNG(t *testing.T) {
	mean := 0.2
	var buf bytes.Buffer

	err := Render(&buf, Options{Title: "c3.xlarge", Width: 640, Height: 360, Mean: &mean}, sampleLines())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRenderFlatSeries(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lines := []Line{{Name: "us-west-1c", Times: []time.Time{ts}, Values: []float64{0.05}}}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Options{Width: 320, Height: 240}, lines))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRenderRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Render(&buf, Options{}, nil), ErrNoLines)
	assert.ErrorIs(t, Render(&buf, Options{}, []Line{{Name: "empty"}}), ErrNoLines)

	mismatched := []Line{{Name: "x", Times: []time.Time{time.Now()}, Values: []float64{1, 2}}}
	assert.Error(t, Render(&buf, Options{}, mismatched))
}

func TestWritePNGCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "plot.png")

	require.NoError(t, WritePNG(path, Options{Width: 320, Height: 240}, sampleLines()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestWritePNGRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.png")

	require.ErrorIs(t, WritePNG(path, Options{}, nil), ErrNoLines)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLineFromZoneSeries(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &pricing.ZoneSeries{
		Zone:       "us-west-1a",
		Timestamps: []time.Time{ts, ts.Add(time.Hour)},
		Prices:     []decimal.Decimal{decimal.RequireFromString("0.2101"), decimal.RequireFromString("0.25")},
	}

	line := LineFromZoneSeries(s)
	assert.Equal(t, "us-west-1a", line.Name)
	assert.Equal(t, []float64{0.2101, 0.25}, line.Values)
	assert.Equal(t, s.Timestamps, line.Times)
}

func TestPadValues(t *testing.T) {
	lo, hi := padValues(1, 3)
	assert.InDelta(t, 0.9, lo, 1e-9)
	assert.InDelta(t, 3.1, hi, 1e-9)

	lo, hi = padValues(0.5, 0.5)
	assert.InDelta(t, 0.45, lo, 1e-9)
	assert.InDelta(t, 0.55, hi, 1e-9)

	lo, hi = padValues(0, 0)
	assert.Equal(t, 0.0, lo)
	assert.InDelta(t, 0.001, hi, 1e-12)
}
