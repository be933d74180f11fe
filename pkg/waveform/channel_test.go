package waveform

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepTrace(n, edge int, low, high float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i >= edge {
			out[i] = high
		} else {
			out[i] = low
		}
	}
	return out
}

func TestNewChannel_Defaults(t *testing.T) {
	c := NewChannel(3)

	assert.Equal(t, 3, c.Index())
	assert.False(t, c.Active())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, DefaultSampleInterval, c.SampleInterval())
	assert.Equal(t, [4]int{0, 100, 200, 1000}, c.Regions())
	assert.Equal(t, 0.0, c.Integral())
}

func TestRecompute_StepScenario(t *testing.T) {
	c := NewChannel(1)
	c.SetActive(true)
	c.SetSampleInterval(0.1)
	c.SetRegions(0, 100, 200, 1000)
	c.SetSamples(stepTrace(1000, 200, 0.0, 1.0))

	assert.InDelta(t, 0.0, c.BackgroundAverage(), 1e-12)
	// 800 corrected samples of 1.0, scaled by 800 * 0.1 s
	assert.InDelta(t, 800*(800*0.1), c.Integral(), 1e-6)
}

func TestRecompute_MatchesFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 10 + rng.Intn(500)
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = rng.Float64()*2 - 1
		}
		a := rng.Intn(n + 1)
		b := a + rng.Intn(n-a+1)
		bgStart := rng.Intn(n + 1)
		bgEnd := bgStart + rng.Intn(n-bgStart+1)
		dt := 1e-9 + rng.Float64()*1e-3

		c := NewChannel(1)
		c.SetActive(true)
		c.SetSampleInterval(dt)
		c.SetRegions(bgStart, bgEnd, a, b)
		c.SetSamples(samples)

		var bg float64
		if bgEnd > bgStart {
			for _, v := range samples[bgStart:bgEnd] {
				bg += v
			}
			bg /= float64(bgEnd - bgStart)
		}
		var sum float64
		for _, v := range samples[a:b] {
			sum += v - bg
		}
		want := float64(b-a) * dt * sum

		require.InDelta(t, want, c.Integral(), 1e-9, "trial %d: n=%d bg=[%d,%d) sig=[%d,%d)", trial, n, bgStart, bgEnd, a, b)
	}
}

func TestRecompute_ClampsBackground(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	c := NewChannel(2)
	c.SetActive(true)
	c.SetSampleInterval(1)
	c.SetRegions(-5, len(samples)+50, 0, 0)
	c.SetSamples(samples)

	assert.InDelta(t, 5.5, c.BackgroundAverage(), 1e-12)
	assert.Equal(t, 0.0, c.Integral())
	// stored bounds are not rewritten by the clamp
	assert.Equal(t, [4]int{-5, 60, 0, 0}, c.Regions())
}

func TestRecompute_ClampAfterShrink(t *testing.T) {
	c := NewChannel(1)
	c.SetActive(true)
	c.SetSampleInterval(1)
	c.SetRegions(0, 2, 2, 1000)

	c.SetSamples([]float64{0, 0, 1, 1, 1, 1})
	assert.InDelta(t, 4*4.0, c.Integral(), 1e-12)

	c.SetSamples([]float64{0, 0, 1})
	assert.InDelta(t, 1*1.0, c.Integral(), 1e-12)

	c.SetSamples([]float64{0, 0, 1, 1, 1, 1, 1, 1})
	assert.InDelta(t, 6*6.0, c.Integral(), 1e-12)
}

func TestRecompute_MalformedRanges(t *testing.T) {
	tests := []struct {
		name    string
		regions [4]int
	}{
		{"reversed signal", [4]int{0, 2, 8, 3}},
		{"signal beyond end", [4]int{0, 2, 50, 60}},
		{"negative signal", [4]int{0, 2, -10, -1}},
		{"empty background", [4]int{4, 4, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChannel(1)
			c.SetActive(true)
			c.SetRegions(tt.regions[0], tt.regions[1], tt.regions[2], tt.regions[3])
			assert.NotPanics(t, func() { c.SetSamples(stepTrace(10, 5, 0, 1)) })
			assert.Equal(t, 0.0, c.Integral())
		})
	}
}

func TestRecompute_EmptyBackgroundUsesZero(t *testing.T) {
	c := NewChannel(1)
	c.SetActive(true)
	c.SetSampleInterval(0.5)
	c.SetRegions(3, 3, 0, 4)
	c.SetSamples([]float64{1, 1, 1, 1})

	assert.Equal(t, 0.0, c.BackgroundAverage())
	assert.InDelta(t, 4*(4*0.5), c.Integral(), 1e-12)
}

func TestInactiveChannel_ReadsZero(t *testing.T) {
	c := NewChannel(4)
	c.SetActive(true)
	c.SetSampleInterval(0.1)
	c.SetSamples(stepTrace(1000, 200, 0, 1))
	require.NotEqual(t, 0.0, c.Integral())

	c.SetActive(false)
	assert.Equal(t, 0.0, c.Integral())
	assert.Equal(t, 1000, c.Len(), "samples are kept while inactive")

	c.Recompute()
	assert.Equal(t, 0.0, c.Integral())
}

func TestEmptyChannel_ReadsZero(t *testing.T) {
	c := NewChannel(1)
	c.SetActive(true)
	c.Recompute()
	assert.Equal(t, 0.0, c.Integral())
}

func TestSetSampleInterval_IgnoresNonPositive(t *testing.T) {
	c := NewChannel(1)
	c.SetSampleInterval(2e-9)
	c.SetSampleInterval(0)
	c.SetSampleInterval(-1)
	assert.Equal(t, 2e-9, c.SampleInterval())
}

func TestSnapshot(t *testing.T) {
	c := NewChannel(1)
	c.SetSamples([]float64{1, 2, 3})

	assert.Equal(t, []float64{0, 0, 0, 0, 0}, c.Snapshot(5), "inactive snapshot is zero")

	c.SetActive(true)
	assert.Equal(t, []float64{1, 2, 3, 0, 0}, c.Snapshot(5))
	assert.Equal(t, []float64{1, 2}, c.Snapshot(2))
	assert.Empty(t, c.Snapshot(-1))
}

func TestSamples_ReturnsCopy(t *testing.T) {
	c := NewChannel(1)
	c.SetSamples([]float64{1, 2, 3})

	s := c.Samples()
	s[0] = 100
	assert.Equal(t, []float64{1, 2, 3}, c.Samples())
}
