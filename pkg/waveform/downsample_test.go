package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownsample_NoReduction(t *testing.T) {
	samples := []float64{1, 2, 3}

	got := Downsample(nil, samples, 10)
	assert.Equal(t, samples, got)

	got[0] = 99
	assert.Equal(t, 1.0, samples[0], "result must not alias the input")
}

func TestDownsample_BucketMeans(t *testing.T) {
	samples := make([]float64, 1000)
	for i := range samples {
		samples[i] = float64(i)
	}

	got := Downsample(nil, samples, 100)
	assert.Len(t, got, 100)
	assert.InDelta(t, 4.5, got[0], 1e-12)
	assert.InDelta(t, 14.5, got[1], 1e-12)
	assert.InDelta(t, 994.5, got[99], 1e-12)
}

func TestDownsample_KeepsNarrowPulse(t *testing.T) {
	samples := make([]float64, 1000)
	samples[503] = 10

	got := Downsample(nil, samples, 100)
	assert.InDelta(t, 1.0, got[50], 1e-12)

	var sum float64
	for _, v := range got {
		sum += v
	}
	// bucket means preserve the area up to the bucket width
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestDownsample_UnevenBuckets(t *testing.T) {
	got := Downsample(nil, []float64{1, 1, 1, 4, 4, 4, 4}, 2)
	assert.Equal(t, []float64{1, 4}, got)
}

func TestDownsample_ReusesDestination(t *testing.T) {
	samples := make([]float64, 50)
	dst := make([]float64, 0, 20)

	got := Downsample(dst, samples, 10)
	assert.Len(t, got, 10)
	assert.Equal(t, 20, cap(got))
}

func TestDownsample_ZeroMaxCopiesAll(t *testing.T) {
	samples := []float64{4, 5, 6}
	assert.Equal(t, samples, Downsample(nil, samples, 0))
}
