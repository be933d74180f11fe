package waveform

// Downsample reduces a trace to at most maxPoints values for publishing.
// Each output value is the mean of one bucket of consecutive samples, so a
// pulse narrower than a bucket still shows up in the result. dst is reused
// when it has enough capacity. Traces that already fit are copied as is.
func Downsample(dst []float64, samples []float64, maxPoints int) []float64 {
	n := len(samples)
	if maxPoints <= 0 || n <= maxPoints {
		maxPoints = n
	}

	if cap(dst) >= maxPoints {
		dst = dst[:maxPoints]
	} else {
		dst = make([]float64, maxPoints)
	}
	if maxPoints == n {
		copy(dst, samples)
		return dst
	}

	for i := range dst {
		lo, hi := i*n/maxPoints, (i+1)*n/maxPoints
		dst[i] = mean(samples[lo:hi])
	}
	return dst
}
