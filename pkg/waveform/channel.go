package waveform

const (
	// DefaultPoints is the number of points the instrument is asked to transfer per channel.
	DefaultPoints = 1000
	// DefaultSampleInterval is used until the instrument reports :WAV:XINC.
	DefaultSampleInterval = 0.1
)

// Region is a half-open [Start, End) range of sample indices.
type Region struct {
	Start int
	End   int
}

// clamp limits the region to [0, n]. A region with Start > End collapses to empty.
func (r Region) clamp(n int) Region {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > n {
		r.End = n
	}
	if r.Start > n {
		r.Start = n
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	return r
}

// Len returns the number of samples covered by the region.
func (r Region) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Channel holds the most recent waveform of one oscilloscope channel and the
// background-corrected integral computed from it.
//
// Channel is not safe for concurrent use; the owning session serializes access.
type Channel struct {
	index          int
	active         bool
	samples        []float64
	sampleInterval float64

	// Region bounds are stored as requested and clamped on every Recompute.
	background Region
	signal     Region

	backgroundAverage float64
	integral          float64 // V*s over the signal region
}

// NewChannel creates channel index (1..4) with the default regions:
// background [0,100) and signal [200,1000).
func NewChannel(index int) *Channel {
	return &Channel{
		index:          index,
		sampleInterval: DefaultSampleInterval,
		background:     Region{Start: 0, End: 100},
		signal:         Region{Start: 200, End: 1000},
	}
}

// Index returns the channel number.
func (c *Channel) Index() int {
	return c.index
}

// Active reports whether the instrument displays this channel.
func (c *Channel) Active() bool {
	return c.active
}

// SetActive updates the active flag and recomputes the integral, so an
// inactive channel reads zero immediately.
func (c *Channel) SetActive(active bool) {
	c.active = active
	c.Recompute()
}

// Samples returns a copy of the stored samples.
func (c *Channel) Samples() []float64 {
	out := make([]float64, len(c.samples))
	copy(out, c.samples)
	return out
}

// Len returns the number of stored samples.
func (c *Channel) Len() int {
	return len(c.samples)
}

// SetSamples replaces the stored waveform wholesale and recomputes the integral.
func (c *Channel) SetSamples(samples []float64) {
	c.samples = samples
	c.Recompute()
}

// SampleInterval returns the time between samples in seconds.
func (c *Channel) SampleInterval() float64 {
	return c.sampleInterval
}

// SetSampleInterval stores the time between samples. Non-positive values are ignored.
func (c *Channel) SetSampleInterval(seconds float64) {
	if seconds > 0 {
		c.sampleInterval = seconds
	}
}

// SetRegions stores the background and signal bounds verbatim.
// Validation happens in Recompute.
func (c *Channel) SetRegions(bgStart, bgEnd, sigStart, sigEnd int) {
	c.background = Region{Start: bgStart, End: bgEnd}
	c.signal = Region{Start: sigStart, End: sigEnd}
}

// Regions returns [background start, background end, signal start, signal end].
func (c *Channel) Regions() [4]int {
	return [4]int{c.background.Start, c.background.End, c.signal.Start, c.signal.End}
}

// BackgroundAverage returns the mean of the background region from the last Recompute.
func (c *Channel) BackgroundAverage() float64 {
	return c.backgroundAverage
}

// Integral returns the background-corrected integral over the signal region in V*s.
func (c *Channel) Integral() float64 {
	return c.integral
}

// Recompute derives the background average and the integral from the current samples.
//
// integral = sum(samples[signal] - mean(samples[background])) * len(signal) * sampleInterval
//
// The scale uses the number of signal samples rather than a per-sample weight.
func (c *Channel) Recompute() {
	c.backgroundAverage = 0
	c.integral = 0

	n := len(c.samples)
	if n == 0 || !c.active {
		return
	}

	bg := c.background.clamp(n)
	sig := c.signal.clamp(n)

	c.backgroundAverage = mean(c.samples[bg.Start:bg.End])

	var sum float64
	for _, v := range c.samples[sig.Start:sig.End] {
		sum += v - c.backgroundAverage
	}
	dt := float64(sig.Len()) * c.sampleInterval
	c.integral = sum * dt
}

// Snapshot returns exactly points values: zeros when the channel is inactive,
// otherwise the samples cut or zero-padded to length.
func (c *Channel) Snapshot(points int) []float64 {
	if points < 0 {
		points = 0
	}
	out := make([]float64, points)
	if !c.active {
		return out
	}
	copy(out, c.samples)
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
