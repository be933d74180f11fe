// Package device exposes the instrument as a set of per-channel attributes
// (active flag, analysis regions, waveform snapshot and integral) plus the
// global average count and measurement trigger.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/itohio/gomso/pkg/protocol"
	"github.com/itohio/gomso/pkg/scope"
	"github.com/itohio/gomso/pkg/waveform"
)

var (
	// ErrInvalidAverageIndex is returned for an average enumeration index out of range.
	ErrInvalidAverageIndex = errors.New("invalid average index")
	// ErrInvalidRegions is returned when a region declaration has the wrong shape.
	ErrInvalidRegions = errors.New("region declaration needs [channel, bg start, bg end, sig start, sig end]")
)

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithPoints sets the snapshot length.
func WithPoints(points int) Option {
	return func(d *Device) {
		if points > 0 {
			d.points = points
		}
	}
}

// WithMeasureOnRead makes reading the integral of the first active channel
// run a full measurement cycle first.
func WithMeasureOnRead(on bool) Option {
	return func(d *Device) {
		d.measureOnRead = on
	}
}

// Device serializes attribute access to one instrument through the meter.
type Device struct {
	meter         *meter.Meter
	logger        *slog.Logger
	points        int
	measureOnRead bool
}

// New creates a Device on top of m.
func New(m *meter.Meter, opts ...Option) *Device {
	d := &Device{
		meter:  m,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		points: waveform.DefaultPoints,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// channel runs f on channel n with exclusive session access.
func (d *Device) channel(n int, f func(s *scope.Session, ch *waveform.Channel) error) error {
	return d.meter.Do(func(s *scope.Session) error {
		ch, err := s.Channel(n)
		if err != nil {
			return err
		}
		return f(s, ch)
	})
}

// ChannelActive reports whether channel n is displayed.
func (d *Device) ChannelActive(n int) (bool, error) {
	var active bool
	err := d.channel(n, func(_ *scope.Session, ch *waveform.Channel) error {
		active = ch.Active()
		return nil
	})
	return active, err
}

// SetChannelActive turns channel n on or off on the instrument.
func (d *Device) SetChannelActive(n int, active bool) error {
	return d.channel(n, func(s *scope.Session, _ *waveform.Channel) error {
		if active {
			return s.ActivateChannel(n)
		}
		return s.DeactivateChannel(n)
	})
}

// ChannelRegions returns [bg start, bg end, sig start, sig end] of channel n.
func (d *Device) ChannelRegions(n int) ([4]int, error) {
	var regions [4]int
	err := d.channel(n, func(_ *scope.Session, ch *waveform.Channel) error {
		regions = ch.Regions()
		return nil
	})
	return regions, err
}

// SetChannelRegions stores new regions for channel n and recomputes its integral.
func (d *Device) SetChannelRegions(n int, regions [4]int) error {
	return d.channel(n, func(_ *scope.Session, ch *waveform.Channel) error {
		ch.SetRegions(regions[0], regions[1], regions[2], regions[3])
		ch.Recompute()
		return nil
	})
}

// DeclareRegions sets regions from a flat [channel, bgStart, bgEnd, sigStart, sigEnd] list.
func (d *Device) DeclareRegions(values []int) error {
	if len(values) != 5 {
		return fmt.Errorf("%w: got %d values", ErrInvalidRegions, len(values))
	}
	return d.SetChannelRegions(values[0], [4]int{values[1], values[2], values[3], values[4]})
}

// ChannelSnapshot returns a fresh waveform of channel n with a fixed length.
// Inactive channels return zeros without touching the instrument.
func (d *Device) ChannelSnapshot(n int) ([]float64, error) {
	var snapshot []float64
	err := d.channel(n, func(s *scope.Session, ch *waveform.Channel) error {
		if ch.Active() {
			if err := s.ReadChannel(n); err != nil {
				return err
			}
		}
		snapshot = ch.Snapshot(d.points)
		return nil
	})
	return snapshot, err
}

// ChannelIntegral returns the integral of channel n as float32. With
// measure-on-read enabled, reading the first active channel runs a
// measurement cycle so that one sweep over the channels shares one cycle.
func (d *Device) ChannelIntegral(ctx context.Context, n int) (float32, error) {
	var first bool
	err := d.channel(n, func(s *scope.Session, _ *waveform.Channel) error {
		active := s.ActiveChannels()
		first = len(active) > 0 && active[0] == n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if d.measureOnRead && first {
		if _, err := d.meter.Measure(ctx); err != nil {
			return 0, err
		}
	}

	var integral float64
	err = d.channel(n, func(_ *scope.Session, ch *waveform.Channel) error {
		integral = ch.Integral()
		return nil
	})
	return toFloat32(integral), err
}

// Measure runs one measurement cycle.
func (d *Device) Measure(ctx context.Context) error {
	_, err := d.meter.Measure(ctx)
	return err
}

// AverageLabels returns the labels of the average count enumeration.
func AverageLabels() []string {
	labels := make([]string, len(protocol.AverageCounts))
	for i, v := range protocol.AverageCounts {
		labels[i] = strconv.Itoa(v)
	}
	return labels
}

// Averages returns the enumeration index of the current average count.
func (d *Device) Averages() (int, error) {
	var idx int
	err := d.meter.Do(func(s *scope.Session) error {
		var ok bool
		idx, ok = protocol.AverageIndex(s.AverageCount())
		if !ok {
			return fmt.Errorf("instrument reports unsupported average count %d", s.AverageCount())
		}
		return nil
	})
	return idx, err
}

// SetAverages sets the average count by enumeration index.
func (d *Device) SetAverages(ctx context.Context, index int) error {
	count, ok := protocol.AverageFromIndex(index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidAverageIndex, index)
	}
	d.logger.Info("setting averages", "count", count)
	return d.meter.Do(func(s *scope.Session) error {
		return s.SetAverageCount(ctx, count)
	})
}

// toFloat32 narrows v to the attribute type. Values beyond the float32 range
// saturate instead of reading as infinity, and NaN reads as zero.
func toFloat32(v float64) float32 {
	f := float32(v)
	switch {
	case math32.IsNaN(f):
		return 0
	case math32.IsInf(f, 1):
		return math32.MaxFloat32
	case math32.IsInf(f, -1):
		return -math32.MaxFloat32
	}
	return f
}
