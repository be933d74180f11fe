// Package scope keeps the state of one connected oscilloscope: its four
// channel records, the active channel set and the hardware average count.
package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/itohio/gomso/pkg/protocol"
	"github.com/itohio/gomso/pkg/waveform"
)

// NumChannels is the number of analog channels.
const NumChannels = 4

// DefaultSettleDelay is the wait after changing the average count before it is read back.
const DefaultSettleDelay = 100 * time.Millisecond

var (
	// ErrInvalidChannel is returned for channel numbers outside 1..4.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrPointCount is returned when a waveform holds more points than requested.
	ErrPointCount = errors.New("unexpected waveform point count")
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPoints sets the number of waveform points requested per channel.
func WithPoints(points int) Option {
	return func(s *Session) {
		if points > 0 {
			s.points = points
		}
	}
}

// WithSettleDelay sets the wait after writing a new average count.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		s.settleDelay = d
	}
}

// Session drives one instrument connection.
//
// Session is not safe for concurrent use. Callers serialize access so that
// only one command is in flight at a time.
type Session struct {
	client      *protocol.Client
	logger      *slog.Logger
	points      int
	settleDelay time.Duration

	// channels is indexed by channel number; slot 0 is unused.
	channels     [NumChannels + 1]*waveform.Channel
	active       []int
	averageCount int
}

// New creates a session talking over t.
func New(t protocol.Transport, opts ...Option) *Session {
	s := &Session{
		client:       protocol.NewClient(t),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		points:       waveform.DefaultPoints,
		settleDelay:  DefaultSettleDelay,
		averageCount: 1,
	}
	for n := 1; n <= NumChannels; n++ {
		s.channels[n] = waveform.NewChannel(n)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init puts the instrument into averaging mode with the total counter
// enabled, reads the average count and configures the displayed channels.
func (s *Session) Init(ctx context.Context) error {
	err := s.client.Command(
		protocol.CounterTotal,
		protocol.CounterEnable,
		protocol.AcquireNormal,
		protocol.AcquireAverage,
	)
	if err != nil {
		return fmt.Errorf("failed to enable averaging: %w", err)
	}

	count, err := s.client.QueryCount(protocol.AverageCount)
	if err != nil {
		return err
	}
	s.averageCount = count

	if err := s.ClearCounter(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.RefreshActiveChannels(); err != nil {
		return err
	}
	if err := s.ConfigureActiveChannels(); err != nil {
		return err
	}

	s.logger.Info("session initialized", "averages", s.averageCount, "active", s.active)
	return nil
}

// Channel returns the record of channel n.
func (s *Session) Channel(n int) (*waveform.Channel, error) {
	if n < 1 || n > NumChannels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, n)
	}
	return s.channels[n], nil
}

// ActiveChannels returns the channel numbers found displayed by the last refresh.
func (s *Session) ActiveChannels() []int {
	return append([]int(nil), s.active...)
}

// RefreshActiveChannels queries the display flag of every channel.
func (s *Session) RefreshActiveChannels() error {
	active := make([]int, 0, NumChannels)
	for n := 1; n <= NumChannels; n++ {
		on, err := s.client.QueryBool(protocol.ChannelDisplay(n))
		if err != nil {
			return fmt.Errorf("failed to refresh channel %d: %w", n, err)
		}
		s.channels[n].SetActive(on)
		if on {
			active = append(active, n)
		}
	}
	s.active = active
	return nil
}

// ConfigureChannel selects channel n as the waveform source, sets the
// transfer format and point count and reads back the sample interval.
// Inactive channels are left alone.
func (s *Session) ConfigureChannel(n int) error {
	ch, err := s.Channel(n)
	if err != nil {
		return err
	}
	if !ch.Active() {
		return nil
	}

	err = s.client.Command(
		protocol.WaveformSource(n),
		protocol.WaveformNormal,
		protocol.WaveformASCII,
		protocol.WaveformPoints(s.points),
	)
	if err != nil {
		return fmt.Errorf("failed to configure channel %d: %w", n, err)
	}

	dt, err := s.client.QueryFloat(protocol.WaveformXInc)
	if err != nil {
		return fmt.Errorf("failed to configure channel %d: %w", n, err)
	}
	ch.SetSampleInterval(dt)
	s.logger.Debug("channel configured", "channel", n, "xinc", dt)
	return nil
}

// ConfigureActiveChannels configures every active channel.
func (s *Session) ConfigureActiveChannels() error {
	for _, n := range s.active {
		if err := s.ConfigureChannel(n); err != nil {
			return err
		}
	}
	return nil
}

// ReadChannel transfers the waveform of channel n and recomputes its
// integral. Inactive channels are not read.
func (s *Session) ReadChannel(n int) error {
	ch, err := s.Channel(n)
	if err != nil {
		return err
	}
	if !ch.Active() {
		return nil
	}

	if err := s.client.Command(protocol.WaveformSource(n)); err != nil {
		return fmt.Errorf("failed to read channel %d: %w", n, err)
	}
	samples, err := s.client.QueryWaveform()
	if err != nil {
		return fmt.Errorf("failed to read channel %d: %w", n, err)
	}
	switch {
	case len(samples) < s.points:
		return fmt.Errorf("failed to read channel %d: %w: %d of %d points",
			n, protocol.ErrTruncatedPayload, len(samples), s.points)
	case len(samples) > s.points:
		return fmt.Errorf("failed to read channel %d: %w: %d of %d points",
			n, ErrPointCount, len(samples), s.points)
	}
	ch.SetSamples(samples)

	s.logger.Debug("channel read", "channel", n, "points", len(samples), "integral", ch.Integral())
	return nil
}

// ReadAllActiveChannels reads channels 1..4 in order and stops at the first error.
func (s *Session) ReadAllActiveChannels() error {
	for n := 1; n <= NumChannels; n++ {
		if err := s.ReadChannel(n); err != nil {
			return err
		}
	}
	return nil
}

// ActivateChannel turns channel n on, then configures and reads it.
func (s *Session) ActivateChannel(n int) error {
	if _, err := s.Channel(n); err != nil {
		return err
	}
	if err := s.client.Command(protocol.SetChannelDisplay(n, true)); err != nil {
		return fmt.Errorf("failed to activate channel %d: %w", n, err)
	}
	if err := s.RefreshActiveChannels(); err != nil {
		return err
	}
	if err := s.ConfigureChannel(n); err != nil {
		return err
	}
	return s.ReadChannel(n)
}

// DeactivateChannel turns channel n off. Its integral reads zero afterwards.
func (s *Session) DeactivateChannel(n int) error {
	if _, err := s.Channel(n); err != nil {
		return err
	}
	if err := s.client.Command(protocol.SetChannelDisplay(n, false)); err != nil {
		return fmt.Errorf("failed to deactivate channel %d: %w", n, err)
	}
	return s.RefreshActiveChannels()
}

// AverageCount returns the last average count confirmed by the instrument.
func (s *Session) AverageCount() int {
	return s.averageCount
}

// SetAverageCount writes a new average count, waits for the instrument to
// settle and stores the value it reports back. Values the instrument does
// not support are logged and ignored.
func (s *Session) SetAverageCount(ctx context.Context, count int) error {
	if !protocol.ValidAverageCount(count) {
		s.logger.Warn("unsupported average count ignored", "count", count, "current", s.averageCount)
		return nil
	}

	if err := s.client.Command(protocol.SetAverageCount(count)); err != nil {
		return fmt.Errorf("failed to set average count: %w", err)
	}

	if s.settleDelay > 0 {
		timer := time.NewTimer(s.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	confirmed, err := s.client.QueryCount(protocol.AverageCount)
	if err != nil {
		return err
	}
	if confirmed != count {
		s.logger.Warn("instrument reported a different average count", "requested", count, "confirmed", confirmed)
	}
	s.averageCount = confirmed
	return nil
}

// ResetAveraging restarts hardware averaging: the acquisition type is
// toggled through normal and the completion counter cleared.
func (s *Session) ResetAveraging() error {
	if err := s.client.Command(protocol.AcquireNormal, protocol.AcquireAverage); err != nil {
		return fmt.Errorf("failed to reset averaging: %w", err)
	}
	return s.ClearCounter()
}

// ClearCounter zeroes the completion counter.
func (s *Session) ClearCounter() error {
	if err := s.client.Command(protocol.CounterClear); err != nil {
		return fmt.Errorf("failed to clear counter: %w", err)
	}
	return nil
}

// CompletionCount returns the number of acquisitions since the counter was cleared.
func (s *Session) CompletionCount() (int, error) {
	return s.client.QueryCount(protocol.CounterCurrent)
}

// SingleAcquisition arms a single trigger.
func (s *Session) SingleAcquisition() error {
	return s.client.Command(protocol.SingleTrigger)
}

// Integrals returns the integral of every channel, zero for inactive ones.
func (s *Session) Integrals() [NumChannels]float64 {
	var out [NumChannels]float64
	for n := 1; n <= NumChannels; n++ {
		out[n-1] = s.channels[n].Integral()
	}
	return out
}

// Identity returns the *IDN? reply.
func (s *Session) Identity() (string, error) {
	return s.client.QueryString(protocol.Identify)
}
