package meter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/itohio/gomso/pkg/scope"
)

const (
	// DefaultPollInterval is the completion counter poll period.
	DefaultPollInterval = 30 * time.Millisecond
	// DefaultTimeout bounds one averaging run.
	DefaultTimeout = time.Minute
)

// ErrAveragingTimeout is returned when the instrument does not complete the
// requested number of acquisitions in time.
var ErrAveragingTimeout = errors.New("averaging did not complete")

var _ Controller = (*Meter)(nil)

// State is the phase of a measurement cycle.
type State int

const (
	Idle State = iota
	AveragingReset
	Polling
	Reading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AveragingReset:
		return "averaging-reset"
	case Polling:
		return "polling"
	case Reading:
		return "reading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome of one measurement cycle.
type Result struct {
	Timestamp time.Time
	Duration  time.Duration
	Averages  int
	Counter   int // completion count observed when polling finished
	Active    [scope.NumChannels]bool
	Integrals [scope.NumChannels]float64   // V*s, zero for inactive channels
	Traces    [scope.NumChannels][]float64 // samples of active channels, nil otherwise
}

// Controller runs synchronized averaging cycles.
type Controller interface {
	Measure(ctx context.Context) (Result, error)
	RunMeasurementCycle(ctx context.Context) ([scope.NumChannels]float64, error)
	State() State
	OnUpdate(func(Result)) // Register callback for completed cycles
}

// Option configures a Meter.
type Option func(*Meter)

// WithLogger sets the meter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Meter) {
		m.logger = logger
	}
}

// WithPollInterval sets how often the completion counter is queried.
func WithPollInterval(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithTimeout sets the upper bound of one averaging run.
func WithTimeout(d time.Duration) Option {
	return func(m *Meter) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Meter implements Controller on top of a scope.Session.
// The session is only touched while runMu is held.
type Meter struct {
	session      *scope.Session
	logger       *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration

	runMu sync.Mutex

	mu    sync.RWMutex
	state State
	last  Result

	callbacks []func(Result)
	cbMu      sync.RWMutex
}

// New creates a Meter driving session.
func New(session *scope.Session, opts ...Option) *Meter {
	m := &Meter{
		session:      session,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Do runs f with exclusive access to the session.
func (m *Meter) Do(f func(s *scope.Session) error) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return f(m.session)
}

// State returns the current phase.
func (m *Meter) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Last returns the most recent successful result.
func (m *Meter) Last() Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// RunMeasurementCycle performs one cycle and returns the four integrals.
func (m *Meter) RunMeasurementCycle(ctx context.Context) ([scope.NumChannels]float64, error) {
	res, err := m.Measure(ctx)
	return res.Integrals, err
}

// Measure restarts hardware averaging, waits until the instrument reports
// at least the configured number of acquisitions and reads every active
// channel. The meter is back in Idle when Measure returns.
func (m *Meter) Measure(ctx context.Context) (Result, error) {
	m.runMu.Lock()
	res, err := m.measure(ctx)
	m.setState(Idle)
	m.runMu.Unlock()

	if err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()

	m.notifyCallbacks(res)
	return res, nil
}

func (m *Meter) measure(ctx context.Context) (Result, error) {
	start := time.Now()

	m.setState(AveragingReset)
	if err := m.session.ResetAveraging(); err != nil {
		return Result{}, err
	}

	m.setState(Polling)
	count, err := m.waitForAverages(ctx)
	if err != nil {
		return Result{}, err
	}

	m.setState(Reading)
	if err := m.session.RefreshActiveChannels(); err != nil {
		return Result{}, err
	}
	if err := m.session.ReadAllActiveChannels(); err != nil {
		return Result{}, err
	}

	res := Result{
		Timestamp: start,
		Duration:  time.Since(start),
		Averages:  m.session.AverageCount(),
		Counter:   count,
		Integrals: m.session.Integrals(),
	}
	for _, n := range m.session.ActiveChannels() {
		res.Active[n-1] = true
		if ch, err := m.session.Channel(n); err == nil {
			res.Traces[n-1] = ch.Samples()
		}
	}

	m.logger.Debug("cycle complete", "averages", res.Averages, "counter", count, "duration", res.Duration)
	return res, nil
}

// waitForAverages polls the completion counter until it reaches the
// session's average count, the timeout expires or ctx is done.
func (m *Meter) waitForAverages(ctx context.Context) (int, error) {
	target := m.session.AverageCount()

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		count, err := m.session.CompletionCount()
		if err != nil {
			return 0, err
		}
		if count >= target {
			return count, nil
		}

		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-deadline.C:
			return count, fmt.Errorf("%w: %d of %d acquisitions after %s", ErrAveragingTimeout, count, target, m.timeout)
		case <-ticker.C:
		}
	}
}

// Run performs count cycles (count < 0 runs until ctx is done), pausing
// interval between them. Averaging timeouts are logged and the loop goes on;
// any other error stops it. Cancelling ctx is a normal stop.
func (m *Meter) Run(ctx context.Context, interval time.Duration, count int) error {
	for i := 0; count < 0 || i < count; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}

		_, err := m.Measure(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrAveragingTimeout):
			m.logger.Warn("measurement cycle skipped", "err", err)
		default:
			return fmt.Errorf("measurement cycle %d: %w", i+1, err)
		}
	}
	return nil
}

// OnUpdate registers a callback invoked after every successful cycle.
// The callback should return quickly; it runs on the measuring goroutine.
func (m *Meter) OnUpdate(callback func(Result)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Meter) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// notifyCallbacks invokes all registered callbacks without holding any locks.
func (m *Meter) notifyCallbacks(res Result) {
	m.cbMu.RLock()
	callbacks := make([]func(Result), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(res)
		}
	}
}
