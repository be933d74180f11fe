package mso

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/protocol"
)

// MockIdentity is the *IDN? reply of the simulated instrument.
const MockIdentity = "RIGOL TECHNOLOGIES,MSO5204,MS5A000000000,00.01.03.00.03"

// Mock simulates an MSO5204 for testing and development.
// The completion counter advances by one every AcquisitionRate while the
// instrument is in average mode and the counter is enabled.
type Mock struct {
	cfg config.MockConfig

	mu     sync.Mutex
	closed bool
	now    func() time.Time
	rng    *rand.Rand

	display        [5]bool
	traces         [5][]float64
	averages       int
	averaging      bool
	counterEnabled bool
	counterStart   time.Time
	stalled        bool
	source         int
	points         int
	replies        map[string]string

	commands     []string
	readCounters []int
}

// NewMock creates a simulated instrument. A nil cfg uses config defaults.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	m := &Mock{
		cfg:      *cfg,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(1, 2)),
		averages: cfg.Averages,
		source:   1,
		points:   1000,
		replies:  make(map[string]string),
	}
	if !protocol.ValidAverageCount(m.averages) {
		m.averages = 1
	}
	if m.cfg.AcquisitionRate <= 0 {
		m.cfg.AcquisitionRate = time.Millisecond
	}
	if m.cfg.SampleInterval <= 0 {
		m.cfg.SampleInterval = 1e-6
	}
	for _, ch := range cfg.Channels {
		if ch >= 1 && ch <= 4 {
			m.display[ch] = true
		}
	}
	m.counterStart = m.now()
	return m
}

// SetTrace replaces the generated waveform of channel ch with samples.
func (m *Mock) SetTrace(ch int, samples []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[ch] = append([]float64(nil), samples...)
}

// SetDisplay turns channel ch on or off as if from the front panel.
func (m *Mock) SetDisplay(ch int, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display[ch] = on
}

// SetReply forces the reply to query q.
func (m *Mock) SetReply(q, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[q] = reply
}

// Stall freezes the completion counter, as when the trigger never fires.
func (m *Mock) Stall(stalled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalled = stalled
}

// Commands returns a copy of every command and query received.
func (m *Mock) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// ReadCounters returns the completion counter observed at each :WAV:DATA? query.
func (m *Mock) ReadCounters() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.readCounters...)
}

// Averages returns the current average count.
func (m *Mock) Averages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.averages
}

// Close stops the simulated instrument.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Write handles a command that has no reply.
func (m *Mock) Write(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.commands = append(m.commands, cmd)

	head, arg, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	switch head {
	case ":ACQ:TYPE":
		m.averaging = arg == "AVER"
		m.counterStart = m.now()
	case ":ACQ:AVER":
		if n, err := strconv.Atoi(arg); err == nil && protocol.ValidAverageCount(n) {
			m.averages = n
		}
	case ":COUN:MODE", ":SING":
	case ":COUN:TOT:ENAB":
		m.counterEnabled = arg == "ON" || arg == "1"
	case ":COUN:TOT:CLE":
		m.counterStart = m.now()
	case ":WAV:SOUR":
		n, err := strconv.Atoi(strings.TrimPrefix(arg, "CHAN"))
		if err != nil || n < 1 || n > 4 {
			return fmt.Errorf("mock: bad source %q", arg)
		}
		m.source = n
	case ":WAV:MODE", ":WAV:FORM":
	case ":WAV:POIN":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("mock: bad point count %q", arg)
		}
		m.points = n
	default:
		ch, ok := displayChannel(head)
		if !ok {
			return fmt.Errorf("mock: unsupported command %q", cmd)
		}
		m.display[ch] = arg == "1" || arg == "ON"
	}
	return nil
}

// Query handles a query and returns its reply.
func (m *Mock) Query(q string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}
	m.commands = append(m.commands, q)

	if q == protocol.WaveformDataReq {
		m.readCounters = append(m.readCounters, m.counter())
	}
	if reply, ok := m.replies[q]; ok {
		return reply, nil
	}

	switch q {
	case protocol.Identify:
		return MockIdentity, nil
	case protocol.AverageCount:
		return strconv.Itoa(m.averages), nil
	case protocol.CounterEnabled:
		return boolReply(m.counterEnabled), nil
	case protocol.CounterCurrent:
		return strconv.Itoa(m.counter()), nil
	case protocol.WaveformXInc:
		return strconv.FormatFloat(m.cfg.SampleInterval, 'E', 6, 64), nil
	case protocol.WaveformDataReq:
		return protocol.EncodeWaveform(m.waveform(m.source)), nil
	}

	if ch, ok := displayChannel(strings.TrimSuffix(q, "?")); ok && strings.HasSuffix(q, "?") {
		return boolReply(m.display[ch]), nil
	}
	return "", fmt.Errorf("mock: unsupported query %q", q)
}

func (m *Mock) counter() int {
	if !m.averaging || !m.counterEnabled || m.stalled {
		return 0
	}
	return int(m.now().Sub(m.counterStart) / m.cfg.AcquisitionRate)
}

// waveform returns the trace of channel ch. Generated traces are a flat
// baseline with a rectangular pulse; noise shrinks with the average count.
func (m *Mock) waveform(ch int) []float64 {
	if t := m.traces[ch]; t != nil {
		return t
	}

	out := make([]float64, m.points)
	noise := m.cfg.NoiseLevel / math.Sqrt(float64(m.averages))
	for i := range out {
		v := m.cfg.Baseline
		if i >= m.cfg.PulseStart && i < m.cfg.PulseStart+m.cfg.PulseWidth {
			v += m.cfg.Amplitude
		}
		if noise > 0 {
			v += m.rng.NormFloat64() * noise
		}
		out[i] = v
	}
	return out
}

// displayChannel parses ":CHANn:DISP" and returns n.
func displayChannel(head string) (int, bool) {
	rest, ok := strings.CutPrefix(head, ":CHAN")
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, ":DISP")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > 4 {
		return 0, false
	}
	return n, true
}

func boolReply(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
