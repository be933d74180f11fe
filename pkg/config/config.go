package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/itohio/gomso/pkg/protocol"
	"gopkg.in/yaml.v3"
)

// Transport types.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Output types.
const (
	OutputConsole = "console"
	OutputMQTT    = "mqtt"
)

// NumChannels is the number of analog channels on the instrument.
const NumChannels = 4

// Config represents the application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Instrument  InstrumentConfig  `yaml:"instrument"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Outputs     []OutputConfig    `yaml:"outputs"`
	Store       StoreConfig       `yaml:"store"`
	Mock        MockConfig        `yaml:"mock"`
}

// InstrumentConfig describes how to reach the oscilloscope.
type InstrumentConfig struct {
	Transport  string        `yaml:"transport"`   // tcp or serial
	Address    string        `yaml:"address"`     // host:port for tcp
	SerialPort string        `yaml:"serial_port"` // e.g. /dev/ttyUSB0
	BaudRate   int           `yaml:"baud_rate"`
	Timeout    time.Duration `yaml:"timeout"` // per command/query
}

// AcquisitionConfig contains measurement cycle parameters.
type AcquisitionConfig struct {
	Points         int           `yaml:"points"`          // waveform points per channel
	Averages       int           `yaml:"averages"`        // hardware averages (0 = keep instrument setting)
	PollInterval   time.Duration `yaml:"poll_interval"`   // completion counter poll period
	SettleDelay    time.Duration `yaml:"settle_delay"`    // wait after changing the average count
	AverageTimeout time.Duration `yaml:"average_timeout"` // upper bound for one averaging run
	Interval       time.Duration `yaml:"interval"`        // pause between measurement cycles
	MeasureOnRead  bool          `yaml:"measure_on_read"` // reading the first active integral triggers a cycle
}

// ChannelConfig contains per-channel analysis regions:
// [background start, background end, signal start, signal end].
type ChannelConfig struct {
	Regions []int `yaml:"regions"`
}

// OutputConfig selects a result sink.
type OutputConfig struct {
	Type string      `yaml:"type"`
	MQTT *MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Server      string `yaml:"server"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	Topic       string `yaml:"topic"`
	Retain      bool   `yaml:"retain"`
	TracePoints int    `yaml:"trace_points"` // publish a decimated trace per channel (0 = off)
}

// StoreConfig contains the result log location. An empty path disables the log.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MockConfig configures the simulated instrument.
type MockConfig struct {
	Channels        []int         `yaml:"channels"`         // initially displayed channels
	Averages        int           `yaml:"averages"`         // initial average count
	SampleInterval  float64       `yaml:"sample_interval"`  // seconds per point
	Baseline        float64       `yaml:"baseline"`         // V
	Amplitude       float64       `yaml:"amplitude"`        // pulse height (V)
	PulseStart      int           `yaml:"pulse_start"`      // first pulse sample
	PulseWidth      int           `yaml:"pulse_width"`      // pulse length in samples
	NoiseLevel      float64       `yaml:"noise_level"`      // V, divided by sqrt(averages)
	AcquisitionRate time.Duration `yaml:"acquisition_rate"` // time per triggered acquisition
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Instrument: InstrumentConfig{
			Transport:  TransportTCP,
			Address:    "192.168.1.176:5555",
			SerialPort: "/dev/ttyUSB0",
			BaudRate:   115200,
			Timeout:    5 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			Points:         1000,
			Averages:       0,
			PollInterval:   30 * time.Millisecond,
			SettleDelay:    100 * time.Millisecond,
			AverageTimeout: time.Minute,
			Interval:       time.Second,
			MeasureOnRead:  true,
		},
		Channels: []ChannelConfig{
			{Regions: []int{0, 100, 200, 1000}},
			{Regions: []int{0, 100, 200, 1000}},
			{Regions: []int{0, 100, 200, 1000}},
			{Regions: []int{0, 100, 200, 1000}},
		},
		Outputs: []OutputConfig{
			{Type: OutputConsole},
		},
		Mock: MockConfig{
			Channels:        []int{1},
			Averages:        16,
			SampleInterval:  1e-6,
			Baseline:        0.0,
			Amplitude:       0.5,
			PulseStart:      400,
			PulseWidth:      200,
			NoiseLevel:      0.01,
			AcquisitionRate: time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Instrument.Transport) {
	case TransportTCP:
		if c.Instrument.Address == "" {
			errs = append(errs, errors.New("instrument.address is required for tcp transport"))
		}
	case TransportSerial:
		if c.Instrument.SerialPort == "" {
			errs = append(errs, errors.New("instrument.serial_port is required for serial transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown instrument.transport %q", c.Instrument.Transport))
	}

	if c.Acquisition.Points <= 0 {
		errs = append(errs, fmt.Errorf("acquisition.points must be > 0, got %d", c.Acquisition.Points))
	}
	if c.Acquisition.Averages != 0 && !protocol.ValidAverageCount(c.Acquisition.Averages) {
		errs = append(errs, fmt.Errorf("acquisition.averages must be a power of two up to 65536, got %d", c.Acquisition.Averages))
	}

	if len(c.Channels) > NumChannels {
		errs = append(errs, fmt.Errorf("at most %d channels can be configured, got %d", NumChannels, len(c.Channels)))
	}
	for i, ch := range c.Channels {
		if len(ch.Regions) != 4 {
			errs = append(errs, fmt.Errorf("channels[%d].regions needs 4 values, got %d", i, len(ch.Regions)))
		}
	}

	for i, out := range c.Outputs {
		switch strings.ToLower(out.Type) {
		case OutputConsole:
		case OutputMQTT:
			if out.MQTT == nil || out.MQTT.Server == "" {
				errs = append(errs, fmt.Errorf("outputs[%d]: mqtt.server is required", i))
			}
		default:
			errs = append(errs, fmt.Errorf("outputs[%d]: unknown type %q", i, out.Type))
		}
	}

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if c.Instrument.Transport == "" {
		c.Instrument.Transport = def.Instrument.Transport
	}
	if c.Instrument.BaudRate == 0 {
		c.Instrument.BaudRate = def.Instrument.BaudRate
	}
	if c.Instrument.Timeout == 0 {
		c.Instrument.Timeout = def.Instrument.Timeout
	}

	if c.Acquisition.Points == 0 {
		c.Acquisition.Points = def.Acquisition.Points
	}
	if c.Acquisition.PollInterval == 0 {
		c.Acquisition.PollInterval = def.Acquisition.PollInterval
	}
	if c.Acquisition.SettleDelay == 0 {
		c.Acquisition.SettleDelay = def.Acquisition.SettleDelay
	}
	if c.Acquisition.AverageTimeout == 0 {
		c.Acquisition.AverageTimeout = def.Acquisition.AverageTimeout
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	for i := range c.Outputs {
		if c.Outputs[i].MQTT != nil {
			if c.Outputs[i].MQTT.ClientID == "" {
				c.Outputs[i].MQTT.ClientID = "gomso"
			}
			if c.Outputs[i].MQTT.Topic == "" {
				c.Outputs[i].MQTT.Topic = "mso5204"
			}
		}
	}

	if c.Mock.SampleInterval == 0 {
		c.Mock.SampleInterval = def.Mock.SampleInterval
	}
	if c.Mock.Averages == 0 {
		c.Mock.Averages = def.Mock.Averages
	}
	if c.Mock.AcquisitionRate == 0 {
		c.Mock.AcquisitionRate = def.Mock.AcquisitionRate
	}
}
