package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/itohio/gomso/pkg/output"
	"github.com/itohio/gomso/pkg/waveform"
)

const (
	DefaultClientID    = "gomso"
	DefaultTopic       = "mso5204"
	perChannelTopicFmt = "%s/channel/%d"
	traceTopicFmt      = "%s/channel/%d/trace"
	unitVoltSeconds    = "Vs"
)

// publisher is the part of mqtt.Client used here.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client      publisher
	topic       string
	retain      bool
	tracePoints int
	trace       []float64
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	return newOutput(client, cfg), nil
}

func newOutput(client publisher, cfg config.MQTTConfig) *MQTTOutput {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTTOutput{
		client:      client,
		topic:       topic,
		retain:      cfg.Retain,
		tracePoints: cfg.TracePoints,
	}
}

// Publish sends a summary on the base topic, one message per active channel
// and, when enabled, a decimated trace per active channel.
func (m *MQTTOutput) Publish(res meter.Result) error {
	if err := m.publishJSON(m.topic, summaryPayload(res)); err != nil {
		return err
	}

	for i, active := range res.Active {
		if !active {
			continue
		}
		n := i + 1
		if err := m.publishJSON(ChannelTopic(m.topic, n), channelPayload(res, i)); err != nil {
			return err
		}
		if m.tracePoints > 0 && len(res.Traces[i]) > 0 {
			m.trace = waveform.Downsample(m.trace, res.Traces[i], m.tracePoints)
			if err := m.publishJSON(TraceTopic(m.topic, n), m.trace); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

// ChannelTopic returns the topic carrying the integral of channel n.
func ChannelTopic(base string, n int) string {
	return fmt.Sprintf(perChannelTopicFmt, base, n)
}

// TraceTopic returns the topic carrying the decimated trace of channel n.
func TraceTopic(base string, n int) string {
	return fmt.Sprintf(traceTopicFmt, base, n)
}

func summaryPayload(res meter.Result) map[string]interface{} {
	integrals := make(map[string]float64, len(res.Integrals))
	for i, v := range res.Integrals {
		if res.Active[i] {
			integrals[fmt.Sprintf("ch%d", i+1)] = v
		}
	}
	return map[string]interface{}{
		"timestamp":   res.Timestamp.UTC().Format(time.RFC3339Nano),
		"averages":    res.Averages,
		"counter":     res.Counter,
		"duration_ms": res.Duration.Milliseconds(),
		"integrals":   integrals,
		"unit":        unitVoltSeconds,
	}
}

func channelPayload(res meter.Result, i int) map[string]interface{} {
	return map[string]interface{}{
		"timestamp": res.Timestamp.UTC().Format(time.RFC3339Nano),
		"channel":   i + 1,
		"integral":  res.Integrals[i],
		"unit":      unitVoltSeconds,
		"averages":  res.Averages,
	}
}

func (m *MQTTOutput) publishJSON(topic string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := m.client.Publish(topic, 0, m.retain, b)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}
