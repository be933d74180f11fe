package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	messages     []message
	err          error
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.messages = append(f.messages, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeClient) Disconnect(quiesce uint) { f.disconnected = true }

func testResult() meter.Result {
	trace := make([]float64, 1000)
	for i := range trace {
		trace[i] = float64(i)
	}
	return meter.Result{
		Timestamp: time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC),
		Duration:  120 * time.Millisecond,
		Averages:  16,
		Counter:   18,
		Active:    [4]bool{true, false, false, false},
		Integrals: [4]float64{6.4e-5, 0, 0, 0},
		Traces:    [4][]float64{trace},
	}
}

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	out := newOutput(client, config.MQTTConfig{Topic: "lab/scope", Retain: true})

	require.NoError(t, out.Publish(testResult()))
	require.Len(t, client.messages, 2)

	summary := client.messages[0]
	assert.Equal(t, "lab/scope", summary.topic)
	assert.True(t, summary.retained)

	var s map[string]interface{}
	require.NoError(t, json.Unmarshal(summary.payload, &s))
	assert.Equal(t, "2025-09-19T14:41:54Z", s["timestamp"])
	assert.Equal(t, float64(16), s["averages"])
	assert.Equal(t, float64(120), s["duration_ms"])
	assert.Equal(t, map[string]interface{}{"ch1": 6.4e-5}, s["integrals"])

	ch := client.messages[1]
	assert.Equal(t, "lab/scope/channel/1", ch.topic)
	var c map[string]interface{}
	require.NoError(t, json.Unmarshal(ch.payload, &c))
	assert.Equal(t, float64(1), c["channel"])
	assert.Equal(t, 6.4e-5, c["integral"])
	assert.Equal(t, "Vs", c["unit"])
}

func TestPublish_Trace(t *testing.T) {
	client := &fakeClient{}
	out := newOutput(client, config.MQTTConfig{TracePoints: 100})

	require.NoError(t, out.Publish(testResult()))
	require.Len(t, client.messages, 3)

	trace := client.messages[2]
	assert.Equal(t, "mso5204/channel/1/trace", trace.topic)
	var values []float64
	require.NoError(t, json.Unmarshal(trace.payload, &values))
	assert.Len(t, values, 100)
	assert.Equal(t, 4.5, values[0])
}

func TestPublish_Error(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	out := newOutput(client, config.MQTTConfig{})

	err := out.Publish(testResult())
	assert.ErrorContains(t, err, "not connected")
	assert.Len(t, client.messages, 1)
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	out := newOutput(client, config.MQTTConfig{})
	require.NoError(t, out.Close())
	assert.True(t, client.disconnected)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "mso5204/channel/3", ChannelTopic("mso5204", 3))
	assert.Equal(t, "mso5204/channel/3/trace", TraceTopic("mso5204", 3))
}
