package mso

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveLines accepts one connection and answers queries from replies.
// Lines without a reply are recorded and not answered.
func serveLines(t *testing.T, replies map[string]string) (string, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(received)
				return
			}
			line = strings.TrimSpace(line)
			received <- line
			if reply, ok := replies[line]; ok {
				conn.Write([]byte(reply + "\n"))
			}
		}
	}()

	return ln.Addr().String(), received
}

func TestTCP_WriteAndQuery(t *testing.T) {
	addr, received := serveLines(t, map[string]string{
		protocol.Identify:     MockIdentity,
		protocol.AverageCount: "64",
	})

	conn, err := DialTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(protocol.CounterClear))
	assert.Equal(t, protocol.CounterClear, <-received)

	reply, err := conn.Query(protocol.AverageCount)
	require.NoError(t, err)
	assert.Equal(t, "64", reply)

	idn, err := Identify(conn)
	require.NoError(t, err)
	assert.Equal(t, MockIdentity, idn)
	assert.Equal(t, addr, conn.Addr())
}

func TestTCP_QueryTimeout(t *testing.T) {
	addr, _ := serveLines(t, nil)

	conn, err := DialTCP(context.Background(), addr, 50*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Query(protocol.CounterCurrent)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTCP_LateReplyIsNotTakenForNextAnswer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch strings.TrimSpace(line) {
			case protocol.ChannelDisplay(1):
				time.Sleep(150 * time.Millisecond)
				conn.Write([]byte("1\n"))
			case protocol.ChannelDisplay(2):
				conn.Write([]byte("0\n"))
			}
		}
	}()

	conn, err := DialTCP(context.Background(), ln.Addr().String(), 100*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Query(protocol.ChannelDisplay(1))
	require.ErrorIs(t, err, ErrTimeout)

	time.Sleep(100 * time.Millisecond)

	reply, err := conn.Query(protocol.ChannelDisplay(2))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, reply)
	assert.ErrorIs(t, conn.Write(protocol.SingleTrigger), ErrClosed)
}

func TestTCP_Closed(t *testing.T) {
	addr, _ := serveLines(t, nil)

	conn, err := DialTCP(context.Background(), addr, time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Write(protocol.SingleTrigger), ErrClosed)
	_, err = conn.Query(protocol.Identify)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialTCP_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialTCP(context.Background(), addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestIdentify_UnknownInstrument(t *testing.T) {
	m := NewMock(nil)
	m.SetReply(protocol.Identify, "KEYSIGHT TECHNOLOGIES,DSOX1204G,0,0")

	_, err := Identify(m)
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestMock_Display(t *testing.T) {
	m := NewMock(&config.MockConfig{Channels: []int{1, 3}, Averages: 16})

	for ch, want := range map[int]string{1: "1", 2: "0", 3: "1", 4: "0"} {
		reply, err := m.Query(protocol.ChannelDisplay(ch))
		require.NoError(t, err)
		assert.Equal(t, want, reply, "channel %d", ch)
	}

	require.NoError(t, m.Write(protocol.SetChannelDisplay(2, true)))
	require.NoError(t, m.Write(protocol.SetChannelDisplay(1, false)))

	reply, err := m.Query(protocol.ChannelDisplay(2))
	require.NoError(t, err)
	assert.Equal(t, "1", reply)
	reply, err = m.Query(protocol.ChannelDisplay(1))
	require.NoError(t, err)
	assert.Equal(t, "0", reply)
}

func TestMock_AverageCount(t *testing.T) {
	m := NewMock(nil)
	assert.Equal(t, 16, m.Averages())

	require.NoError(t, m.Write(protocol.SetAverageCount(64)))
	reply, err := m.Query(protocol.AverageCount)
	require.NoError(t, err)
	assert.Equal(t, "64", reply)

	require.NoError(t, m.Write(protocol.SetAverageCount(3)))
	assert.Equal(t, 64, m.Averages())
}

func TestMock_Counter(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMock(&config.MockConfig{Averages: 4, AcquisitionRate: 10 * time.Millisecond})
	m.now = func() time.Time { return now }

	count := func() string {
		reply, err := m.Query(protocol.CounterCurrent)
		require.NoError(t, err)
		return reply
	}

	require.NoError(t, m.Write(protocol.CounterEnable))
	require.NoError(t, m.Write(protocol.AcquireAverage))
	assert.Equal(t, "0", count())

	now = now.Add(35 * time.Millisecond)
	assert.Equal(t, "3", count())

	require.NoError(t, m.Write(protocol.CounterClear))
	assert.Equal(t, "0", count())

	now = now.Add(50 * time.Millisecond)
	m.Stall(true)
	assert.Equal(t, "0", count())
	m.Stall(false)
	assert.Equal(t, "5", count())

	require.NoError(t, m.Write(protocol.AcquireNormal))
	assert.Equal(t, "0", count())
}

func TestMock_Waveform(t *testing.T) {
	m := NewMock(&config.MockConfig{
		Channels:       []int{1},
		Averages:       1,
		SampleInterval: 2e-9,
		Baseline:       0.1,
		Amplitude:      1.0,
		PulseStart:     10,
		PulseWidth:     5,
	})

	require.NoError(t, m.Write(protocol.WaveformSource(1)))
	require.NoError(t, m.Write(protocol.WaveformPoints(20)))

	dt, err := m.Query(protocol.WaveformXInc)
	require.NoError(t, err)
	v, err := protocol.ParseFloat(dt)
	require.NoError(t, err)
	assert.InDelta(t, 2e-9, v, 1e-15)

	c := protocol.NewClient(m)
	samples, err := c.QueryWaveform()
	require.NoError(t, err)
	require.Len(t, samples, 20)
	assert.InDelta(t, 0.1, samples[0], 1e-9)
	assert.InDelta(t, 1.1, samples[12], 1e-9)
	assert.InDelta(t, 0.1, samples[15], 1e-9)

	m.SetTrace(2, []float64{1, 2, 3})
	require.NoError(t, m.Write(protocol.WaveformSource(2)))
	samples, err = c.QueryWaveform()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, samples)

	assert.Len(t, m.ReadCounters(), 2)
}

func TestMock_Unsupported(t *testing.T) {
	m := NewMock(nil)

	assert.Error(t, m.Write(":TRIG:MODE EDGE"))
	assert.Error(t, m.Write(protocol.WaveformSource(5)))
	_, err := m.Query(":MEAS:VPP?")
	assert.Error(t, err)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Write(protocol.SingleTrigger), ErrClosed)
}
