package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	c := NewConsole()
	defer c.Close()

	res := meter.Result{
		Timestamp: time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Averages:  16,
		Counter:   17,
		Active:    [4]bool{true, false, true, false},
		Integrals: [4]float64{6.4e-5, 0, -2.5e-9, 0},
	}

	out := captureStdout(func() { require.NoError(t, c.Publish(res)) })

	want := "2025-09-19T14:41:54Z averages=16 counter=17 took=1.5s" +
		" ch1=" + humanize.SIWithDigits(6.4e-5, 3, "Vs") +
		" ch2=-" +
		" ch3=" + humanize.SIWithDigits(-2.5e-9, 3, "Vs") +
		" ch4=-\n"
	assert.Equal(t, want, out)
	assert.Contains(t, out, "µVs")
}
