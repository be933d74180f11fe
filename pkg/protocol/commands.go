// Package protocol builds the ASCII commands understood by Rigol MSO5000 series
// oscilloscopes and decodes their replies.
package protocol

import "fmt"

// Fixed commands and queries.
const (
	Identify = "*IDN?"

	AcquireNormal   = ":ACQ:TYPE NORM"
	AcquireAverage  = ":ACQ:TYPE AVER"
	AverageCount    = ":ACQ:AVER?"
	SingleTrigger   = ":SING"
	CounterTotal    = ":COUN:MODE TOT"
	CounterEnable   = ":COUN:TOT:ENAB ON"
	CounterEnabled  = ":COUN:TOT:ENAB?"
	CounterClear    = ":COUN:TOT:CLE"
	CounterCurrent  = ":COUN:CURR?"
	WaveformNormal  = ":WAV:MODE NORM"
	WaveformASCII   = ":WAV:FORM ASCII"
	WaveformXInc    = ":WAV:XINC?"
	WaveformDataReq = ":WAV:DATA?"
)

// ChannelDisplay queries whether channel n is displayed.
func ChannelDisplay(n int) string {
	return fmt.Sprintf(":CHAN%d:DISP?", n)
}

// SetChannelDisplay turns channel n on or off.
func SetChannelDisplay(n int, on bool) string {
	v := 0
	if on {
		v = 1
	}
	return fmt.Sprintf(":CHAN%d:DISP %d", n, v)
}

// WaveformSource selects channel n as the waveform transfer source.
func WaveformSource(n int) string {
	return fmt.Sprintf(":WAV:SOUR CHAN%d", n)
}

// WaveformPoints sets the number of points transferred by :WAV:DATA?.
func WaveformPoints(points int) string {
	return fmt.Sprintf(":WAV:POIN %d", points)
}

// SetAverageCount sets the number of hardware averages.
func SetAverageCount(count int) string {
	return fmt.Sprintf(":ACQ:AVER %d", count)
}
