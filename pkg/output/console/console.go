package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/itohio/gomso/pkg/output"
)

// ConsoleOutput prints one line per cycle to stdout.
type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(res meter.Result) error {
	fmt.Println(FormatResult(res))
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

// FormatResult renders res with SI-prefixed integrals; inactive channels print as "-".
func FormatResult(res meter.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s averages=%d counter=%d took=%s",
		res.Timestamp.Format(time.RFC3339), res.Averages, res.Counter, res.Duration.Round(time.Millisecond))
	for i, v := range res.Integrals {
		if !res.Active[i] {
			fmt.Fprintf(&b, " ch%d=-", i+1)
			continue
		}
		fmt.Fprintf(&b, " ch%d=%s", i+1, humanize.SIWithDigits(v, 3, "Vs"))
	}
	return b.String()
}
