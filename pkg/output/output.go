// Package output defines sinks for measurement results.
package output

import "github.com/itohio/gomso/pkg/meter"

// Output publishes the result of every measurement cycle.
type Output interface {
	Publish(meter.Result) error
	Close() error
}
