// Package mso provides line-oriented connections to a Rigol MSO5000 series
// oscilloscope and a simulated instrument speaking the same command set.
package mso

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/itohio/gomso/pkg/protocol"
)

var (
	// ErrClosed is returned by operations on a closed connection, or one that
	// lost a reply and can no longer pair queries with answers.
	ErrClosed = errors.New("connection closed")
	// ErrTimeout is returned when the instrument does not answer in time.
	ErrTimeout = errors.New("instrument did not respond in time")
	// ErrUnknownInstrument is returned by Identify when the peer is not a Rigol instrument.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Conn defines the interface for instrument connections (real or simulated).
type Conn interface {
	protocol.Transport
	io.Closer
}

// Ensure all connection kinds implement Conn.
var (
	_ Conn = (*TCP)(nil)
	_ Conn = (*Serial)(nil)
	_ Conn = (*Mock)(nil)
)

// Option configures a connection.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to trace commands at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Identify queries *IDN? and returns the identification string.
func Identify(conn Conn) (string, error) {
	idn, err := conn.Query(protocol.Identify)
	if err != nil {
		return "", fmt.Errorf("failed to identify instrument: %w", err)
	}
	idn = strings.TrimSpace(idn)
	if !strings.Contains(strings.ToUpper(idn), "RIGOL") {
		return idn, fmt.Errorf("%w: %q", ErrUnknownInstrument, idn)
	}
	return idn, nil
}
