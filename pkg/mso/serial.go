package mso

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when OpenSerial is given a zero baud rate.
const DefaultBaudRate = 115200

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is a connection to the instrument through a serial adapter.
type Serial struct {
	*lineConn
	port string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// OpenSerial opens port at baudRate. timeout bounds every reply read.
func OpenSerial(port string, baudRate int, timeout time.Duration, opts ...Option) (*Serial, error) {
	o := applyOptions(opts)

	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if timeout > 0 {
		if err := p.SetReadTimeout(timeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", port, err)
		}
	}
	if err := p.ResetInputBuffer(); err != nil {
		o.logger.Warn("failed to flush input", "port", port, "err", err)
	}

	o.logger.Info("connected", "port", port, "baud", baudRate)

	return &Serial{
		lineConn: newLineConn(p, timeoutReader{p}, o.logger, nil),
		port:     port,
	}, nil
}

// Name returns the serial port name.
func (s *Serial) Name() string {
	return s.port
}

// timeoutReader turns the empty read a serial port returns on read timeout
// into ErrTimeout.
type timeoutReader struct {
	p serial.Port
}

func (r timeoutReader) Read(b []byte) (int, error) {
	n, err := r.p.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
