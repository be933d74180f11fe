package mso

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultPort is the raw socket port of Rigol instruments.
const DefaultPort = "5555"

// TCP is a raw socket connection to the instrument.
type TCP struct {
	*lineConn
	addr string
}

// DialTCP connects to addr. A missing port defaults to DefaultPort.
// timeout bounds the dial and every subsequent command or query.
func DialTCP(ctx context.Context, addr string, timeout time.Duration, opts ...Option) (*TCP, error) {
	o := applyOptions(opts)

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	o.logger.Info("connected", "addr", addr)

	return &TCP{
		lineConn: newLineConn(conn, conn, o.logger, deadlineAfter(conn.SetDeadline, timeout)),
		addr:     addr,
	}, nil
}

// Addr returns the remote address.
func (t *TCP) Addr() string {
	return t.addr
}
