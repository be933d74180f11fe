package mso

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// lineConn frames commands and replies as newline terminated text.
// One command is in flight at a time.
type lineConn struct {
	mu     sync.Mutex
	rw     io.ReadWriteCloser
	r      *bufio.Reader
	logger *slog.Logger
	closed bool

	// failed is set once a reply may be left unread on the stream; the
	// framing can no longer be trusted after that.
	failed error

	// deadline arms the per-operation timeout; nil when the underlying
	// stream handles timeouts itself.
	deadline func() error
}

func newLineConn(rw io.ReadWriteCloser, r io.Reader, logger *slog.Logger, deadline func() error) *lineConn {
	return &lineConn{
		rw:       rw,
		r:        bufio.NewReaderSize(r, 64*1024),
		logger:   logger,
		deadline: deadline,
	}
}

// Write sends a command that has no reply.
func (c *lineConn) Write(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return err
	}
	return c.send(cmd)
}

// Query sends q and returns the reply line without its terminator.
func (c *lineConn) Query(q string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.usable(); err != nil {
		return "", err
	}
	if err := c.send(q); err != nil {
		return "", err
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		err = fmt.Errorf("failed to read reply to %s: %w", q, timeoutError(err))
		c.failed = err
		c.logger.Warn("connection out of sync", "err", err)
		return "", err
	}
	reply := strings.TrimRight(line, "\r\n")
	c.logger.Debug("reply", "query", q, "bytes", len(reply))
	return reply, nil
}

// Close closes the underlying stream.
func (c *lineConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.rw.Close()
}

func (c *lineConn) usable() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.failed != nil:
		return fmt.Errorf("%w: %w", ErrClosed, c.failed)
	}
	return nil
}

func (c *lineConn) send(cmd string) error {
	if c.deadline != nil {
		if err := c.deadline(); err != nil {
			return fmt.Errorf("failed to set deadline: %w", err)
		}
	}
	c.logger.Debug("send", "cmd", cmd)
	if _, err := io.WriteString(c.rw, cmd+"\n"); err != nil {
		err = fmt.Errorf("failed to send %s: %w", cmd, timeoutError(err))
		c.failed = err
		return err
	}
	return nil
}

func timeoutError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return err
}

// deadlineAfter returns a func arming set with now+timeout, or nil when
// timeout is not positive.
func deadlineAfter(set func(time.Time) error, timeout time.Duration) func() error {
	if timeout <= 0 {
		return nil
	}
	return func() error {
		return set(time.Now().Add(timeout))
	}
}
