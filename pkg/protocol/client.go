package protocol

import "fmt"

// Transport exchanges text lines with the instrument. Write sends a command
// that has no reply; Query sends a query and returns one reply line.
type Transport interface {
	Write(cmd string) error
	Query(q string) (string, error)
}

// Client issues commands and typed queries over a Transport.
// It never sleeps or retries; timing policy belongs to the caller.
type Client struct {
	t Transport
}

// NewClient creates a Client using t.
func NewClient(t Transport) *Client {
	return &Client{t: t}
}

// Command sends each command in order and stops at the first failure.
func (c *Client) Command(cmds ...string) error {
	for _, cmd := range cmds {
		if err := c.t.Write(cmd); err != nil {
			return fmt.Errorf("command %s: %w", cmd, err)
		}
	}
	return nil
}

// QueryString returns the raw reply to q.
func (c *Client) QueryString(q string) (string, error) {
	reply, err := c.t.Query(q)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", q, err)
	}
	return reply, nil
}

// QueryBool returns a boolean-as-integer reply.
func (c *Client) QueryBool(q string) (bool, error) {
	reply, err := c.QueryString(q)
	if err != nil {
		return false, err
	}
	v, err := ParseBool(reply)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", q, err)
	}
	return v, nil
}

// QueryFloat returns a floating point reply.
func (c *Client) QueryFloat(q string) (float64, error) {
	reply, err := c.QueryString(q)
	if err != nil {
		return 0, err
	}
	v, err := ParseFloat(reply)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", q, err)
	}
	return v, nil
}

// QueryCount returns an integer reply.
func (c *Client) QueryCount(q string) (int, error) {
	reply, err := c.QueryString(q)
	if err != nil {
		return 0, err
	}
	v, err := ParseCount(reply)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", q, err)
	}
	return v, nil
}

// QueryWaveform requests the current waveform source data and decodes it.
func (c *Client) QueryWaveform() ([]float64, error) {
	reply, err := c.QueryString(WaveformDataReq)
	if err != nil {
		return nil, err
	}
	values, err := DecodeWaveform(reply)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", WaveformDataReq, err)
	}
	return values, nil
}
