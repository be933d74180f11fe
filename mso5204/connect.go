package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/mso"
)

// connect opens the instrument link selected by cfg, or the simulated
// instrument when useMock is set, and checks that a Rigol answers.
func connect(ctx context.Context, cfg *config.Config, useMock bool, logger *slog.Logger) (mso.Conn, error) {
	var conn mso.Conn

	switch {
	case useMock:
		conn = mso.NewMock(&cfg.Mock)
		logger.Info("using simulated instrument")
	case strings.ToLower(cfg.Instrument.Transport) == config.TransportSerial:
		s, err := mso.OpenSerial(cfg.Instrument.SerialPort, cfg.Instrument.BaudRate, cfg.Instrument.Timeout, mso.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		conn = s
	default:
		t, err := mso.DialTCP(ctx, cfg.Instrument.Address, cfg.Instrument.Timeout, mso.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		conn = t
	}

	idn, err := mso.Identify(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	logger.Info("instrument identified", "idn", idn)

	return conn, nil
}
