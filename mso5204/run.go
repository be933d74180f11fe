package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/device"
	"github.com/itohio/gomso/pkg/meter"
	"github.com/itohio/gomso/pkg/output"
	"github.com/itohio/gomso/pkg/output/console"
	"github.com/itohio/gomso/pkg/output/mqtt"
	"github.com/itohio/gomso/pkg/protocol"
	"github.com/itohio/gomso/pkg/scope"
	"github.com/itohio/gomso/pkg/store"
)

// run connects to the instrument, applies the configured averages and
// regions and measures count cycles (count < 0 until ctx is done).
func run(ctx context.Context, cfg *config.Config, useMock bool, count int, logger *slog.Logger) error {
	conn, err := connect(ctx, cfg, useMock, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := scope.New(conn,
		scope.WithLogger(logger),
		scope.WithPoints(cfg.Acquisition.Points),
		scope.WithSettleDelay(cfg.Acquisition.SettleDelay),
	)
	if err := session.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize instrument: %w", err)
	}

	m := meter.New(session,
		meter.WithLogger(logger),
		meter.WithPollInterval(cfg.Acquisition.PollInterval),
		meter.WithTimeout(cfg.Acquisition.AverageTimeout),
	)
	dev := device.New(m,
		device.WithLogger(logger),
		device.WithPoints(cfg.Acquisition.Points),
		device.WithMeasureOnRead(cfg.Acquisition.MeasureOnRead),
	)

	if err := applyConfig(ctx, dev, cfg); err != nil {
		return err
	}

	outputs, err := buildOutputs(cfg, logger)
	if err != nil {
		return err
	}
	defer closeOutputs(outputs, logger)

	m.OnUpdate(func(res meter.Result) {
		logger.Debug("cycle",
			"averages", res.Averages,
			"took", res.Duration,
			"integrals", formatIntegrals(res),
		)
		for _, out := range outputs {
			if err := out.Publish(res); err != nil {
				logger.Warn("failed to publish result", "err", err)
			}
		}
	})

	logger.Info("measuring", "active", session.ActiveChannels(), "averages", session.AverageCount(), "cycles", count)
	return m.Run(ctx, cfg.Acquisition.Interval, count)
}

// applyConfig pushes the configured average count and channel regions
// through the attribute interface.
func applyConfig(ctx context.Context, dev *device.Device, cfg *config.Config) error {
	if cfg.Acquisition.Averages != 0 {
		idx, ok := protocol.AverageIndex(cfg.Acquisition.Averages)
		if !ok {
			return fmt.Errorf("unsupported average count %d", cfg.Acquisition.Averages)
		}
		if err := dev.SetAverages(ctx, idx); err != nil {
			return fmt.Errorf("failed to set averages: %w", err)
		}
	}

	for i, ch := range cfg.Channels {
		values := append([]int{i + 1}, ch.Regions...)
		if err := dev.DeclareRegions(values); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	return nil
}

func buildOutputs(cfg *config.Config, logger *slog.Logger) ([]output.Output, error) {
	var outputs []output.Output

	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case config.OutputConsole:
			outputs = append(outputs, console.NewConsole())
		case config.OutputMQTT:
			out, err := mqtt.NewMQTT(*oc.MQTT)
			if err != nil {
				closeOutputs(outputs, logger)
				return nil, err
			}
			logger.Info("publishing to mqtt", "server", oc.MQTT.Server, "topic", oc.MQTT.Topic)
			outputs = append(outputs, out)
		default:
			closeOutputs(outputs, logger)
			return nil, errors.New("unknown output type " + oc.Type)
		}
	}

	if cfg.Store.Path != "" {
		logger.Info("logging results", "path", cfg.Store.Path)
		outputs = append(outputs, store.NewSqliteStore(cfg.Store.Path))
	}

	return outputs, nil
}

func closeOutputs(outputs []output.Output, logger *slog.Logger) {
	for _, out := range outputs {
		if err := out.Close(); err != nil {
			logger.Warn("failed to close output", "err", err)
		}
	}
}

func formatIntegrals(res meter.Result) string {
	parts := make([]string, 0, len(res.Integrals))
	for i, v := range res.Integrals {
		if res.Active[i] {
			parts = append(parts, fmt.Sprintf("ch%d=%s", i+1, humanize.SIWithDigits(v, 3, "Vs")))
		}
	}
	return strings.Join(parts, " ")
}
