package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/gomso/pkg/config"
	"github.com/itohio/gomso/pkg/mso"
)

func main() {
	var (
		configFlag    = flag.String("config", "config.yaml", "Configuration file path")
		addrFlag      = flag.String("addr", "", "Instrument address override (host or host:port)")
		portFlag      = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0); selects the serial transport")
		mockFlag      = flag.Bool("mock", false, "Use the simulated instrument")
		averagesFlag  = flag.Int("averages", -1, "Hardware average count, power of two up to 65536 (overrides config)")
		countFlag     = flag.Int("count", -1, "Number of measurement cycles (-1 = until interrupted)")
		intervalFlag  = flag.Duration("interval", -1, "Pause between measurement cycles (overrides config)")
		storeFlag     = flag.String("store", "", "SQLite result log path (overrides config)")
		listPortsFlag = flag.Bool("list-ports", false, "List serial ports and exit")
	)
	flag.Parse()

	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	if *listPortsFlag {
		ports, err := mso.Ports()
		if err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configFlag, "err", err)
		os.Exit(1)
	}

	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}

	if *addrFlag != "" {
		cfg.Instrument.Transport = config.TransportTCP
		cfg.Instrument.Address = *addrFlag
	}
	if *portFlag != "" {
		cfg.Instrument.Transport = config.TransportSerial
		cfg.Instrument.SerialPort = *portFlag
	}
	if *averagesFlag >= 0 {
		cfg.Acquisition.Averages = *averagesFlag
	}
	if *intervalFlag >= 0 {
		cfg.Acquisition.Interval = *intervalFlag
	}
	if *storeFlag != "" {
		cfg.Store.Path = *storeFlag
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err = run(ctx, cfg, *mockFlag, *countFlag, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
	logger.Info("done", "elapsed", time.Since(start).Round(time.Millisecond))
}
