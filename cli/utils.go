package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/bus/periphi2c"
	"go.viam.com/imufreefall/components/bus/simulated"
	"go.viam.com/imufreefall/components/imu"
	"go.viam.com/imufreefall/components/imu/icm42670"
	"go.viam.com/imufreefall/config"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/services/freefall"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// errorf prints a message in red, prefixed with "Error: ".
func errorf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.FgRed).Fprintf(w, "Error: "+format+"\n", a...)
}

// loadConfig reads the file given with --config, or returns the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	return cfg, nil
}

// logFilePath is the --log-file flag if set, otherwise the configured log file.
func logFilePath(c *cli.Context, cfg *config.Config) string {
	if path := c.String(generalFlagLogFile); path != "" {
		return path
	}
	return cfg.LogFile
}

// newLogger returns a logger appending to the log file, and to console if it is not nil. The
// returned function flushes and closes the log file.
func newLogger(c *cli.Context, cfg *config.Config, console io.Writer) (logging.Logger, func() error) {
	logger := logging.NewBlankLogger(c.App.Name)
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.INFO)
	}

	file := logging.NewFileAppender(logFilePath(c, cfg))
	logger.AddAppender(file)
	if console != nil {
		logger.AddAppender(logging.NewWriterAppender(console))
	}
	return logger, func() error {
		return multierr.Combine(logger.Sync(), file.Close())
	}
}

type closableTransport interface {
	bus.Transport
	Close() error
}

// openTransport connects to the sensor as configured.
func openTransport(cfg *config.Config, logger logging.Logger) (closableTransport, error) {
	switch cfg.Transport {
	case config.TransportI2C:
		transport, err := periphi2c.Open(cfg.I2CBus, logger)
		if err != nil {
			return nil, err
		}
		return transport, nil
	default:
		messenger, err := simulated.DialMessenger(cfg.Endpoint, cfg.Timeout(), logger)
		if err != nil {
			return nil, err
		}
		transport, err := simulated.NewTransport(messenger, cfg.Framing, logger)
		if err != nil {
			return nil, multierr.Combine(err, messenger.Close())
		}
		return transport, nil
	}
}

// pipeline wires the driver, the detector and the free-fall logger together.
type pipeline struct {
	driver   *icm42670.Driver
	detector *freefall.Detector
}

// newPipeline subscribes the detector to the driver. If samples is not nil it records every sample
// before the detector sees it, and every free fall before the free-fall logger sees it.
func newPipeline(
	transport bus.Transport,
	cfg *config.Config,
	logger logging.Logger,
	samples *sampleRecorder,
) *pipeline {
	driver := icm42670.NewDriver(transport, cfg.Slave(), logger.Sublogger("imu"),
		icm42670.WithPollInterval(cfg.Poll()))
	detector := freefall.NewDetector(logger.Sublogger("freefall"),
		freefall.WithThreshold(cfg.FreeFall.ThresholdG),
		freefall.WithSamplesToDetect(cfg.FreeFall.Samples))

	events := freefall.NewLogger(logger)
	if samples != nil {
		samples.events = events
		driver.SubscribeToNewDataAcquired(imu.ObserverFunc(func(ax, ay, az float32) {
			samples.record(imu.Acceleration{X: ax, Y: ay, Z: az})
			detector.OnNewDataAcquired(ax, ay, az)
		}))
		detector.SubscribeToFreeFallDetection(samples)
	} else {
		driver.SubscribeToNewDataAcquired(detector)
		detector.SubscribeToFreeFallDetection(events)
	}
	return &pipeline{driver: driver, detector: detector}
}
