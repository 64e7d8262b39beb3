package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/imufreefall/components/bus/simulator"
	"go.viam.com/imufreefall/config"
	"go.viam.com/imufreefall/logging"
)

// SimulateAction serves a simulated sensor until interrupted.
func SimulateAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(c, cfg, c.App.Writer)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	source, err := simulator.ReadCSVFile(cfg.Simulator.DataFile)
	if err != nil {
		return err
	}
	server := newSimulatorServer(cfg, source, logger.Sublogger("simulator"))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Serve(ctx); err != nil {
		return errors.Wrap(err, "serving simulator")
	}
	return nil
}

func newSimulatorServer(cfg *config.Config, source simulator.DataSource, logger logging.Logger) *simulator.Server {
	device := simulator.NewDevice(source, logger)
	protocol := simulator.NewProtocol(device, cfg.Simulator.Slave(), logger)
	return simulator.NewServer(cfg.Simulator.Endpoint, protocol, logger)
}
