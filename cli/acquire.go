package cli

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

// AcquireAction connects to the sensor, configures it and runs the interactive menu. Logs only
// go to the log file so they do not interleave with the menu.
func AcquireAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(c, cfg, nil)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	transport, err := openTransport(cfg, logger.Sublogger("bus"))
	if err != nil {
		logger.Errorf("connecting to sensor: %s", err)
		return errors.Wrap(err, "connecting to sensor")
	}
	defer func() {
		err = multierr.Combine(err, transport.Close())
	}()

	p := newPipeline(transport, cfg, logger, nil)
	if err := p.driver.Initialize(c.Context); err != nil {
		return errors.Wrap(err, "initializing sensor")
	}

	logPath, err := filepath.Abs(logFilePath(c, cfg))
	if err != nil {
		return err
	}
	return runMenu(c.Context, c.App.Reader, c.App.Writer, p.driver, logPath, logger)
}
