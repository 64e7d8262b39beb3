package cli

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/multierr"

	"go.viam.com/imufreefall/logging"
)

// Menu commands.
const (
	menuStart = "start"
	menuStop  = "stop"
	menuExit  = "exit"
)

// acquisition is the part of the driver the menu controls.
type acquisition interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// runMenu offers starting or stopping acquisition until the user types exit or the input ends.
// Acquisition still running at that point is stopped.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, acq acquisition, logPath string, logger logging.Logger) error {
	printf(out, "Run following command in separate terminal to track logs:")
	printf(out, "tail -f %s", logPath)
	printf(out, "")
	logger.Info("Application started")
	defer logger.Info("Application closed")

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		printf(out, "Type one of following options:")
		printf(out, "")
		if acq.IsRunning() {
			printf(out, "%s -- to TURN OFF data acquisition", menuStop)
		} else {
			printf(out, "%s -- to TURN ON data acquisition", menuStart)
		}
		printf(out, "%s -- to close the application", menuExit)
		printf(out, "")
		//nolint:errcheck
		io.WriteString(out, "What to do: ")

		if !scanner.Scan() {
			printf(out, "")
			break
		}
		input := strings.TrimSpace(scanner.Text())
		logger.Debugf("Input: %q", input)

		switch {
		case input == menuStart && !acq.IsRunning():
			if err := acq.Start(ctx); err != nil {
				logger.Errorf("starting data acquisition: %s", err)
				printf(out, "")
				errorf(out, "could not start data acquisition: %s", err)
				printf(out, "")
			}
		case input == menuStop && acq.IsRunning():
			if err := acq.Stop(ctx); err != nil {
				logger.Errorf("stopping data acquisition: %s", err)
				printf(out, "")
				errorf(out, "could not stop data acquisition cleanly: %s", err)
				printf(out, "")
			}
		case input == menuExit:
			return stopIfRunning(ctx, acq)
		default:
			printf(out, "")
			errorf(out, "Incorrect input, please try again...")
			printf(out, "")
		}
	}
	// ctx may be done already, the sensor must be powered down regardless.
	return multierr.Combine(scanner.Err(), stopIfRunning(context.Background(), acq))
}

func stopIfRunning(ctx context.Context, acq acquisition) error {
	if !acq.IsRunning() {
		return nil
	}
	return acq.Stop(ctx)
}
