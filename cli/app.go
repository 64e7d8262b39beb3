// Package cli contains the imufreefall command line tool.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig  = "config"
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	demoFlagDuration = "duration"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "imufreefall",
		Usage:           "acquire accelerometer data from an ICM-42670 and detect free falls",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "append logs to `FILE` instead of the configured log file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "acquire",
				Usage:  "start and stop data acquisition interactively",
				Action: AcquireAction,
			},
			{
				Name:   "simulate",
				Usage:  "serve a simulated sensor on the configured endpoint",
				Action: SimulateAction,
			},
			{
				Name:  "demo",
				Usage: "run the simulator and acquisition together for a while and print a summary",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  demoFlagDuration,
						Value: 10 * time.Second,
						Usage: "how long to acquire data",
					},
				},
				Action: DemoAction,
			},
		},
	}
}
