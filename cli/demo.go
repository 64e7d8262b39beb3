package cli

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/imufreefall/components/bus/simulator"
	"go.viam.com/imufreefall/components/imu"
	"go.viam.com/imufreefall/config"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/services/freefall"
)

// DemoAction runs the simulator and an acquisition against it in one process, then prints what
// was acquired.
func DemoAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Transport != config.TransportSimulated {
		return errors.Errorf("demo needs the %q transport", config.TransportSimulated)
	}
	logger, closeLog := newLogger(c, cfg, nil)
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()

	source, err := demoDataSource(cfg.Simulator.DataFile, logger)
	if err != nil {
		return err
	}
	server := newSimulatorServer(cfg, source, logger.Sublogger("simulator"))
	recorder := &sampleRecorder{}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		// The simulator stops with the acquisition.
		defer cancel()
		return acquireFor(gctx, cfg, logger, recorder, c.Duration(demoFlagDuration))
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printf(c.App.Writer, "%s", recorder.summary())
	return nil
}

// acquireFor acquires data for duration or until ctx is done.
func acquireFor(
	ctx context.Context,
	cfg *config.Config,
	logger logging.Logger,
	recorder *sampleRecorder,
	duration time.Duration,
) (err error) {
	transport, err := openTransport(cfg, logger.Sublogger("bus"))
	if err != nil {
		return errors.Wrap(err, "connecting to simulator")
	}
	defer func() {
		err = multierr.Combine(err, transport.Close())
	}()

	p := newPipeline(transport, cfg, logger, recorder)
	if err := p.driver.Initialize(ctx); err != nil {
		return errors.Wrap(err, "initializing sensor")
	}
	if err := p.driver.Start(ctx); err != nil {
		return errors.Wrap(err, "starting acquisition")
	}
	goutils.SelectContextOrWait(ctx, duration)
	err = p.driver.Stop(context.Background())
	recorder.setLast(p.driver.LastSample())
	return err
}

// demoDataSource loads the configured recording, or falls back to a synthetic drop: the sensor
// rests, falls for a while and hits the ground.
func demoDataSource(path string, logger logging.Logger) (simulator.DataSource, error) {
	if _, err := os.Stat(path); err == nil {
		return simulator.ReadCSVFile(path)
	}
	logger.Infof("no recording at %q, replaying a synthetic drop", path)

	var rows [][3]float64
	for i := 0; i < 20; i++ {
		rows = append(rows, [3]float64{0.01, -0.02, 1})
	}
	for i := 0; i < 12; i++ {
		rows = append(rows, [3]float64{0.01, 0.02, 0.05})
	}
	for i := 0; i < 4; i++ {
		rows = append(rows, [3]float64{0.3, -0.4, 2.5})
	}
	return simulator.NewRows(rows...)
}

// sampleRecorder taps the samples going into the detector and the free falls coming out of it,
// and keeps statistics about both.
type sampleRecorder struct {
	events freefall.Observer

	mu         sync.Mutex
	magnitudes []float64
	falls      int
	last       imu.Acceleration
	hasLast    bool
}

func (r *sampleRecorder) record(sample imu.Acceleration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.magnitudes = append(r.magnitudes, sample.Vector().Norm())
}

func (r *sampleRecorder) setLast(sample imu.Acceleration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last, r.hasLast = sample, ok
}

func (r *sampleRecorder) OnFreeFallStarted() {
	r.mu.Lock()
	r.falls++
	r.mu.Unlock()
	r.events.OnFreeFallStarted()
}

func (r *sampleRecorder) OnFreeFallFinished() {
	r.events.OnFreeFallFinished()
}

// summary renders a table of the recorded samples and free falls, followed by the last sample
// the driver acquired.
func (r *sampleRecorder) summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Samples", "Free falls", "Mean |a| (g)", "Std dev (g)", "Min |a| (g)", "Max |a| (g)"})
	if len(r.magnitudes) == 0 {
		t.AppendRow(table.Row{0, r.falls, "-", "-", "-", "-"})
		return t.Render()
	}

	data := stats.Float64Data(r.magnitudes)
	mean, err1 := stats.Mean(data)
	sd, err2 := stats.StandardDeviation(data)
	minimum, err3 := stats.Min(data)
	maximum, err4 := stats.Max(data)
	if err := multierr.Combine(err1, err2, err3, err4); err != nil {
		t.AppendRow(table.Row{len(r.magnitudes), r.falls, err.Error(), "", "", ""})
	} else {
		t.AppendRow(table.Row{
			len(r.magnitudes),
			r.falls,
			fmt.Sprintf("%.3f", mean),
			fmt.Sprintf("%.3f", sd),
			fmt.Sprintf("%.3f", minimum),
			fmt.Sprintf("%.3f", maximum),
		})
	}

	out := t.Render()
	if r.hasLast {
		out += fmt.Sprintf("\nLast sample: x=%.3f g, y=%.3f g, z=%.3f g", r.last.X, r.last.Y, r.last.Z)
	}
	return out
}
