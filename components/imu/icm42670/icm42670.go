// Package icm42670 implements a driver for the TDK ICM-42670-P 6-axis IMU. A datasheet for the
// chip is at https://invensense.tdk.com/download-pdf/icm-42670-p-datasheet/
//
// We support configuring and continuously acquiring the accelerometer. The gyroscope is powered
// together with the accelerometer, but its output is not read yet.
//
// Acquisition runs in a background goroutine that polls the data-ready flag. Every complete
// sample is converted to g and handed to at most one observer.
package icm42670

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/imu"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
	"go.viam.com/imufreefall/utils"
)

// DefaultPollInterval is how long the acquisition loop waits before asking again when no new
// sample is ready.
const DefaultPollInterval = 400 * time.Millisecond

// ErrAlreadyRunning is returned by operations that need the bus while acquisition owns it.
var ErrAlreadyRunning = errors.New("data acquisition is already running")

// Option configures a Driver.
type Option func(*Driver)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.pollInterval = interval
	}
}

// Driver talks to one ICM-42670 on a bus. Initialize, ConfigureAccelerometer, Start and Stop
// must be called from a single goroutine.
type Driver struct {
	transport    bus.Transport
	slave        bus.SlaveAddress
	logger       logging.Logger
	pollInterval time.Duration

	// mu guards workers. While workers is set the acquisition goroutine owns the transport.
	mu      sync.Mutex
	workers utils.StoppableWorkers

	// observer is written by SubscribeToNewDataAcquired, which must happen before Start, and is
	// only read by the acquisition goroutine afterwards.
	observer imu.NewDataAcquiredObserver

	sampleMu        sync.Mutex
	lastSample      imu.Acceleration
	hasSample       bool
	samplesAcquired atomic.Uint64
}

// NewDriver returns a driver for the device at slave, reachable through transport. It does not
// touch the bus.
func NewDriver(transport bus.Transport, slave bus.SlaveAddress, logger logging.Logger, opts ...Option) *Driver {
	d := &Driver{
		transport:    transport,
		slave:        slave,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize puts the accelerometer in the ±2 g range at 50 Hz.
func (d *Driver) Initialize(ctx context.Context) error {
	return d.ConfigureAccelerometer(ctx, Scale2G, Rate50Hz)
}

// ConfigureAccelerometer selects the full-scale range and output data rate with a
// read-modify-write of ACCEL_CONFIG0. All other bits of the register are preserved. There is no
// rollback: if the write fails the register keeps whatever value the device last accepted.
func (d *Driver) ConfigureAccelerometer(ctx context.Context, scale AccelScale, rate OutputDataRate) error {
	update, ok := accelConfigUpdate(scale, rate)
	if !ok {
		return errors.Errorf("unsupported accelerometer configuration: scale %d, rate %d", scale, rate)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers != nil {
		return ErrAlreadyRunning
	}

	if err := bus.ReadModifyWrite(ctx, d.transport, d.slave, update); err != nil {
		d.logger.Errorf("configuring accelerometer (%s, %s) failed: %s", scale, rate, err)
		return errors.Wrap(err, "configuring accelerometer")
	}
	d.logger.Infof("accelerometer configured: %s, %s", scale, rate)
	return nil
}

// Start enables the accelerometer and gyroscope in low-noise mode and starts the acquisition
// goroutine. If the power-management write fails, acquisition is not started.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers != nil {
		return ErrAlreadyRunning
	}

	if err := bus.ReadModifyWrite(ctx, d.transport, d.slave, powerUpdate(modeLowNoise)); err != nil {
		d.logger.Errorf("enabling sensors failed: %s", err)
		return errors.Wrap(err, "enabling accelerometer and gyroscope")
	}

	d.workers = utils.NewStoppableWorkers(d.acquire)
	d.logger.Info("data acquisition started")
	return nil
}

// Stop cancels the acquisition goroutine, waits for it to exit and then powers the sensors
// down. The goroutine is always stopped; an error only means that the power-down write failed.
// Stopping an idle driver does nothing.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers == nil {
		return nil
	}

	if d.workers.Active() == 0 {
		d.logger.Warn("acquisition loop had already exited")
	}
	// The bus is half-duplex: the power-down write must not start before the loop is gone.
	d.workers.Stop()
	d.workers = nil
	d.logger.Info("data acquisition stopped")

	if err := bus.ReadModifyWrite(ctx, d.transport, d.slave, powerUpdate(modeOff)); err != nil {
		d.logger.Errorf("disabling sensors failed: %s", err)
		return errors.Wrap(err, "disabling accelerometer and gyroscope")
	}
	return nil
}

// IsRunning reports whether acquisition was started and not yet stopped. A loop that ended on a
// bus error still counts as running until Stop joins it.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workers != nil
}

// SubscribeToNewDataAcquired implements imu.Publisher.
func (d *Driver) SubscribeToNewDataAcquired(observer imu.NewDataAcquiredObserver) {
	if d.observer != nil {
		d.logger.Error("only one subscriber is supported, ignoring subscription")
		return
	}
	d.observer = observer
}

// LastSample returns the most recently acquired sample, if any.
func (d *Driver) LastSample() (imu.Acceleration, bool) {
	d.sampleMu.Lock()
	defer d.sampleMu.Unlock()
	return d.lastSample, d.hasSample
}

// SamplesAcquired returns the number of samples published since the driver was created.
func (d *Driver) SamplesAcquired() uint64 {
	return d.samplesAcquired.Load()
}

func (d *Driver) acquire(ctx context.Context) {
	for ctx.Err() == nil {
		status, drdy := d.transport.ReadByteData(ctx, d.slave, IntStatusDrdy)
		if status != bus.StatusSuccess {
			d.loopFailed(ctx, errors.Wrapf(bus.ErrUnknown, "reading %s", IntStatusDrdy))
			return
		}
		d.logger.Debugf("received byte: %s", register.FormatByte(drdy))

		if !dataReady(drdy) {
			if !goutils.SelectContextOrWait(ctx, d.pollInterval) {
				return
			}
			continue
		}

		raw, err := d.readRawSample(ctx)
		if err != nil {
			d.loopFailed(ctx, err)
			return
		}
		d.publish(raw.Acceleration())
	}
}

// loopFailed reports why the acquisition goroutine is exiting. Failures caused by Stop
// cancelling an in-flight exchange are expected and only logged at debug level.
func (d *Driver) loopFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		d.logger.Debugf("acquisition cancelled during bus exchange: %s", err)
		return
	}
	d.logger.Errorf("data acquisition aborted: %s", err)
}

// readRawSample reads the six data registers one byte at a time, high byte first. A sample is
// either read completely or not at all.
func (d *Driver) readRawSample(ctx context.Context) (imu.RawSample, error) {
	var words [3]uint16
	source := AccelDataX1
	for axis := range words {
		high, err := d.readByte(ctx, source)
		if err != nil {
			return imu.RawSample{}, err
		}
		source = source.Next()

		low, err := d.readByte(ctx, source)
		if err != nil {
			return imu.RawSample{}, err
		}
		source = source.Next()

		words[axis] = uint16(high)<<8 | uint16(low)
	}
	return imu.RawSample{X: words[0], Y: words[1], Z: words[2]}, nil
}

func (d *Driver) readByte(ctx context.Context, source register.Address) (byte, error) {
	status, value := d.transport.ReadByteData(ctx, d.slave, source)
	if err := status.Err(); err != nil {
		return 0, errors.Wrapf(err, "reading %s", source)
	}
	return value, nil
}

func (d *Driver) publish(sample imu.Acceleration) {
	d.sampleMu.Lock()
	d.lastSample = sample
	d.hasSample = true
	d.sampleMu.Unlock()
	d.samplesAcquired.Inc()

	d.logger.Debugw("new data acquired", "ax", sample.X, "ay", sample.Y, "az", sample.Z)
	if d.observer != nil {
		d.observer.OnNewDataAcquired(sample.X, sample.Y, sample.Z)
	}
}
