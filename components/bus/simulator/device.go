// Package simulator emulates an ICM-42670 sitting behind a message socket. It is the other end of
// the simulated bus transport: a register model fed by recorded accelerometer data, the textual
// wire protocol for both framings and a ZeroMQ server.
package simulator

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/imufreefall/components/imu/icm42670"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
)

// UnknownRegisterValue is read from registers the device does not model.
const UnknownRegisterValue = 0xab

// Register values after reset.
const (
	PwrMgmt0Reset     = 0x00
	AccelConfig0Reset = 0x06
)

// Before the first sample is latched the data registers hold a recognizable pattern.
var initialData = [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}

// defaultSamplePeriod is used when ACCEL_CONFIG0 holds a rate the device does not know.
const defaultSamplePeriod = 40 * time.Millisecond

// DeviceOption configures a Device.
type DeviceOption func(*Device)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) DeviceOption {
	return func(d *Device) {
		d.clock = c
	}
}

// Device is the register model of the simulated IMU. It is safe for concurrent use.
type Device struct {
	clock  clock.Clock
	source DataSource
	logger logging.Logger

	mu        sync.Mutex
	registers map[register.Address]byte
	data      [6]byte
	enabled   bool
	// lastAcquisition is when the current sample was due. It advances one period per latched
	// sample, so a slow reader catches up on missed samples one read at a time.
	lastAcquisition time.Time
}

// NewDevice returns a device in its reset state with acquisition disabled.
func NewDevice(source DataSource, logger logging.Logger, opts ...DeviceOption) *Device {
	d := &Device{
		clock:  clock.New(),
		source: source,
		logger: logger,
		registers: map[register.Address]byte{
			icm42670.PwrMgmt0:     PwrMgmt0Reset,
			icm42670.AccelConfig0: AccelConfig0Reset,
		},
		data: initialData,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadRegister returns the content of a register. Reading INT_STATUS_DRDY latches the next sample
// when one is due.
func (d *Device) ReadRegister(addr register.Address) byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if value, ok := d.registers[addr]; ok {
		return value
	}
	switch {
	case addr == icm42670.IntStatusDrdy:
		if d.latchSample() {
			return 0x01
		}
		return 0x00
	case addr >= icm42670.AccelDataX1 && addr <= icm42670.AccelDataZ0:
		return d.data[addr-icm42670.AccelDataX1]
	default:
		return UnknownRegisterValue
	}
}

// WriteRegister stores value in a modelled register. Writes to other registers are ignored.
// PWR_MGMT0 switches acquisition on (accelerometer mode 11) or off (00); other modes are
// rejected and leave the device unchanged.
func (d *Device) WriteRegister(addr register.Address, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.registers[addr]; !ok {
		d.logger.Debugf("ignoring write of %s to %s", register.FormatByte(value), addr)
		return nil
	}

	if addr == icm42670.PwrMgmt0 {
		enabled, valid := icm42670.AccelModeEnabled(value)
		if !valid {
			return errors.Errorf("unsupported ACCEL_MODE in PWR_MGMT0 value %s", register.FormatByte(value))
		}
		switch {
		case enabled && !d.enabled:
			d.lastAcquisition = d.clock.Now()
			d.logger.Info("data acquisition enabled")
		case !enabled && d.enabled:
			d.logger.Info("data acquisition disabled")
		}
		d.enabled = enabled
	}

	d.registers[addr] = value
	d.logger.Infof("%s set to %s", registerName(addr), register.FormatByte(value))
	return nil
}

// Enabled reports whether the accelerometer is powered.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SamplePeriod is the time between two samples at the configured output data rate.
func (d *Device) SamplePeriod() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samplePeriod()
}

func (d *Device) samplePeriod() time.Duration {
	rate, ok := icm42670.OutputDataRateFromCode(icm42670.AccelODR(d.registers[icm42670.AccelConfig0]))
	if !ok {
		return defaultSamplePeriod
	}
	return time.Second / time.Duration(rate.Hertz())
}

func (d *Device) latchSample() bool {
	if !d.enabled {
		return false
	}
	due := d.lastAcquisition.Add(d.samplePeriod())
	if !due.Before(d.clock.Now()) {
		return false
	}
	d.lastAcquisition = due

	sample := d.source.Next()
	d.data = [6]byte{
		byte(sample.X >> 8), byte(sample.X),
		byte(sample.Y >> 8), byte(sample.Y),
		byte(sample.Z >> 8), byte(sample.Z),
	}
	d.logger.Debugw("new sample latched", "x", sample.X, "y", sample.Y, "z", sample.Z)
	return true
}

func registerName(addr register.Address) string {
	switch addr {
	case icm42670.PwrMgmt0:
		return "PWR_MGMT0"
	case icm42670.AccelConfig0:
		return "ACCEL_CONFIG0"
	default:
		return addr.String()
	}
}
