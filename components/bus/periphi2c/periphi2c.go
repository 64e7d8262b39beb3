// Package periphi2c implements bus.Transport on a real I2C bus through periph.io.
package periphi2c

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
)

// Transport accesses device registers with combined write/read I2C transactions.
type Transport struct {
	bus    i2c.Bus
	logger logging.Logger

	mu sync.Mutex
}

var _ bus.Transport = (*Transport)(nil)

// Open initializes the host drivers and opens the I2C bus called name ("" selects the first
// one, "1" or "/dev/i2c-1" select bus 1).
func Open(name string, logger logging.Logger) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing periph host drivers")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening I2C bus %q", name)
	}
	logger.Infof("opened I2C bus %s", b)
	return NewTransport(b, logger), nil
}

// NewTransport wraps an already opened bus.
func NewTransport(b i2c.Bus, logger logging.Logger) *Transport {
	return &Transport{bus: b, logger: logger}
}

// ReadByteData implements bus.Transport. The register is selected with a write and read back after
// a repeated start.
func (t *Transport) ReadByteData(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
	if err := ctx.Err(); err != nil {
		return bus.StatusUnknownError, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r := make([]byte, 1)
	if err := t.bus.Tx(uint16(slave), []byte{byte(source)}, r); err != nil {
		t.logger.Debugf("reading %s from %s: %s", source, slave, err)
		return bus.StatusUnknownError, 0
	}
	return bus.StatusSuccess, r[0]
}

// WriteByteData implements bus.Transport.
func (t *Transport) WriteByteData(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) bus.Status {
	if err := ctx.Err(); err != nil {
		return bus.StatusUnknownError
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.bus.Tx(uint16(slave), []byte{byte(destination), value}, nil); err != nil {
		t.logger.Debugf("writing %s to %s of %s: %s", register.FormatByte(value), destination, slave, err)
		return bus.StatusUnknownError
	}
	return bus.StatusSuccess
}

// Close releases the bus if it can be closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if closer, ok := t.bus.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
