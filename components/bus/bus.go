// Package bus defines the byte-level register access capability used by sensor drivers. The
// medium behind it may be a physical I2C bus or a simulated one; drivers cannot tell.
package bus

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/imufreefall/register"
)

// SlaveAddress identifies the target device on the bus.
type SlaveAddress uint8

func (s SlaveAddress) String() string {
	return fmt.Sprintf("0x%02x", uint8(s))
}

// Status is the outcome of a single transport operation. A bus reports all-or-nothing
// acknowledgement, so there is no finer-grained failure code.
type Status int

const (
	// StatusSuccess means the device acknowledged the whole exchange.
	StatusSuccess Status = iota
	// StatusUnknownError means some part of the exchange failed.
	StatusUnknownError
)

// ErrUnknown is the Go error form of StatusUnknownError.
var ErrUnknown = errors.New("unknown bus error")

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusUnknownError:
		return "UnknownError"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Err returns nil for StatusSuccess and ErrUnknown otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return ErrUnknown
}

// Transport reads and writes single register bytes of a device on the bus. Failures are reported
// through the returned Status and never by panicking; the byte returned by ReadByteData is only
// meaningful when the status is StatusSuccess.
//
// A Transport carries one exchange at a time. Callers must not issue operations concurrently.
type Transport interface {
	ReadByteData(ctx context.Context, slave SlaveAddress, source register.Address) (Status, byte)
	WriteByteData(ctx context.Context, slave SlaveAddress, destination register.Address, value byte) Status
}

// ReadModifyWrite reads reg, applies update and writes the result back. The returned error wraps
// ErrUnknown and names the leg that failed.
func ReadModifyWrite(
	ctx context.Context,
	transport Transport,
	slave SlaveAddress,
	update register.Update,
) error {
	status, current := transport.ReadByteData(ctx, slave, update.Register)
	if err := status.Err(); err != nil {
		return errors.Wrapf(err, "reading register %s", update.Register)
	}
	status = transport.WriteByteData(ctx, slave, update.Register, update.Apply(current))
	if err := status.Err(); err != nil {
		return errors.Wrapf(err, "writing register %s", update.Register)
	}
	return nil
}
