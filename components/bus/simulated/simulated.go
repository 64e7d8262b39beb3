// Package simulated implements bus.Transport over a message socket talking to the device
// simulator. Each register access is translated into textual requests in one of two framings:
//
//   - command: one request per access ("READ_BYTE 0x21" -> "0x06").
//   - bus: the start/address/data/stop phases of a real bus, one request per phase.
//
// Exchanges are strictly sequential. Every exchange is bounded by a request timeout and the
// caller's context; a failed exchange is reported as bus.StatusUnknownError.
package simulated

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/bus/simulator"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
)

// Framing selects how register accesses are spelled on the wire.
type Framing string

// Supported framings.
const (
	FramingCommand Framing = "command"
	FramingBus     Framing = "bus"
)

// Framings lists the supported framings.
var Framings = []Framing{FramingCommand, FramingBus}

// errUnexpectedReply aborts an exchange.
var errUnexpectedReply = errors.New("unexpected reply")

// Transport is a bus.Transport over a Messenger. It is safe for concurrent use, exchanges are
// serialized.
type Transport struct {
	messenger Messenger
	framing   Framing
	logger    logging.Logger

	mu sync.Mutex
}

var _ bus.Transport = (*Transport)(nil)

// NewTransport returns a transport speaking framing over messenger.
func NewTransport(messenger Messenger, framing Framing, logger logging.Logger) (*Transport, error) {
	switch framing {
	case FramingCommand, FramingBus:
	case "":
		framing = FramingCommand
	default:
		return nil, errors.Errorf("unknown framing %q", framing)
	}
	return &Transport{messenger: messenger, framing: framing, logger: logger}, nil
}

// ReadByteData implements bus.Transport.
func (t *Transport) ReadByteData(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var value byte
	var err error
	if t.framing == FramingBus {
		value, err = t.busRead(ctx, slave, source)
	} else {
		value, err = t.commandRead(ctx, source)
	}
	if err != nil {
		t.logger.Debugf("reading %s from %s failed: %s", source, slave, err)
		return bus.StatusUnknownError, 0
	}
	return bus.StatusSuccess, value
}

// WriteByteData implements bus.Transport.
func (t *Transport) WriteByteData(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) bus.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.framing == FramingBus {
		err = t.busWrite(ctx, slave, destination, value)
	} else {
		err = t.commandWrite(ctx, destination, value)
	}
	if err != nil {
		t.logger.Debugf("writing %s to %s of %s failed: %s", register.FormatByte(value), destination, slave, err)
		return bus.StatusUnknownError
	}
	return bus.StatusSuccess
}

// Close closes the messenger.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messenger.Close()
}

func (t *Transport) exchange(ctx context.Context, request string) (string, error) {
	response, err := t.messenger.Exchange(ctx, request)
	if err != nil {
		return "", err
	}
	t.logger.Debugf("sent %q, received %q", request, response)
	return strings.Trim(response, "\x00 \r\n"), nil
}

func (t *Transport) commandRead(ctx context.Context, source register.Address) (byte, error) {
	response, err := t.exchange(ctx, simulator.CommandReadByte+" "+source.String())
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(response, simulator.ReplyError) {
		return 0, errors.Errorf("device replied %q", response)
	}
	return register.ParseHexByte(response)
}

func (t *Transport) commandWrite(ctx context.Context, destination register.Address, value byte) error {
	request := simulator.CommandWriteByte + " " + destination.String() + " " + register.FormatByte(value)
	response, err := t.exchange(ctx, request)
	if err != nil {
		return err
	}
	if strings.HasPrefix(response, simulator.ReplyError) {
		return errors.Errorf("device replied %q", response)
	}
	return nil
}

// expect sends request and checks that the reply is want.
func (t *Transport) expect(ctx context.Context, request, want string) error {
	response, err := t.exchange(ctx, request)
	if err != nil {
		return err
	}
	if response != want {
		return errors.Wrapf(errUnexpectedReply, "%q to %q, want %q", response, request, want)
	}
	return nil
}

func start(slave bus.SlaveAddress, direction string) string {
	return simulator.BusStart + " " + slave.String() + " " + direction
}

func (t *Transport) busSelect(ctx context.Context, slave bus.SlaveAddress, reg register.Address) error {
	if err := t.expect(ctx, start(slave, simulator.BusWriteBit), simulator.BusAck); err != nil {
		return err
	}
	return t.expect(ctx, reg.String(), simulator.BusAck)
}

func (t *Transport) busRead(ctx context.Context, slave bus.SlaveAddress, source register.Address) (byte, error) {
	value, err := t.busReadPhases(ctx, slave, source)
	if err != nil {
		t.release(ctx, err)
		return 0, err
	}
	return value, nil
}

func (t *Transport) busReadPhases(ctx context.Context, slave bus.SlaveAddress, source register.Address) (byte, error) {
	if err := t.busSelect(ctx, slave, source); err != nil {
		return 0, err
	}
	if err := t.expect(ctx, simulator.BusStop, simulator.BusEOF); err != nil {
		return 0, err
	}

	request := start(slave, simulator.BusReadBit)
	response, err := t.exchange(ctx, request)
	if err != nil {
		return 0, err
	}
	payload, ok := strings.CutPrefix(response, simulator.BusAck+" ")
	if !ok {
		return 0, errors.Wrapf(errUnexpectedReply, "%q to %q", response, request)
	}
	value, err := register.ParseHexByte(payload)
	if err != nil {
		return 0, errors.Wrapf(errUnexpectedReply, "%q to %q", response, request)
	}

	if err := t.expect(ctx, simulator.BusStop, simulator.BusEOF); err != nil {
		return 0, err
	}
	return value, nil
}

func (t *Transport) busWrite(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) error {
	err := t.busSelect(ctx, slave, destination)
	if err == nil {
		err = t.expect(ctx, register.FormatByte(value), simulator.BusAck)
	}
	if err != nil {
		t.release(ctx, err)
		return err
	}
	return t.expect(ctx, simulator.BusStop, simulator.BusEOF)
}

// release ends an aborted bus transaction so the device is ready for the next one. It is
// skipped when the exchange itself broke, since the messenger has already reset the connection.
func (t *Transport) release(ctx context.Context, cause error) {
	if !errors.Is(cause, errUnexpectedReply) {
		return
	}
	if _, err := t.exchange(ctx, simulator.BusStop); err != nil {
		t.logger.Debugf("releasing bus: %s", err)
	}
}
