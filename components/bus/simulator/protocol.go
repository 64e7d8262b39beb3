package simulator

import (
	"fmt"
	"strings"
	"sync"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
)

// Words of the command framing.
const (
	CommandReadByte  = "READ_BYTE"
	CommandWriteByte = "WRITE_BYTE"
	ReplySuccess     = "SUCCESS"
	ReplyError       = "ERROR"
)

// Words of the bus framing.
const (
	BusStart    = "START"
	BusWriteBit = "WRITE_BIT"
	BusReadBit  = "READ_BIT"
	BusStop     = "NACK STOP"
	BusAck      = "ACK"
	BusNack     = "NACK"
	BusEOF      = "EOF"
)

type busState int

const (
	busIdle busState = iota
	// busAddressed follows START ... WRITE_BIT; the next byte selects the register.
	busAddressed
	// busWriting follows the register selection; further bytes are written.
	busWriting
	// busReading follows START ... READ_BIT; only a stop is accepted.
	busReading
)

// Protocol answers requests in either framing. The bus framing is stateful, so clients sharing a
// Protocol must not interleave their transactions.
type Protocol struct {
	device *Device
	slave  bus.SlaveAddress
	logger logging.Logger

	mu       sync.Mutex
	state    busState
	selected register.Address
}

// NewProtocol returns a Protocol serving device as slave.
func NewProtocol(device *Device, slave bus.SlaveAddress, logger logging.Logger) *Protocol {
	return &Protocol{device: device, slave: slave, logger: logger}
}

// Process handles one request and returns the reply. It never fails: problems are reported to
// the client in the reply.
func (p *Protocol) Process(request string) string {
	request = strings.Trim(request, "\x00 \t\r\n")
	p.logger.Debugf("received message: %q", request)

	p.mu.Lock()
	defer p.mu.Unlock()

	fields := strings.Fields(request)
	if len(fields) == 0 {
		return errorReply("empty message")
	}
	var reply string
	switch fields[0] {
	case CommandReadByte:
		reply = p.readByte(fields[1:])
	case CommandWriteByte:
		reply = p.writeByte(fields[1:])
	case BusStart:
		reply = p.start(fields[1:])
	default:
		switch {
		case request == BusStop:
			p.state = busIdle
			reply = BusEOF
		case len(fields) == 1 && strings.HasPrefix(fields[0], "0x"):
			reply = p.data(fields[0])
		default:
			reply = errorReply("Unknown Command")
		}
	}
	p.logger.Debugf("replied: %q", reply)
	return reply
}

func (p *Protocol) readByte(args []string) string {
	if len(args) != 1 {
		return errorReply(fmt.Sprintf("expected 1 argument, got %d", len(args)))
	}
	addr, err := register.ParseAddress(args[0])
	if err != nil {
		return errorReply(err.Error())
	}
	return register.FormatByte(p.device.ReadRegister(addr))
}

func (p *Protocol) writeByte(args []string) string {
	if len(args) != 2 {
		return errorReply(fmt.Sprintf("expected 2 arguments, got %d", len(args)))
	}
	addr, err := register.ParseAddress(args[0])
	if err != nil {
		return errorReply(err.Error())
	}
	value, err := register.ParseHexByte(args[1])
	if err != nil {
		return errorReply(err.Error())
	}
	if err := p.device.WriteRegister(addr, value); err != nil {
		p.logger.Errorf("write to %s failed: %s", addr, err)
		return errorReply(err.Error())
	}
	return ReplySuccess
}

// start handles "START <slave> WRITE_BIT|READ_BIT". A start is accepted in any state, which
// covers repeated starts.
func (p *Protocol) start(args []string) string {
	if len(args) != 2 {
		return p.nack("malformed START")
	}
	slave, err := register.ParseHexByte(args[0])
	if err != nil || bus.SlaveAddress(slave) != p.slave {
		return p.nack(fmt.Sprintf("no device at %s", args[0]))
	}

	switch args[1] {
	case BusWriteBit:
		p.state = busAddressed
		return BusAck
	case BusReadBit:
		value := p.device.ReadRegister(p.selected)
		p.selected = p.selected.Next()
		p.state = busReading
		return BusAck + " " + register.FormatByte(value)
	default:
		return p.nack("unknown direction " + args[1])
	}
}

func (p *Protocol) data(token string) string {
	value, err := register.ParseHexByte(token)
	if err != nil {
		return p.nack(err.Error())
	}
	switch p.state {
	case busAddressed:
		p.selected = register.Address(value)
		p.state = busWriting
		return BusAck
	case busWriting:
		if err := p.device.WriteRegister(p.selected, value); err != nil {
			return p.nack(err.Error())
		}
		p.selected = p.selected.Next()
		return BusAck
	default:
		return p.nack("unexpected data byte")
	}
}

// nack aborts the current transaction. The client is expected to send a stop.
func (p *Protocol) nack(reason string) string {
	p.logger.Debugf("NACK: %s", reason)
	p.state = busIdle
	return BusNack
}

func errorReply(description string) string {
	return ReplyError + ": " + description
}
