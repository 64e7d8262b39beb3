package inject

import (
	"context"
	"sync"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/register"
)

// Transport is an injected bus transport.
type Transport struct {
	bus.Transport
	ReadByteDataFunc  func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte)
	WriteByteDataFunc func(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) bus.Status

	file *RegisterFile
}

// NewRegisterTransport returns an injected transport whose default behavior is a RegisterFile
// seeded with registers.
func NewRegisterTransport(registers map[register.Address]byte) *Transport {
	file := NewRegisterFile(registers)
	return &Transport{Transport: file, file: file}
}

// ReadByteData calls the injected ReadByteData or the real version.
func (t *Transport) ReadByteData(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
	if t.ReadByteDataFunc == nil {
		return t.Transport.ReadByteData(ctx, slave, source)
	}
	return t.ReadByteDataFunc(ctx, slave, source)
}

// WriteByteData calls the injected WriteByteData or the real version.
func (t *Transport) WriteByteData(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) bus.Status {
	if t.WriteByteDataFunc == nil {
		return t.Transport.WriteByteData(ctx, slave, destination, value)
	}
	return t.WriteByteDataFunc(ctx, slave, destination, value)
}

// Register returns the current content of a register of the backing RegisterFile.
func (t *Transport) Register(addr register.Address) byte {
	return t.file.Get(addr)
}

// SetRegister changes a register of the backing RegisterFile without recording a write.
func (t *Transport) SetRegister(addr register.Address, value byte) {
	t.file.Put(addr, value)
}

// Writes returns the writes that reached the backing RegisterFile, in order.
func (t *Transport) Writes() []Write {
	return t.file.Writes()
}

// A Write is one successful WriteByteData recorded by a RegisterFile.
type Write struct {
	Register register.Address
	Value    byte
}

// RegisterFile is an in-memory device: reads return the stored byte (zero when unset) and writes
// store it. It is safe for concurrent use.
type RegisterFile struct {
	mu        sync.Mutex
	registers map[register.Address]byte
	writes    []Write
}

// NewRegisterFile copies registers into a new RegisterFile.
func NewRegisterFile(registers map[register.Address]byte) *RegisterFile {
	file := &RegisterFile{registers: map[register.Address]byte{}}
	for addr, value := range registers {
		file.registers[addr] = value
	}
	return file
}

// ReadByteData implements bus.Transport.
func (f *RegisterFile) ReadByteData(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
	return bus.StatusSuccess, f.Get(source)
}

// WriteByteData implements bus.Transport.
func (f *RegisterFile) WriteByteData(ctx context.Context, slave bus.SlaveAddress, destination register.Address, value byte) bus.Status {
	f.Put(destination, value)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, Write{destination, value})
	return bus.StatusSuccess
}

// Get returns the stored byte.
func (f *RegisterFile) Get(addr register.Address) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registers[addr]
}

// Put stores a byte without recording a write.
func (f *RegisterFile) Put(addr register.Address, value byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[addr] = value
}

// Writes returns a copy of the recorded writes.
func (f *RegisterFile) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}
