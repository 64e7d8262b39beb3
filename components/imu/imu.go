// Package imu defines the samples an inertial measurement unit produces and the observer
// interface through which drivers publish them.
package imu

import (
	"github.com/golang/geo/r3"
)

// LSBPerG is the number of raw counts per g at the ±2 g full-scale range of a 16-bit output.
const LSBPerG = 16384.0

// RawSample holds one 16-bit register word per axis, exactly as read from the device.
type RawSample struct {
	X, Y, Z uint16
}

// Acceleration is a sample in units of standard gravity (g).
type Acceleration struct {
	X, Y, Z float32
}

// ToG converts one raw 16-bit word to g: the word is two's complement, and one LSB is 1/16384 g.
func ToG(raw uint16) float32 {
	return float32(int16(raw)) / LSBPerG
}

// Acceleration converts the raw sample to g.
func (s RawSample) Acceleration() Acceleration {
	return Acceleration{X: ToG(s.X), Y: ToG(s.Y), Z: ToG(s.Z)}
}

// Vector returns the acceleration as a vector in g.
func (a Acceleration) Vector() r3.Vector {
	return r3.Vector{X: float64(a.X), Y: float64(a.Y), Z: float64(a.Z)}
}

// NewDataAcquiredObserver receives every sample a driver acquires.
type NewDataAcquiredObserver interface {
	OnNewDataAcquired(ax, ay, az float32)
}

// A Publisher delivers acquired samples to at most one observer.
type Publisher interface {
	// SubscribeToNewDataAcquired registers the observer. Only one observer is supported; later
	// calls are reported and ignored. Subscribing is only allowed before acquisition starts.
	SubscribeToNewDataAcquired(observer NewDataAcquiredObserver)
}

// ObserverFunc adapts a function to NewDataAcquiredObserver.
type ObserverFunc func(ax, ay, az float32)

// OnNewDataAcquired calls f.
func (f ObserverFunc) OnNewDataAcquired(ax, ay, az float32) {
	f(ax, ay, az)
}
