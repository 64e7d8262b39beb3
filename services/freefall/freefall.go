// Package freefall derives debounced free-fall events from a stream of accelerometer samples.
//
// A sample is small when the acceleration on every axis is below a threshold. A fall starts
// after a run of consecutive small samples and finishes with the first sample that is not
// small.
package freefall

import (
	"math"

	"go.uber.org/atomic"

	"go.viam.com/imufreefall/logging"
)

const (
	// DefaultThreshold is the per-axis acceleration, in g, under which a sample counts as small.
	DefaultThreshold = 0.2
	// DefaultSamplesToDetect is the number of consecutive small samples that start a fall.
	DefaultSamplesToDetect = 8
)

// Observer is notified of free-fall transitions.
type Observer interface {
	OnFreeFallStarted()
	OnFreeFallFinished()
}

// Publisher accepts a single Observer.
type Publisher interface {
	SubscribeToFreeFallDetection(observer Observer)
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float32) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// WithSamplesToDetect overrides DefaultSamplesToDetect.
func WithSamplesToDetect(samples int) Option {
	return func(d *Detector) {
		d.samplesToDetect = samples
	}
}

// Detector is an imu.NewDataAcquiredObserver. OnNewDataAcquired is expected to be called from a
// single goroutine (the acquisition loop), and the observer must be subscribed before samples
// start flowing.
type Detector struct {
	logger          logging.Logger
	threshold       float32
	samplesToDetect int

	observer Observer

	samplesBelowThreshold int
	falling               atomic.Bool
}

// NewDetector returns a Detector in the not-falling state.
func NewDetector(logger logging.Logger, opts ...Option) *Detector {
	d := &Detector{
		logger:          logger,
		threshold:       DefaultThreshold,
		samplesToDetect: DefaultSamplesToDetect,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SubscribeToFreeFallDetection implements Publisher. Only the first subscription is kept.
func (d *Detector) SubscribeToFreeFallDetection(observer Observer) {
	if d.observer != nil {
		d.logger.Error("only one subscriber is supported, ignoring subscription")
		return
	}
	d.observer = observer
}

// Falling reports whether a fall is in progress.
func (d *Detector) Falling() bool {
	return d.falling.Load()
}

// OnNewDataAcquired implements imu.NewDataAcquiredObserver.
func (d *Detector) OnNewDataAcquired(ax, ay, az float32) {
	if !d.small(ax) || !d.small(ay) || !d.small(az) {
		if d.falling.Load() {
			d.falling.Store(false)
			d.notify(Observer.OnFreeFallFinished)
		}
		d.samplesBelowThreshold = 0
		return
	}

	if d.falling.Load() {
		return
	}
	d.samplesBelowThreshold++
	if d.samplesBelowThreshold >= d.samplesToDetect {
		d.falling.Store(true)
		d.notify(Observer.OnFreeFallStarted)
	}
}

func (d *Detector) small(acceleration float32) bool {
	return math.Abs(float64(acceleration)) < float64(d.threshold)
}

func (d *Detector) notify(event func(Observer)) {
	if d.observer != nil {
		event(d.observer)
	}
}
