package icm42670

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/imu"
	"go.viam.com/imufreefall/logging"
	"go.viam.com/imufreefall/register"
	"go.viam.com/imufreefall/testutils/inject"
)

const testSlave = bus.SlaveAddress(0x68)

// readyDevice has a sample of (1, -1, 0.5) g waiting on every poll.
func readyDevice() *inject.Transport {
	return inject.NewRegisterTransport(map[register.Address]byte{
		IntStatusDrdy: 0x01,
		AccelDataX1:   0x40, AccelDataX0: 0x00,
		AccelDataY1: 0xC0, AccelDataY0: 0x00,
		AccelDataZ1: 0x20, AccelDataZ0: 0x00,
		PwrMgmt0:     0xF0,
		AccelConfig0: 0x06,
	})
}

type sampleCollector struct {
	mu      sync.Mutex
	samples []imu.Acceleration
}

func (c *sampleCollector) OnNewDataAcquired(ax, ay, az float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, imu.Acceleration{X: ax, Y: ay, Z: az})
}

func (c *sampleCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func (c *sampleCollector) first() imu.Acceleration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.samples[0]
}

func TestConfigureAccelerometer(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("initialize selects 2g at 50Hz and keeps other bits", func(t *testing.T) {
		transport := inject.NewRegisterTransport(map[register.Address]byte{AccelConfig0: 0x96})
		driver := NewDriver(transport, testSlave, logger)

		test.That(t, driver.Initialize(ctx), test.ShouldBeNil)
		value := transport.Register(AccelConfig0)
		test.That(t, register.Read(value, 0x60)>>5, test.ShouldEqual, register.Value(0b11))
		test.That(t, register.Read(value, 0x0F), test.ShouldEqual, register.Value(0b1010))
		test.That(t, register.Read(value, 0x90), test.ShouldEqual, register.Value(0x90))
		test.That(t, transport.Writes(), test.ShouldResemble, []inject.Write{{Register: AccelConfig0, Value: 0xFA}})
	})

	t.Run("other scale and rate", func(t *testing.T) {
		transport := inject.NewRegisterTransport(map[register.Address]byte{AccelConfig0: 0x06})
		driver := NewDriver(transport, testSlave, logger)

		test.That(t, driver.ConfigureAccelerometer(ctx, Scale8G, Rate25Hz), test.ShouldBeNil)
		test.That(t, transport.Register(AccelConfig0), test.ShouldEqual, byte(0x2B))
	})

	t.Run("unsupported values never reach the bus", func(t *testing.T) {
		transport := inject.NewRegisterTransport(nil)
		driver := NewDriver(transport, testSlave, logger)

		err := driver.ConfigureAccelerometer(ctx, AccelScale(-1), Rate50Hz)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, transport.Writes(), test.ShouldBeEmpty)
	})

	t.Run("read failure", func(t *testing.T) {
		transport := inject.NewRegisterTransport(map[register.Address]byte{AccelConfig0: 0x06})
		transport.ReadByteDataFunc = func(context.Context, bus.SlaveAddress, register.Address) (bus.Status, byte) {
			return bus.StatusUnknownError, 0
		}
		driver := NewDriver(transport, testSlave, logger)

		err := driver.Initialize(ctx)
		test.That(t, errors.Is(err, bus.ErrUnknown), test.ShouldBeTrue)
		test.That(t, transport.Writes(), test.ShouldBeEmpty)
		test.That(t, transport.Register(AccelConfig0), test.ShouldEqual, byte(0x06))
	})

	t.Run("write failure", func(t *testing.T) {
		transport := inject.NewRegisterTransport(map[register.Address]byte{AccelConfig0: 0x06})
		transport.WriteByteDataFunc = func(context.Context, bus.SlaveAddress, register.Address, byte) bus.Status {
			return bus.StatusUnknownError
		}
		driver := NewDriver(transport, testSlave, logger)

		err := driver.Initialize(ctx)
		test.That(t, errors.Is(err, bus.ErrUnknown), test.ShouldBeTrue)
		test.That(t, transport.Register(AccelConfig0), test.ShouldEqual, byte(0x06))
	})
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("power management around acquisition", func(t *testing.T) {
		transport := readyDevice()
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))
		collector := &sampleCollector{}
		driver.SubscribeToNewDataAcquired(collector)

		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		test.That(t, driver.IsRunning(), test.ShouldBeTrue)
		test.That(t, transport.Register(PwrMgmt0), test.ShouldEqual, byte(0xFF))

		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, collector.count(), test.ShouldBeGreaterThan, 0)
		})
		test.That(t, collector.first(), test.ShouldResemble, imu.Acceleration{X: 1, Y: -1, Z: 0.5})
		last, ok := driver.LastSample()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, last, test.ShouldResemble, imu.Acceleration{X: 1, Y: -1, Z: 0.5})
		test.That(t, driver.SamplesAcquired(), test.ShouldBeGreaterThan, 0)

		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		test.That(t, transport.Register(PwrMgmt0), test.ShouldEqual, byte(0xF0))

		// Nothing is published once Stop returned.
		published := collector.count()
		time.Sleep(10 * time.Millisecond)
		test.That(t, collector.count(), test.ShouldEqual, published)
	})

	t.Run("restart after stop", func(t *testing.T) {
		transport := readyDevice()
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))
		for i := 0; i < 3; i++ {
			test.That(t, driver.Start(ctx), test.ShouldBeNil)
			test.That(t, driver.IsRunning(), test.ShouldBeTrue)
			test.That(t, driver.Stop(ctx), test.ShouldBeNil)
			test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		}
	})

	t.Run("start fails when power management write fails", func(t *testing.T) {
		transport := readyDevice()
		drdyReads := atomic.NewInt32(0)
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			if source == IntStatusDrdy {
				drdyReads.Inc()
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		transport.WriteByteDataFunc = func(context.Context, bus.SlaveAddress, register.Address, byte) bus.Status {
			return bus.StatusUnknownError
		}
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))

		err := driver.Start(ctx)
		test.That(t, errors.Is(err, bus.ErrUnknown), test.ShouldBeTrue)
		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		time.Sleep(10 * time.Millisecond)
		test.That(t, drdyReads.Load(), test.ShouldEqual, 0)
	})

	t.Run("start while running", func(t *testing.T) {
		driver := NewDriver(readyDevice(), testSlave, logger, WithPollInterval(time.Millisecond))
		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		test.That(t, driver.Start(ctx), test.ShouldEqual, ErrAlreadyRunning)
		test.That(t, driver.Initialize(ctx), test.ShouldEqual, ErrAlreadyRunning)
		test.That(t, driver.IsRunning(), test.ShouldBeTrue)
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
	})

	t.Run("stop while idle", func(t *testing.T) {
		transport := readyDevice()
		driver := NewDriver(transport, testSlave, logger)
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, transport.Writes(), test.ShouldBeEmpty)
	})

	t.Run("power-down failure still stops acquisition", func(t *testing.T) {
		transport := readyDevice()
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))
		test.That(t, driver.Start(ctx), test.ShouldBeNil)

		transport.WriteByteDataFunc = func(context.Context, bus.SlaveAddress, register.Address, byte) bus.Status {
			return bus.StatusUnknownError
		}
		err := driver.Stop(ctx)
		test.That(t, errors.Is(err, bus.ErrUnknown), test.ShouldBeTrue)
		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		test.That(t, transport.Register(PwrMgmt0), test.ShouldEqual, byte(0xFF))
	})

	t.Run("power-down is written after the loop has exited", func(t *testing.T) {
		transport := readyDevice()
		var poweredDown, readsAfterPowerDown atomic.Int32
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			if poweredDown.Load() > 0 {
				readsAfterPowerDown.Inc()
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))
		test.That(t, driver.Start(ctx), test.ShouldBeNil)

		transport.WriteByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, dst register.Address, value byte) bus.Status {
			poweredDown.Inc()
			return transport.Transport.WriteByteData(ctx, slave, dst, value)
		}
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		time.Sleep(10 * time.Millisecond)
		test.That(t, poweredDown.Load(), test.ShouldEqual, 1)
		test.That(t, readsAfterPowerDown.Load(), test.ShouldEqual, 0)
	})

	t.Run("stop cancels an exchange that never completes", func(t *testing.T) {
		transport := readyDevice()
		blocked := make(chan struct{})
		var once sync.Once
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			if source == IntStatusDrdy {
				once.Do(func() { close(blocked) })
				<-ctx.Done()
				return bus.StatusUnknownError, 0
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		logger, observed := logging.NewObservedTestLogger(t)
		driver := NewDriver(transport, testSlave, logger)
		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		<-blocked

		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		test.That(t, observed.FilterMessageSnippet("data acquisition aborted").Len(), test.ShouldEqual, 0)
		test.That(t, observed.FilterMessageSnippet("acquisition loop had already exited").Len(), test.ShouldEqual, 0)
	})
}

func TestAcquisitionLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("reads the data registers in order", func(t *testing.T) {
		transport := readyDevice()
		var mu sync.Mutex
		var order []register.Address
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			mu.Lock()
			if len(order) < 7 {
				order = append(order, source)
			}
			mu.Unlock()
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		driver := NewDriver(transport, testSlave, logging.NewTestLogger(t), WithPollInterval(time.Millisecond))

		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			mu.Lock()
			defer mu.Unlock()
			test.That(tb, order, test.ShouldHaveLength, 7)
		})
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)

		mu.Lock()
		defer mu.Unlock()
		// The first read belongs to the power-up read-modify-write.
		test.That(t, order[0], test.ShouldEqual, PwrMgmt0)
		test.That(t, order[1], test.ShouldEqual, IntStatusDrdy)
		test.That(t, order[2:], test.ShouldResemble, []register.Address{
			AccelDataX1, AccelDataX0, AccelDataY1, AccelDataY0, AccelDataZ1,
		})
	})

	t.Run("waits while no data is ready", func(t *testing.T) {
		transport := readyDevice()
		transport.SetRegister(IntStatusDrdy, 0xFE)
		dataReads := atomic.NewInt32(0)
		drdyReads := atomic.NewInt32(0)
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			switch {
			case source == IntStatusDrdy:
				drdyReads.Inc()
			case source >= AccelDataX1 && source <= AccelDataZ0:
				dataReads.Inc()
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		collector := &sampleCollector{}
		driver := NewDriver(transport, testSlave, logging.NewTestLogger(t), WithPollInterval(5*time.Millisecond))
		driver.SubscribeToNewDataAcquired(collector)

		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, drdyReads.Load(), test.ShouldBeGreaterThan, 2)
		})
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, dataReads.Load(), test.ShouldEqual, 0)
		test.That(t, collector.count(), test.ShouldEqual, 0)
		_, ok := driver.LastSample()
		test.That(t, ok, test.ShouldBeFalse)
	})

	t.Run("status read failure ends acquisition", func(t *testing.T) {
		transport := readyDevice()
		drdyReads := atomic.NewInt32(0)
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			if source == IntStatusDrdy {
				drdyReads.Inc()
				return bus.StatusUnknownError, 0
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		logger, observed := logging.NewObservedTestLogger(t)
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))

		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, observed.FilterMessageSnippet("data acquisition aborted").Len(), test.ShouldEqual, 1)
		})
		time.Sleep(10 * time.Millisecond)
		test.That(t, drdyReads.Load(), test.ShouldEqual, 1)
		// The goroutine is finished but not joined yet.
		test.That(t, driver.IsRunning(), test.ShouldBeTrue)
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, driver.IsRunning(), test.ShouldBeFalse)
		test.That(t, observed.FilterMessageSnippet("acquisition loop had already exited").Len(), test.ShouldEqual, 1)
	})

	t.Run("partial samples are never published", func(t *testing.T) {
		transport := readyDevice()
		transport.ReadByteDataFunc = func(ctx context.Context, slave bus.SlaveAddress, source register.Address) (bus.Status, byte) {
			if source == AccelDataZ0 {
				return bus.StatusUnknownError, 0
			}
			return transport.Transport.ReadByteData(ctx, slave, source)
		}
		logger, observed := logging.NewObservedTestLogger(t)
		collector := &sampleCollector{}
		driver := NewDriver(transport, testSlave, logger, WithPollInterval(time.Millisecond))
		driver.SubscribeToNewDataAcquired(collector)

		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, observed.FilterMessageSnippet("reading 0x10").Len(), test.ShouldEqual, 1)
		})
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, collector.count(), test.ShouldEqual, 0)
		test.That(t, driver.SamplesAcquired(), test.ShouldEqual, 0)
	})

	t.Run("only the first subscriber receives samples", func(t *testing.T) {
		logger, observed := logging.NewObservedTestLogger(t)
		driver := NewDriver(readyDevice(), testSlave, logger, WithPollInterval(time.Millisecond))
		first := &sampleCollector{}
		second := &sampleCollector{}
		driver.SubscribeToNewDataAcquired(first)
		driver.SubscribeToNewDataAcquired(second)
		test.That(t, observed.FilterMessageSnippet("only one subscriber").Len(), test.ShouldEqual, 1)

		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, first.count(), test.ShouldBeGreaterThan, 3)
		})
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
		test.That(t, second.count(), test.ShouldEqual, 0)
	})

	t.Run("publishing without a subscriber", func(t *testing.T) {
		driver := NewDriver(readyDevice(), testSlave, logging.NewTestLogger(t), WithPollInterval(time.Millisecond))
		test.That(t, driver.Start(ctx), test.ShouldBeNil)
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, driver.SamplesAcquired(), test.ShouldBeGreaterThan, 0)
		})
		test.That(t, driver.Stop(ctx), test.ShouldBeNil)
	})
}
