package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/bus/simulated"
)

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"endpoint": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unmarshal")

	_, err = FromReader("somepath", strings.NewReader(`{"endpiont": "tcp://localhost:5555"}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown field")

	conf, err := FromReader("somepath", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	expected := Default()
	expected.ConfigFilePath = "somepath"
	test.That(t, conf, test.ShouldResemble, expected)
	test.That(t, conf.Slave(), test.ShouldEqual, bus.SlaveAddress(0x7f))
	test.That(t, conf.Timeout(), test.ShouldEqual, time.Second)
	test.That(t, conf.Poll(), test.ShouldEqual, 400*time.Millisecond)
	test.That(t, conf.Framing, test.ShouldEqual, simulated.FramingCommand)
	test.That(t, conf.FreeFall, test.ShouldResemble, FreeFallConfig{ThresholdG: 0.2, Samples: 8})
	test.That(t, conf.Simulator.Endpoint, test.ShouldEqual, "tcp://127.0.0.1:5555")
	test.That(t, conf.Simulator.Slave(), test.ShouldEqual, bus.SlaveAddress(0x7f))

	conf, err = FromReader("somepath", strings.NewReader(`{
		"framing": "bus",
		"slave_address": "0x68",
		"poll_interval": "10ms",
		"free_fall": {"samples": 4}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Framing, test.ShouldEqual, simulated.FramingBus)
	test.That(t, conf.Slave(), test.ShouldEqual, bus.SlaveAddress(0x68))
	test.That(t, conf.Simulator.Slave(), test.ShouldEqual, bus.SlaveAddress(0x68))
	test.That(t, conf.Poll(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, conf.FreeFall, test.ShouldResemble, FreeFallConfig{ThresholdG: 0.2, Samples: 4})
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		json  string
		field string
	}{
		{"transport", `{"transport": "carrier-pigeon"}`, "transport"},
		{"framing", `{"framing": "morse"}`, "framing"},
		{"i2c bus", `{"transport": "i2c"}`, `"i2c_bus" is required`},
		{"slave address", `{"slave_address": "0xzz"}`, "slave_address"},
		{"10-bit slave address", `{"slave_address": "0x80"}`, "slave_address"},
		{"request timeout", `{"request_timeout": "soon"}`, "request_timeout"},
		{"poll interval", `{"poll_interval": "-1s"}`, "poll_interval"},
		{"threshold", `{"free_fall": {"threshold_g": -0.1}}`, "free_fall.threshold_g"},
		{"samples", `{"free_fall": {"samples": -2}}`, "free_fall.samples"},
		{"simulator slave", `{"simulator": {"slave_address": "68h"}}`, "simulator.slave_address"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("somepath", strings.NewReader(tc.json))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.field)
		})
	}

	conf, err := FromReader("somepath", strings.NewReader(`{"transport": "i2c", "i2c_bus": "1"}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.I2CBus, test.ShouldEqual, "1")
}

func TestRead(t *testing.T) {
	t.Setenv("IMU_ENDPOINT", "tcp://10.0.0.2:5555")
	path := filepath.Join(t.TempDir(), "imu.json")
	err := os.WriteFile(path, []byte(`{"endpoint": "${IMU_ENDPOINT}"}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	conf, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, conf.Endpoint, test.ShouldEqual, "tcp://10.0.0.2:5555")
	test.That(t, conf.Simulator.Endpoint, test.ShouldEqual, "tcp://10.0.0.2:5555")

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
