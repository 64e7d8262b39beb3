// Package config defines the acquisition configuration and reads it from JSON files.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/imufreefall/components/bus"
	"go.viam.com/imufreefall/components/bus/simulated"
	"go.viam.com/imufreefall/components/bus/simulator"
	"go.viam.com/imufreefall/components/imu/icm42670"
	"go.viam.com/imufreefall/register"
	"go.viam.com/imufreefall/services/freefall"
)

// Transports.
const (
	TransportSimulated = "simulated"
	TransportI2C       = "i2c"
)

// Defaults applied to unset fields.
const (
	DefaultSlaveAddress = "0x7f"
	DefaultLogFile      = "logs.txt"
	DefaultDataFile     = "data/imu_log.csv"
)

var transports = []string{TransportSimulated, TransportI2C}

// Config is the whole configuration of the acquisition program.
type Config struct {
	ConfigFilePath string `json:"-"`

	Transport      string            `json:"transport,omitempty"`
	Endpoint       string            `json:"endpoint,omitempty"`
	Framing        simulated.Framing `json:"framing,omitempty"`
	I2CBus         string            `json:"i2c_bus,omitempty"`
	SlaveAddress   string            `json:"slave_address,omitempty"`
	RequestTimeout string            `json:"request_timeout,omitempty"`
	PollInterval   string            `json:"poll_interval,omitempty"`
	LogFile        string            `json:"log_file,omitempty"`

	FreeFall  FreeFallConfig  `json:"free_fall"`
	Simulator SimulatorConfig `json:"simulator"`
}

// FreeFallConfig tunes the free-fall detector.
type FreeFallConfig struct {
	ThresholdG float32 `json:"threshold_g,omitempty"`
	Samples    int     `json:"samples,omitempty"`
}

// SimulatorConfig describes the simulated device served by the simulate command.
type SimulatorConfig struct {
	Endpoint     string `json:"endpoint,omitempty"`
	DataFile     string `json:"data_file,omitempty"`
	SlaveAddress string `json:"slave_address,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportSimulated
	}
	if c.Endpoint == "" {
		c.Endpoint = simulator.DefaultEndpoint
	}
	if c.Framing == "" {
		c.Framing = simulated.FramingCommand
	}
	if c.SlaveAddress == "" {
		c.SlaveAddress = DefaultSlaveAddress
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = simulated.DefaultRequestTimeout.String()
	}
	if c.PollInterval == "" {
		c.PollInterval = icm42670.DefaultPollInterval.String()
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.FreeFall.ThresholdG == 0 {
		c.FreeFall.ThresholdG = freefall.DefaultThreshold
	}
	if c.FreeFall.Samples == 0 {
		c.FreeFall.Samples = freefall.DefaultSamplesToDetect
	}
	if c.Simulator.Endpoint == "" {
		c.Simulator.Endpoint = c.Endpoint
	}
	if c.Simulator.DataFile == "" {
		c.Simulator.DataFile = DefaultDataFile
	}
	if c.Simulator.SlaveAddress == "" {
		c.Simulator.SlaveAddress = c.SlaveAddress
	}
}

// Validate checks the configuration. Errors name the offending field relative to path.
func (c *Config) Validate(path string) error {
	if !lo.Contains(transports, c.Transport) {
		return utils.NewConfigValidationError(fieldPath(path, "transport"),
			errors.Errorf("unknown transport %q, expected one of %v", c.Transport, transports))
	}
	switch c.Transport {
	case TransportSimulated:
		if c.Endpoint == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "endpoint")
		}
		if !lo.Contains(simulated.Framings, c.Framing) {
			return utils.NewConfigValidationError(fieldPath(path, "framing"),
				errors.Errorf("unknown framing %q, expected one of %v", c.Framing, simulated.Framings))
		}
	case TransportI2C:
		if c.I2CBus == "" {
			return utils.NewConfigValidationFieldRequiredError(path, "i2c_bus")
		}
	}

	if _, err := parseSlave(c.SlaveAddress); err != nil {
		return utils.NewConfigValidationError(fieldPath(path, "slave_address"), err)
	}
	if _, err := parsePositiveDuration(c.RequestTimeout); err != nil {
		return utils.NewConfigValidationError(fieldPath(path, "request_timeout"), err)
	}
	if _, err := parsePositiveDuration(c.PollInterval); err != nil {
		return utils.NewConfigValidationError(fieldPath(path, "poll_interval"), err)
	}
	if err := c.FreeFall.Validate(fieldPath(path, "free_fall")); err != nil {
		return err
	}
	return c.Simulator.Validate(fieldPath(path, "simulator"))
}

// Validate checks the free-fall settings.
func (c *FreeFallConfig) Validate(path string) error {
	if c.ThresholdG < 0 {
		return utils.NewConfigValidationError(fieldPath(path, "threshold_g"), errors.New("must not be negative"))
	}
	if c.Samples < 0 {
		return utils.NewConfigValidationError(fieldPath(path, "samples"), errors.New("must not be negative"))
	}
	return nil
}

// Validate checks the simulator settings.
func (c *SimulatorConfig) Validate(path string) error {
	if c.Endpoint == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "endpoint")
	}
	if c.DataFile == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "data_file")
	}
	if _, err := parseSlave(c.SlaveAddress); err != nil {
		return utils.NewConfigValidationError(fieldPath(path, "slave_address"), err)
	}
	return nil
}

// Slave returns the parsed slave address of the sensor.
func (c *Config) Slave() bus.SlaveAddress {
	slave, _ := parseSlave(c.SlaveAddress)
	return slave
}

// Timeout returns the parsed request timeout.
func (c *Config) Timeout() time.Duration {
	timeout, _ := parsePositiveDuration(c.RequestTimeout)
	return timeout
}

// Poll returns the parsed poll interval.
func (c *Config) Poll() time.Duration {
	interval, _ := parsePositiveDuration(c.PollInterval)
	return interval
}

// Slave returns the parsed slave address the simulated device answers to.
func (c *SimulatorConfig) Slave() bus.SlaveAddress {
	slave, _ := parseSlave(c.SlaveAddress)
	return slave
}

func parseSlave(s string) (bus.SlaveAddress, error) {
	v, err := register.ParseHexByte(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid slave address %q", s)
	}
	if v > 0x7f {
		return 0, errors.Errorf("slave address %q does not fit in 7 bits", s)
	}
	return bus.SlaveAddress(v), nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func fieldPath(path, field string) string {
	if path == "" {
		return field
	}
	return fmt.Sprintf("%s.%s", path, field)
}
