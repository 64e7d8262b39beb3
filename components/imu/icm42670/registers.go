package icm42670

import "go.viam.com/imufreefall/register"

// Register map (bank 0).
const (
	AccelDataX1 register.Address = 0x0B
	AccelDataX0 register.Address = 0x0C
	AccelDataY1 register.Address = 0x0D
	AccelDataY0 register.Address = 0x0E
	AccelDataZ1 register.Address = 0x0F
	AccelDataZ0 register.Address = 0x10

	// Gyroscope output is not acquired yet.
	GyroDataX1 register.Address = 0x11
	GyroDataX0 register.Address = 0x12
	GyroDataY1 register.Address = 0x13
	GyroDataY0 register.Address = 0x14
	GyroDataZ1 register.Address = 0x15
	GyroDataZ0 register.Address = 0x16

	PwrMgmt0      register.Address = 0x1F
	GyroConfig0   register.Address = 0x20
	AccelConfig0  register.Address = 0x21
	IntStatusDrdy register.Address = 0x39
)

// Bit fields.
var (
	gyroModeField       = register.NewField("GYRO_MODE", PwrMgmt0, 3, 2)
	accelModeField      = register.NewField("ACCEL_MODE", PwrMgmt0, 1, 0)
	accelFullScaleField = register.NewField("ACCEL_UI_FS_SEL", AccelConfig0, 6, 5)
	accelODRField       = register.NewField("ACCEL_ODR", AccelConfig0, 3, 0)
	dataReadyField      = register.NewField("DATA_RDY_INT", IntStatusDrdy, 0, 0)
)

// Values of the GYRO_MODE and ACCEL_MODE fields.
const (
	modeOff      register.Value = 0b00
	modeLowNoise register.Value = 0b11
)

// AccelScale is the accelerometer full-scale range.
type AccelScale int

// Supported full-scale ranges.
const (
	Scale16G AccelScale = iota
	Scale8G
	Scale4G
	Scale2G
)

var accelScaleCodes = map[AccelScale]register.Value{
	Scale16G: 0b00,
	Scale8G:  0b01,
	Scale4G:  0b10,
	Scale2G:  0b11,
}

func (s AccelScale) String() string {
	switch s {
	case Scale16G:
		return "±16g"
	case Scale8G:
		return "±8g"
	case Scale4G:
		return "±4g"
	case Scale2G:
		return "±2g"
	default:
		return "unknown scale"
	}
}

// OutputDataRate is the accelerometer output data rate.
type OutputDataRate int

// Supported output data rates.
const (
	Rate50Hz OutputDataRate = iota
	Rate25Hz
)

var outputDataRateCodes = map[OutputDataRate]register.Value{
	Rate50Hz: 0x0A,
	Rate25Hz: 0x0B,
}

func (r OutputDataRate) String() string {
	switch r {
	case Rate50Hz:
		return "50Hz"
	case Rate25Hz:
		return "25Hz"
	default:
		return "unknown rate"
	}
}

// OutputDataRateFromCode returns the rate encoded in the ACCEL_ODR field, if it is one we support.
func OutputDataRateFromCode(code register.Value) (OutputDataRate, bool) {
	for rate, c := range outputDataRateCodes {
		if c == code {
			return rate, true
		}
	}
	return 0, false
}

// Hertz is the number of samples per second at this rate.
func (r OutputDataRate) Hertz() int {
	switch r {
	case Rate50Hz:
		return 50
	case Rate25Hz:
		return 25
	default:
		return 0
	}
}

// accelConfigUpdate is the ACCEL_CONFIG0 read-modify-write for a scale and rate.
func accelConfigUpdate(scale AccelScale, rate OutputDataRate) (register.Update, bool) {
	scaleCode, ok := accelScaleCodes[scale]
	if !ok {
		return register.Update{}, false
	}
	rateCode, ok := outputDataRateCodes[rate]
	if !ok {
		return register.Update{}, false
	}
	return register.Updates(
		register.FieldValue{Field: accelFullScaleField, Value: scaleCode},
		register.FieldValue{Field: accelODRField, Value: rateCode},
	), true
}

// powerUpdate is the PWR_MGMT0 read-modify-write switching both sensors to mode.
func powerUpdate(mode register.Value) register.Update {
	return register.Updates(
		register.FieldValue{Field: gyroModeField, Value: mode},
		register.FieldValue{Field: accelModeField, Value: mode},
	)
}

// AccelModeEnabled reports whether a PWR_MGMT0 value has the accelerometer in low-noise mode.
func AccelModeEnabled(pwrMgmt0 register.Value) (enabled, valid bool) {
	switch accelModeField.Decode(pwrMgmt0) {
	case modeLowNoise:
		return true, true
	case modeOff:
		return false, true
	default:
		return false, false
	}
}

// AccelODR extracts the output data rate code from an ACCEL_CONFIG0 value.
func AccelODR(accelConfig0 register.Value) register.Value {
	return accelODRField.Decode(accelConfig0)
}

func dataReady(status register.Value) bool {
	return dataReadyField.Decode(status) == 1
}
