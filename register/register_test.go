package register

import (
	"testing"

	"go.viam.com/test"
)

func TestAddress(t *testing.T) {
	test.That(t, Address(0x0B).Next(), test.ShouldEqual, Address(0x0C))
	test.That(t, Address(0xFF).Next(), test.ShouldEqual, Address(0x00))
	test.That(t, Address(0x0B).String(), test.ShouldEqual, "0x0b")
	test.That(t, Address(0xAB).String(), test.ShouldEqual, "0xab")

	addr := Address(0x0B)
	for i := 0; i < 5; i++ {
		addr = addr.Next()
	}
	test.That(t, addr, test.ShouldEqual, Address(0x10))

	parsed, err := ParseAddress("0x39")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, Address(0x39))

	parsed, err = ParseAddress("1F")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, Address(0x1F))

	_, err = ParseAddress("0x100")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseAddress("ERROR")
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, FormatByte(0x0a), test.ShouldEqual, "0x0a")
}

func TestBits(t *testing.T) {
	test.That(t, Clear(0xFF, 0x0F), test.ShouldEqual, Value(0xF0))
	test.That(t, Clear(0x00, 0x0F), test.ShouldEqual, Value(0x00))
	test.That(t, Set(0xF0, 0x0F), test.ShouldEqual, Value(0xFF))
	test.That(t, Set(0x01, 0x01), test.ShouldEqual, Value(0x01))
	test.That(t, Read(0xA5, 0x0F), test.ShouldEqual, Value(0x05))
	test.That(t, Read(0xA5, 0x00), test.ShouldEqual, Value(0x00))
}

func TestField(t *testing.T) {
	scale := NewField("scale", 0x21, 6, 5)
	test.That(t, scale.Mask, test.ShouldEqual, Value(0x60))
	test.That(t, scale.Shift(), test.ShouldEqual, uint(5))
	test.That(t, scale.Encode(0b11), test.ShouldEqual, Value(0x60))
	test.That(t, scale.Encode(0b101), test.ShouldEqual, Value(0x20))
	test.That(t, scale.Decode(0xE6), test.ShouldEqual, Value(0b11))
	test.That(t, scale.Apply(0x86, 0b01), test.ShouldEqual, Value(0xA6))

	whole := NewField("whole", 0x00, 7, 0)
	test.That(t, whole.Mask, test.ShouldEqual, Value(0xFF))

	rate := NewField("rate", 0x21, 3, 0)
	u := Updates(FieldValue{scale, 0b11}, FieldValue{rate, 0x0A})
	test.That(t, u.Register, test.ShouldEqual, Address(0x21))
	test.That(t, u.Mask, test.ShouldEqual, Value(0x6F))
	test.That(t, u.Bits, test.ShouldEqual, Value(0x6A))
	// Bit 7 and bit 4 survive the update.
	test.That(t, u.Apply(0x96), test.ShouldEqual, Value(0xFA))

	other := NewField("other", 0x1F, 1, 0)
	test.That(t, func() { Updates(FieldValue{scale, 1}, FieldValue{other, 1}) }, test.ShouldPanic)
}
