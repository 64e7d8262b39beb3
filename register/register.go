// Package register contains the primitives shared by register-addressed bus devices: typed 8-bit
// register addresses, bit helpers and bit-field descriptions.
package register

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address identifies an 8-bit device register.
type Address uint8

// Value is the content of an 8-bit register.
type Value = uint8

// Next returns the address of the following register. Multi-byte values are read as sequential
// single-byte reads, so this is the post-increment step. 0xFF wraps around to 0x00.
func (a Address) Next() Address {
	return a + 1
}

// String renders the address as lower-case hex, e.g. "0x0b".
func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// ParseAddress parses a hex address with or without the "0x" prefix.
func ParseAddress(s string) (Address, error) {
	v, err := ParseHexByte(s)
	if err != nil {
		return 0, errors.Wrap(err, "invalid register address")
	}
	return Address(v), nil
}

// ParseHexByte parses a single byte in hex notation with or without the "0x" prefix.
func ParseHexByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// FormatByte renders a byte as "0x%02x".
func FormatByte(b byte) string {
	return fmt.Sprintf("0x%02x", b)
}
