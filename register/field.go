package register

import "math/bits"

// A Field is a contiguous group of bits inside one register.
type Field struct {
	Name     string
	Register Address
	Mask     Value
}

// NewField describes the bits [high:low] of reg.
func NewField(name string, reg Address, high, low uint) Field {
	width := high - low + 1
	mask := Value(((1 << width) - 1) << low)
	return Field{Name: name, Register: reg, Mask: mask}
}

// Shift is the position of the field's least significant bit.
func (f Field) Shift() uint {
	return uint(bits.TrailingZeros8(f.Mask))
}

// Encode places the field value at its position in the register. Bits that do not fit in the
// field are discarded.
func (f Field) Encode(fieldValue Value) Value {
	return Read(fieldValue<<f.Shift(), f.Mask)
}

// Decode extracts the field value from a full register value.
func (f Field) Decode(registerValue Value) Value {
	return Read(registerValue, f.Mask) >> f.Shift()
}

// Apply returns current with the field replaced by fieldValue. All bits outside the field are
// preserved.
func (f Field) Apply(current, fieldValue Value) Value {
	return Set(Clear(current, f.Mask), f.Encode(fieldValue))
}

// Update describes a read-modify-write of one register: the bits in Mask are replaced by Bits.
type Update struct {
	Register Address
	Mask     Value
	Bits     Value
}

// Updates builds a single Update from field assignments that all target the same register.
// It panics when the fields live in different registers, which is a programming error.
func Updates(assignments ...FieldValue) Update {
	var u Update
	for i, a := range assignments {
		if i == 0 {
			u.Register = a.Field.Register
		} else if a.Field.Register != u.Register {
			panic("register: fields " + assignments[0].Field.Name + " and " + a.Field.Name +
				" are in different registers")
		}
		u.Mask = Set(u.Mask, a.Field.Mask)
		u.Bits = Set(u.Bits, a.Field.Encode(a.Value))
	}
	return u
}

// Apply performs the modify step of the update on current.
func (u Update) Apply(current Value) Value {
	return Set(Clear(current, u.Mask), Read(u.Bits, u.Mask))
}

// FieldValue pairs a field with the value to store in it.
type FieldValue struct {
	Field Field
	Value Value
}
