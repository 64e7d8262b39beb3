package register

// Clear returns value with the bits in mask cleared.
func Clear(value, mask Value) Value {
	return value &^ mask
}

// Set returns value with the bits in mask set.
func Set(value, mask Value) Value {
	return value | mask
}

// Read returns the bits of value selected by mask.
func Read(value, mask Value) Value {
	return value & mask
}
