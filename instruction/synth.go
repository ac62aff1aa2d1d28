package instruction

// The helper and rewriter packages synthesize new method bodies (stub
// methods and target-entry prologues); these builders cover the handful of
// load/return shapes that synthesis needs, without pulling full bytecode
// semantics into those packages.

var loadOpcodes = map[byte]Opcode{'I': Iload, 'J': Lload, 'F': Fload, 'D': Dload}
var loadShort = map[byte][4]Opcode{
	'I': {Iload0, Iload1, Iload2, Iload3},
	'J': {Lload0, Lload1, Lload2, Lload3},
	'F': {Fload0, Fload1, Fload2, Fload3},
	'D': {Dload0, Dload1, Dload2, Dload3},
}

// categoryTag collapses a field-type descriptor to the byte key the load
// tables above are keyed by: reference/array types load like 'A'.
func categoryTag(fieldType string) byte {
	if len(fieldType) == 0 {
		return 'A'
	}
	switch fieldType[0] {
	case 'I', 'J', 'F', 'D':
		return fieldType[0]
	case 'Z', 'B', 'C', 'S':
		return 'I'
	default:
		return 'A' // L...; or [...
	}
}

// LoadLocal emits the instruction(s) that push local variable slot index
// (of the given field-type descriptor) onto the operand stack, choosing the
// short _0.._3 forms, the plain u1-index form, or a wide-prefixed form.
func LoadLocal(fieldType string, index int) []byte {
	tag := categoryTag(fieldType)
	if tag == 'A' {
		return loadOrStoreBytes(Aload, Aload0, index)
	}
	return loadOrStoreBytes(loadOpcodes[tag], loadShort[tag][0], index)
}

func loadOrStoreBytes(plain, short0 Opcode, index int) []byte {
	if index >= 0 && index <= 3 {
		return []byte{byte(short0) + byte(index)}
	}
	if index <= 255 {
		return []byte{byte(plain), byte(index)}
	}
	return []byte{byte(Wide), byte(plain), byte(index >> 8), byte(index)}
}

// ReturnFor picks the return instruction matching a method's return-type
// descriptor ("" or "V" for void).
func ReturnFor(returnDescriptor string) Opcode {
	if returnDescriptor == "" || returnDescriptor == "V" {
		return Return
	}
	switch returnDescriptor[0] {
	case 'I', 'Z', 'B', 'C', 'S':
		return Ireturn
	case 'J':
		return Lreturn
	case 'F':
		return Freturn
	case 'D':
		return Dreturn
	default:
		return Areturn
	}
}
