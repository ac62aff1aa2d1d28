package instruction

import (
	"encoding/binary"

	"github.com/cojen/boxtin/boxtinerr"
)

// EncodeBranch re-encodes a branch instruction (any IsBranch() opcode) given
// its (possibly new) instruction offset and its (possibly new) target
// offset, choosing the 2-byte or 4-byte operand form the opcode requires.
func EncodeBranch(op Opcode, offset, target int) ([]byte, error) {
	delta := target - offset
	switch op {
	case GotoW, JsrW:
		buf := make([]byte, 5)
		buf[0] = byte(op)
		binary.BigEndian.PutUint32(buf[1:], uint32(int32(delta)))
		return buf, nil
	default:
		if delta < -32768 || delta > 32767 {
			return nil, boxtinerr.NewHardf("branch delta %d does not fit in 16 bits at offset %d; widen to goto_w/jsr_w", delta, offset)
		}
		buf := make([]byte, 3)
		buf[0] = byte(op)
		binary.BigEndian.PutUint16(buf[1:], uint16(int16(delta)))
		return buf, nil
	}
}

// PatchBranchTarget rewrites the operand of the branch instruction whose
// encoding begins at code[offset:] in place, recomputing the delta for the
// instruction's (possibly unchanged) offset and a new target offset. Used
// during re-flow (spec §4.2, §4.5) when downstream code shifted.
func PatchBranchTarget(code []byte, offset int, op Opcode, newTarget int) error {
	encoded, err := EncodeBranch(op, offset, newTarget)
	if err != nil {
		return err
	}
	copy(code[offset:offset+len(encoded)], encoded)
	return nil
}

// EncodeInvoke encodes one of the four non-dynamic invocation instructions.
func EncodeInvoke(op Opcode, cpIndex uint16, interfaceArgCount uint8) ([]byte, error) {
	switch op {
	case Invokevirtual, Invokespecial, Invokestatic:
		buf := make([]byte, 3)
		buf[0] = byte(op)
		binary.BigEndian.PutUint16(buf[1:], cpIndex)
		return buf, nil
	case Invokeinterface:
		buf := make([]byte, 5)
		buf[0] = byte(op)
		binary.BigEndian.PutUint16(buf[1:], cpIndex)
		buf[3] = interfaceArgCount
		buf[4] = 0
		return buf, nil
	default:
		return nil, boxtinerr.NewHardf("EncodeInvoke: opcode 0x%02X is not a plain invocation", byte(op))
	}
}

// EncodeInvokeDynamic encodes an invokedynamic instruction referencing a
// Dynamic/InvokeDynamic constant-pool entry.
func EncodeInvokeDynamic(cpIndex uint16) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(Invokedynamic)
	binary.BigEndian.PutUint16(buf[1:], cpIndex)
	buf[3] = 0
	buf[4] = 0
	return buf
}

// EncodeSwitch re-serializes a SwitchOperand at a (possibly new) instruction
// offset, recomputing the 4-byte alignment padding. isTableswitch selects
// between the two switch encodings.
func EncodeSwitch(offset int, so *SwitchOperand, isTableswitch bool) []byte {
	pad := padTo4(offset)
	buf := make([]byte, 0, 1+pad+8)
	if isTableswitch {
		buf = append(buf, byte(Tableswitch))
	} else {
		buf = append(buf, byte(Lookupswitch))
	}
	buf = append(buf, make([]byte, pad)...)

	put4 := func(v int32) {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		buf = append(buf, b...)
	}
	put4(int32(so.DefaultTarget - offset))

	if isTableswitch {
		put4(int32(so.Low))
		put4(int32(so.High))
		for _, t := range so.Targets {
			put4(int32(t - offset))
		}
	} else {
		put4(int32(len(so.Matches)))
		for i, m := range so.Matches {
			put4(m)
			put4(int32(so.Targets[i] - offset))
		}
	}
	return buf
}

// NopPad returns n nop instructions. No code in this module calls it: the
// rewriter re-flows offsets after a splice instead of padding to keep them.
func NopPad(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(Nop)
	}
	return buf
}

// PadTo4 reports how many padding bytes a tableswitch/lookupswitch at the
// given instruction offset needs before its first 4-byte-aligned operand, so
// the rewriter can recompute a switch's length at a new offset without
// re-decoding it.
func PadTo4(offset int) int {
	return padTo4(offset)
}
