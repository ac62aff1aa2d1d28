package instruction

import (
	"encoding/binary"

	"github.com/cojen/boxtin/boxtinerr"
)

// Instruction is one decoded instruction: its opcode, the offset (program
// counter) it starts at, its total encoded length, and — for instructions
// the planner cares about — a resolved operand.
type Instruction struct {
	Offset int
	Opcode Opcode
	Length int

	// CPIndex is populated for any instruction that carries a constant-pool
	// index operand (ldc family, field/method refs, new, checkcast,
	// instanceof, multianewarray).
	CPIndex uint16

	// BranchTarget is populated for IsBranch() opcodes: the absolute
	// instruction offset the branch targets.
	BranchTarget int

	// Switch holds the decoded operand table for Tableswitch/Lookupswitch.
	Switch *SwitchOperand

	// WideOpcode/WideIndex/WideConst hold the decoded sub-instruction when
	// Opcode == Wide.
	WideOpcode Opcode
	WideIndex  uint16
	WideConst  int16 // only meaningful for a wide iinc
}

// SwitchOperand is the decoded form of a tableswitch or lookupswitch.
type SwitchOperand struct {
	DefaultTarget int
	// Tableswitch: Low/High bound the contiguous jump table, Targets has
	// High-Low+1 entries. Lookupswitch: Low/High are unused; Matches and
	// Targets are parallel slices the same length.
	Low, High int
	Matches   []int32
	Targets   []int
}

// Length computes the total byte length of the instruction starting at
// offset in code, including the variable-width forms. It does not allocate;
// use Decode to get a fully resolved Instruction.
func Length(code []byte, offset int) (int, error) {
	if offset < 0 || offset >= len(code) {
		return 0, boxtinerr.NewHardf("instruction offset %d out of range", offset)
	}
	op := Opcode(code[offset])

	if n, ok := fixedLength[op]; ok {
		if offset+n > len(code) {
			return 0, boxtinerr.NewHardf("truncated instruction at offset %d", offset)
		}
		return n, nil
	}

	switch op {
	case Wide:
		return wideLength(code, offset)
	case Tableswitch:
		return tableswitchLength(code, offset)
	case Lookupswitch:
		return lookupswitchLength(code, offset)
	default:
		return 0, boxtinerr.NewHardf("undefined opcode 0x%02X at offset %d", byte(op), offset)
	}
}

func padTo4(offset int) int {
	// Switch operands are padded so the first operand byte starts at an
	// offset that is a multiple of 4, relative to the start of the method.
	rem := (offset + 1) % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

func tableswitchLength(code []byte, offset int) (int, error) {
	pad := padTo4(offset)
	pos := offset + 1 + pad
	if pos+12 > len(code) {
		return 0, boxtinerr.NewHardf("truncated tableswitch at offset %d", offset)
	}
	low := int32(binary.BigEndian.Uint32(code[pos+4:]))
	high := int32(binary.BigEndian.Uint32(code[pos+8:]))
	if high < low {
		return 0, boxtinerr.NewHardf("tableswitch at offset %d has high < low", offset)
	}
	n := int(high-low) + 1
	total := 1 + pad + 12 + n*4
	if offset+total > len(code) {
		return 0, boxtinerr.NewHardf("truncated tableswitch jump table at offset %d", offset)
	}
	return total, nil
}

func lookupswitchLength(code []byte, offset int) (int, error) {
	pad := padTo4(offset)
	pos := offset + 1 + pad
	if pos+8 > len(code) {
		return 0, boxtinerr.NewHardf("truncated lookupswitch at offset %d", offset)
	}
	npairs := int32(binary.BigEndian.Uint32(code[pos+4:]))
	if npairs < 0 {
		return 0, boxtinerr.NewHardf("lookupswitch at offset %d has negative npairs", offset)
	}
	total := 1 + pad + 8 + int(npairs)*8
	if offset+total > len(code) {
		return 0, boxtinerr.NewHardf("truncated lookupswitch match table at offset %d", offset)
	}
	return total, nil
}

func wideLength(code []byte, offset int) (int, error) {
	if offset+2 > len(code) {
		return 0, boxtinerr.NewHardf("truncated wide instruction at offset %d", offset)
	}
	sub := Opcode(code[offset+1])
	if sub == Iinc {
		return 6, nil // wide, opcode, indexbyte1, indexbyte2, constbyte1, constbyte2
	}
	switch sub {
	case Iload, Lload, Fload, Dload, Aload, Istore, Lstore, Fstore, Dstore, Astore, Ret:
		return 4, nil // wide, opcode, indexbyte1, indexbyte2
	default:
		return 0, boxtinerr.NewHardf("undefined wide sub-opcode 0x%02X at offset %d", byte(sub), offset)
	}
}

// Decode fully decodes the instruction at offset, resolving its operand into
// an Instruction value.
func Decode(code []byte, offset int) (Instruction, error) {
	length, err := Length(code, offset)
	if err != nil {
		return Instruction{}, err
	}
	op := Opcode(code[offset])
	inst := Instruction{Offset: offset, Opcode: op, Length: length}

	switch op {
	case Ldc:
		inst.CPIndex = uint16(code[offset+1])
	case LdcW, Ldc2W, Getstatic, Putstatic, Getfield, Putfield,
		Invokevirtual, Invokespecial, Invokestatic, Invokeinterface, Invokedynamic,
		New, Anewarray, Checkcast, Instanceof, Multianewarray:
		inst.CPIndex = binary.BigEndian.Uint16(code[offset+1:])

	case Ifeq, Ifne, Iflt, Ifge, Ifgt, Ifle,
		IfIcmpeq, IfIcmpne, IfIcmplt, IfIcmpge, IfIcmpgt, IfIcmple,
		IfAcmpeq, IfAcmpne, Goto, Jsr, Ifnull, Ifnonnull:
		delta := int16(binary.BigEndian.Uint16(code[offset+1:]))
		inst.BranchTarget = offset + int(delta)

	case GotoW, JsrW:
		delta := int32(binary.BigEndian.Uint32(code[offset+1:]))
		inst.BranchTarget = offset + int(delta)

	case Tableswitch:
		inst.Switch, err = decodeTableswitch(code, offset)
		if err != nil {
			return Instruction{}, err
		}

	case Lookupswitch:
		inst.Switch, err = decodeLookupswitch(code, offset)
		if err != nil {
			return Instruction{}, err
		}

	case Wide:
		inst.WideOpcode = Opcode(code[offset+1])
		inst.WideIndex = binary.BigEndian.Uint16(code[offset+2:])
		if inst.WideOpcode == Iinc {
			inst.WideConst = int16(binary.BigEndian.Uint16(code[offset+4:]))
		}
	}

	return inst, nil
}

func decodeTableswitch(code []byte, offset int) (*SwitchOperand, error) {
	pad := padTo4(offset)
	pos := offset + 1 + pad
	def := int32(binary.BigEndian.Uint32(code[pos:]))
	low := int32(binary.BigEndian.Uint32(code[pos+4:]))
	high := int32(binary.BigEndian.Uint32(code[pos+8:]))
	n := int(high-low) + 1

	so := &SwitchOperand{
		DefaultTarget: offset + int(def),
		Low:           int(low),
		High:          int(high),
		Targets:       make([]int, n),
	}
	tp := pos + 12
	for i := 0; i < n; i++ {
		delta := int32(binary.BigEndian.Uint32(code[tp+i*4:]))
		so.Targets[i] = offset + int(delta)
	}
	return so, nil
}

func decodeLookupswitch(code []byte, offset int) (*SwitchOperand, error) {
	pad := padTo4(offset)
	pos := offset + 1 + pad
	def := int32(binary.BigEndian.Uint32(code[pos:]))
	npairs := int32(binary.BigEndian.Uint32(code[pos+4:]))

	so := &SwitchOperand{
		DefaultTarget: offset + int(def),
		Matches:       make([]int32, npairs),
		Targets:       make([]int, npairs),
	}
	tp := pos + 8
	for i := 0; i < int(npairs); i++ {
		so.Matches[i] = int32(binary.BigEndian.Uint32(code[tp+i*8:]))
		so.Targets[i] = offset + int(binary.BigEndian.Uint32(code[tp+i*8+4:]))
	}
	return so, nil
}

// DecodeAll decodes an entire method body into a flat, offset-ordered
// instruction stream (spec §4.2 "produce a flat decoded stream with resolved
// branch targets").
func DecodeAll(code []byte) ([]Instruction, error) {
	var out []Instruction
	offset := 0
	for offset < len(code) {
		inst, err := Decode(code, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
		offset += inst.Length
	}
	return out, nil
}
