package rewriter

import (
	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/instruction"
)

// maxReflowIterations bounds the fixed-point search for switch padding (see
// segment/computeOffsets below). Real methods converge in one or two passes;
// the cap exists only to turn a pathological case into a diagnosable error
// instead of a hang.
const maxReflowIterations = 16

// segment is one span of a method's original code: either an edit's
// replacement bytes, or one untouched original instruction, carried forward
// so its length can be recomputed at a new offset (only switch instructions'
// length actually depends on offset, via their 4-byte alignment padding).
type segment struct {
	oldStart int
	isEdit   bool
	edit     edit
	inst     instruction.Instruction
}

// reflow splices oldCode per edits and re-derives every downstream offset
// reference (branch targets, switch targets, and — via the caller's separate
// exception-table/stack-map passes — everything else keyed off an
// instruction-start offset). It returns the new code and an old-offset to
// new-offset map covering every original instruction boundary plus a
// sentinel entry for len(oldCode) itself (used by EndPC == code length).
func reflow(oldCode []byte, edits []edit) ([]byte, map[int]int, error) {
	oldInsts, err := instruction.DecodeAll(oldCode)
	if err != nil {
		return nil, nil, err
	}

	segs := buildSegments(oldInsts, edits)
	newOffsets, totalLen, err := computeOffsets(segs)
	if err != nil {
		return nil, nil, err
	}

	om := make(map[int]int, len(segs)+1)
	for i, s := range segs {
		om[s.oldStart] = newOffsets[i]
	}
	om[len(oldCode)] = totalLen

	newCode, err := emitCode(oldCode, segs, newOffsets, om)
	if err != nil {
		return nil, nil, err
	}
	return newCode, om, nil
}

// buildSegments walks oldInsts in order, collapsing every instruction an
// edit covers into one segment carrying that edit's replacement.
func buildSegments(oldInsts []instruction.Instruction, edits []edit) []segment {
	var segs []segment
	ei, i := 0, 0
	for i < len(oldInsts) {
		in := oldInsts[i]
		if ei < len(edits) && edits[ei].start == in.Offset {
			e := edits[ei]
			segs = append(segs, segment{oldStart: e.start, isEdit: true, edit: e})
			for i < len(oldInsts) && oldInsts[i].Offset < e.end {
				i++
			}
			ei++
			continue
		}
		segs = append(segs, segment{oldStart: in.Offset, inst: in})
		i++
	}
	return segs
}

// segmentLength is s's encoded length if it started at newOffset. Only
// switch instructions' length depends on their offset (via alignment
// padding); everything else — edits and every other opcode — has a fixed
// length regardless of where it lands.
func segmentLength(s segment, newOffset int) int {
	if s.isEdit {
		return len(s.edit.replacement)
	}
	if s.inst.Opcode.IsSwitch() {
		return switchLength(s.inst, newOffset)
	}
	return s.inst.Length
}

func switchLength(in instruction.Instruction, newOffset int) int {
	pad := instruction.PadTo4(newOffset)
	n := len(in.Switch.Targets)
	if in.Opcode == instruction.Tableswitch {
		return 1 + pad + 12 + n*4
	}
	return 1 + pad + 8 + n*8 // lookupswitch
}

// computeOffsets finds each segment's new starting offset by iterating to a
// fixed point: a switch segment's length depends on its own offset mod 4,
// which in turn depends on the lengths of every segment before it, so a
// splice earlier in the method can shift a downstream switch's padding,
// which can shift the next switch's padding, and so on. Real methods settle
// in one or two passes.
func computeOffsets(segs []segment) ([]int, int, error) {
	offsets := make([]int, len(segs))
	total := 0
	for iter := 0; iter < maxReflowIterations; iter++ {
		changed := false
		cur := 0
		for i, s := range segs {
			if offsets[i] != cur {
				offsets[i] = cur
				changed = true
			}
			cur += segmentLength(s, cur)
		}
		total = cur
		if !changed {
			return offsets, total, nil
		}
	}
	return nil, 0, boxtinerr.NewHard("method body's switch-instruction padding did not converge while re-flowing a call-site rewrite")
}

// emitCode assembles the final code bytes from segs at their finalized
// offsets, patching every branch and switch operand against om along the
// way.
func emitCode(oldCode []byte, segs []segment, newOffsets []int, om map[int]int) ([]byte, error) {
	out := make([]byte, 0, len(oldCode))
	for i, s := range segs {
		switch {
		case s.isEdit:
			out = append(out, s.edit.replacement...)

		case s.inst.Opcode.IsBranch():
			newTarget, ok := om[s.inst.BranchTarget]
			if !ok {
				return nil, boxtinerr.NewHardf("branch target at old offset %d falls inside a spliced call site", s.inst.BranchTarget)
			}
			encoded, err := instruction.EncodeBranch(s.inst.Opcode, newOffsets[i], newTarget)
			if err != nil {
				return nil, err
			}
			out = append(out, encoded...)

		case s.inst.Opcode.IsSwitch():
			remapped, err := remapSwitch(s.inst.Switch, om)
			if err != nil {
				return nil, err
			}
			out = append(out, instruction.EncodeSwitch(newOffsets[i], remapped, s.inst.Opcode == instruction.Tableswitch)...)

		default:
			out = append(out, oldCode[s.inst.Offset:s.inst.Offset+s.inst.Length]...)
		}
	}
	return out, nil
}

func remapSwitch(so *instruction.SwitchOperand, om map[int]int) (*instruction.SwitchOperand, error) {
	def, ok := om[so.DefaultTarget]
	if !ok {
		return nil, boxtinerr.NewHardf("switch default target at old offset %d falls inside a spliced call site", so.DefaultTarget)
	}
	targets := make([]int, len(so.Targets))
	for i, t := range so.Targets {
		nt, ok := om[t]
		if !ok {
			return nil, boxtinerr.NewHardf("switch target at old offset %d falls inside a spliced call site", t)
		}
		targets[i] = nt
	}
	return &instruction.SwitchOperand{
		DefaultTarget: def,
		Low:           so.Low,
		High:          so.High,
		Matches:       so.Matches,
		Targets:       targets,
	}, nil
}
