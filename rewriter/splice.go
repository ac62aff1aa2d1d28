package rewriter

import (
	"sort"

	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/planner"
)

// edit is one contiguous span of the original code replaced by new bytes.
type edit struct {
	start, end  int // [start, end) in the original code
	replacement []byte
}

// maxConstructorArgScan bounds how far findPrecedingNewDup walks backward
// before giving up, so a malformed or adversarial method body can't hang the
// rewriter.
const maxConstructorArgScan = 4096

// buildEdits computes the splice for every non-Keep entry in mp, resolving
// each entry's stub through registry. DenyReplace and CheckedWrap entries
// get the identical splice: substitute the invocation with an invokestatic
// to the resolved stub (spec §4.4's decision table has a single "Replace
// with invoke_stub(a)" row for DenyAtCaller regardless of the action's
// kind — the predicate-then-maybe-proceed logic a Checked action needs
// lives entirely inside the stub body the helper package synthesizes, not
// at the call site).
func buildEdits(pc *classfile.ParsedClass, mp *planner.MethodPlan, callerName string, registry *helper.Registry) ([]edit, uint16, []syntheticFrame, error) {
	code := mp.Method.Code.Code
	var insts []instruction.Instruction // decoded lazily, only if a constructor entry needs it

	var edits []edit
	var prologueStack uint16
	var synthetic []syntheticFrame
	for _, entry := range mp.Entries {
		if entry.Action == planner.TargetEntryDeny {
			isStatic := mp.Method.AccessFlags&accStaticMethod != 0
			prologue, stack, joins, err := buildTargetPrologue(pc.ConstantPool, entry, isStatic)
			if err != nil {
				return nil, 0, nil, err
			}
			edits = append(edits, edit{start: 0, end: 0, replacement: prologue})
			prologueStack = stack

			// A target prologue is always spliced at offset 0, so every
			// join offset it reports is already the join's final offset
			// in the rewritten method (spec §8 "Stack-map validity").
			localsCount, localsData := prologueLocalsFrame(pc.ConstantPool, entry, isStatic)
			for _, off := range joins {
				synthetic = append(synthetic, syntheticFrame{offset: off, localsCount: localsCount, localsData: localsData})
			}
			continue
		}
		if entry.Action != planner.DenyReplace && entry.Action != planner.CheckedWrap {
			continue // Keep leaves the caller's code untouched
		}

		helperClass, stubName, stubDescriptor, err := registry.Stub(callerName, entry.Stub)
		if err != nil {
			return nil, 0, nil, err
		}
		methodRef := pc.ConstantPool.InternMethodref(helperClass, stubName, stubDescriptor)
		call, err := instruction.EncodeInvoke(instruction.Invokestatic, methodRef, 0)
		if err != nil {
			return nil, 0, nil, err
		}

		start := entry.Instruction.Offset
		end := entry.Instruction.Offset + entry.Instruction.Length
		if entry.IsConstructor {
			if insts == nil {
				insts, err = instruction.DecodeAll(code)
				if err != nil {
					return nil, 0, nil, err
				}
			}
			start, err = findPrecedingNewDup(pc, insts, entry.Instruction.Offset)
			if err != nil {
				return nil, 0, nil, err
			}
		}

		edits = append(edits, edit{start: start, end: end, replacement: call})
	}

	// Ties (same start) are broken by ascending end so a zero-length prologue
	// insertion at offset 0 always sorts before a same-offset call-site
	// replacement, rather than depending on sort.Slice's unspecified order
	// for equal keys.
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start < edits[j].start
		}
		return edits[i].end < edits[j].end
	})
	return edits, prologueStack, synthetic, nil
}

// accStaticMethod is the method access_flags bit marking a static method
// (JVMS §4.6), mirrored here because buildEdits needs it and importing the
// planner package's own unexported copy isn't possible.
const accStaticMethod = 0x0008

// findPrecedingNewDup walks backward from the instruction at
// invokespecialOffset looking for the "new <C>; dup" pair that produced its
// receiver — the pattern javac emits for `new C(...)`, so the whole
// construction sequence (new, dup, arguments, invokespecial <init>) can be
// replaced as a unit by a single call to a stub that returns the
// constructed-or-substitute instance directly (spec §4.4, "constructors are
// spliced as a unit").
//
// Nested constructions used as arguments (`new Outer(new Inner())`) are
// tracked with a pending-count so the search doesn't stop at the nested
// pair's own dup; anything else — dup_x1/dup2 argument-reordering tricks, a
// receiver threaded through a local variable — is outside this recognized
// pattern and reported as a hard error rather than guessed at.
func findPrecedingNewDup(pc *classfile.ParsedClass, insts []instruction.Instruction, invokespecialOffset int) (int, error) {
	idx := -1
	for i, in := range insts {
		if in.Offset == invokespecialOffset {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return 0, boxtinerr.NewHard("constructor call has no preceding instruction to hold its receiver")
	}

	pendingNested := 0
	for i := idx - 1; i >= 0 && idx-i <= maxConstructorArgScan; i-- {
		in := insts[i]
		switch in.Opcode {
		case instruction.Invokespecial:
			_, name, _ := pc.ConstantPool.MethodrefInfo(in.CPIndex)
			if name == "<init>" {
				pendingNested++
			}
		case instruction.Dup:
			if pendingNested > 0 {
				pendingNested--
				continue
			}
			if i == 0 || insts[i-1].Opcode != instruction.New {
				return 0, boxtinerr.NewHard("constructor call's dup is not preceded by new")
			}
			return insts[i-1].Offset, nil
		case instruction.New:
			if pendingNested > 0 {
				pendingNested--
			}
		}
	}
	return 0, boxtinerr.NewHard("constructor call is not preceded by a recognized new; dup pattern")
}
