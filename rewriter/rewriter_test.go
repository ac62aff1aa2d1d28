package rewriter

import (
	"testing"

	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

func encodeInvoke3(op instruction.Opcode, cpIndex uint16) []byte {
	b, err := instruction.EncodeInvoke(op, cpIndex, 0)
	if err != nil {
		panic(err)
	}
	return b
}

func TestReflowPatchesBranchAfterShorterReplacement(t *testing.T) {
	cp := classfile.NewConstantPool()
	ctorRef := cp.InternMethodref("com/acme/Widget", "<init>", "()V")
	stubRef := cp.InternMethodref("com/acme/Caller$$BoxtinActions", "stub", "()Lcom/acme/Widget;")

	var code []byte
	code = append(code, byte(instruction.New), 0, 0) // 0..3: new (class index patched below)
	code = append(code, byte(instruction.Dup))       // 3..4: dup
	code = append(code, encodeInvoke3(instruction.Invokespecial, ctorRef)...) // 4..7
	ifeqStart := len(code)
	code = append(code, byte(instruction.Ifeq), 0, 0) // 7..10, target patched below
	code = append(code, byte(instruction.Iconst1))    // 10..11
	code = append(code, byte(instruction.Ireturn))    // 11..12
	code = append(code, byte(instruction.Iconst0))    // 12..13
	code = append(code, byte(instruction.Ireturn))    // 13..14

	if err := instruction.PatchBranchTarget(code, ifeqStart, instruction.Ifeq, 12); err != nil {
		t.Fatalf("failed to seed ifeq target: %v", err)
	}

	replacement := encodeInvoke3(instruction.Invokestatic, stubRef)
	edits := []edit{{start: 0, end: 7, replacement: replacement}}

	newCode, om, err := reflow(code, edits)
	if err != nil {
		t.Fatalf("reflow() error: %v", err)
	}
	if len(newCode) != 10 {
		t.Fatalf("len(newCode) = %d, want 10", len(newCode))
	}
	if newCode[3] != byte(instruction.Ifeq) {
		t.Fatalf("expected ifeq at new offset 3, got opcode 0x%02X", newCode[3])
	}

	insts, err := instruction.DecodeAll(newCode)
	if err != nil {
		t.Fatalf("DecodeAll(newCode) error: %v", err)
	}
	var ifeqInst instruction.Instruction
	found := false
	for _, in := range insts {
		if in.Opcode == instruction.Ifeq {
			ifeqInst = in
			found = true
		}
	}
	if !found {
		t.Fatalf("no ifeq found in rewritten code")
	}
	wantTarget, ok := om[12]
	if !ok {
		t.Fatalf("offset map has no entry for old offset 12")
	}
	if ifeqInst.BranchTarget != wantTarget {
		t.Errorf("ifeq branch target = %d, want %d", ifeqInst.BranchTarget, wantTarget)
	}
}

func TestFindPrecedingNewDupSkipsNestedConstruction(t *testing.T) {
	cp := classfile.NewConstantPool()
	innerCtor := cp.InternMethodref("com/acme/Inner", "<init>", "()V")
	outerCtor := cp.InternMethodref("com/acme/Outer", "<init>", "(Lcom/acme/Inner;)V")
	pc := &classfile.ParsedClass{ConstantPool: cp}

	var code []byte
	outerNewAt := len(code)
	code = append(code, byte(instruction.New), 0, 0) // outer new
	code = append(code, byte(instruction.Dup))       // outer dup
	code = append(code, byte(instruction.New), 0, 0) // inner new
	code = append(code, byte(instruction.Dup))       // inner dup
	code = append(code, encodeInvoke3(instruction.Invokespecial, innerCtor)...)
	outerInvokespecialAt := len(code)
	code = append(code, encodeInvoke3(instruction.Invokespecial, outerCtor)...)

	insts, err := instruction.DecodeAll(code)
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}

	got, err := findPrecedingNewDup(pc, insts, outerInvokespecialAt)
	if err != nil {
		t.Fatalf("findPrecedingNewDup error: %v", err)
	}
	if got != outerNewAt {
		t.Errorf("findPrecedingNewDup() = %d, want %d (the outer new)", got, outerNewAt)
	}
}

func TestFindPrecedingNewDupRejectsUnrecognizedPattern(t *testing.T) {
	cp := classfile.NewConstantPool()
	ctorRef := cp.InternMethodref("com/acme/Widget", "<init>", "()V")
	pc := &classfile.ParsedClass{ConstantPool: cp}

	// A receiver loaded from a local variable, with no preceding new/dup at
	// all, is outside the recognized construction pattern.
	var code []byte
	code = append(code, byte(instruction.Aload0))
	invokespecialAt := len(code)
	code = append(code, encodeInvoke3(instruction.Invokespecial, ctorRef)...)

	insts, err := instruction.DecodeAll(code)
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}

	if _, err := findPrecedingNewDup(pc, insts, invokespecialAt); err == nil {
		t.Fatalf("expected an error for an unrecognized construction pattern")
	}
}

// TestRewriteSplicesTargetEntryDenyPrologue drives a real method (with one
// pre-existing instruction, so the splice must insert ahead of it rather
// than replace it) through planner.Plan and rewriter.Rewrite end to end,
// for a class carrying a DenyAtTarget("delete") rule on itself.
func TestRewriteSplicesTargetEntryDenyPrologue(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z")

	b := policy.NewBuilder(catalog)
	b.ForModule("java.base").ForPackage("java/io").ForClass("File").
		TargetCheck().DenyMethod("delete", policy.Standard)
	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	cp := classfile.NewConstantPool()
	thisClass := cp.InternClass("java/io/File")
	code := []byte{byte(instruction.Iconst1), byte(instruction.Ireturn)}
	pc := &classfile.ParsedClass{
		MajorVersion: 61,
		ConstantPool: cp,
		ThisClass:    thisClass,
		Methods: []classfile.Method{
			{
				NameIndex: cp.InternUtf8("delete"),
				DescIndex: cp.InternUtf8("()Z"),
				Code:      &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 1, Code: code},
			},
		},
	}

	plan, err := planner.Plan(pc, rules, "java.base", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan.Methods[0].Entries) != 1 || plan.Methods[0].Entries[0].Action != planner.TargetEntryDeny {
		t.Fatalf("expected a single TargetEntryDeny entry, got %+v", plan.Methods[0].Entries)
	}

	registry := helper.NewRegistry(catalog, nil)
	out, err := Rewrite(plan, registry)
	if err != nil {
		t.Fatalf("Rewrite() error: %v", err)
	}

	rewritten, err := classfile.Parse(out)
	if err != nil {
		t.Fatalf("re-parsing rewritten class: %v", err)
	}
	m := rewritten.Methods[0]
	insts, err := instruction.DecodeAll(m.Code.Code)
	if err != nil {
		t.Fatalf("decoding rewritten method body: %v", err)
	}
	if insts[0].Opcode != instruction.New {
		t.Errorf("expected the prologue's `new SecurityException` to lead the method, got opcode 0x%02X", insts[0].Opcode)
	}
	foundAthrow := false
	for _, in := range insts {
		if in.Opcode == instruction.Athrow {
			foundAthrow = true
		}
	}
	if !foundAthrow {
		t.Errorf("expected the spliced prologue to throw, found no athrow in %+v", insts)
	}
	if m.Code.MaxStack < 2 {
		t.Errorf("MaxStack = %d, want at least 2 for the prologue's new/dup", m.Code.MaxStack)
	}
	if len(m.Code.StackMap) == 0 {
		t.Errorf("expected a synthesized StackMapTable frame at the prologue/body join, got none")
	}
}

func TestReencodeFramePromotesSameFrameWhenDeltaOverflows(t *testing.T) {
	f := classfile.StackMapFrame{FrameType: 10, OffsetDelta: 10, Raw: []byte{10}}
	raw, frameType, err := reencodeFrame(f, 100)
	if err != nil {
		t.Fatalf("reencodeFrame error: %v", err)
	}
	if frameType != frameSameExtended {
		t.Errorf("frameType = %d, want %d (same_frame_extended)", frameType, frameSameExtended)
	}
	if len(raw) != 3 || raw[0] != frameSameExtended || raw[1] != 0 || raw[2] != 100 {
		t.Errorf("unexpected raw bytes: % X", raw)
	}
}

func TestReencodeFramePatchesExplicitDeltaInPlace(t *testing.T) {
	f := classfile.StackMapFrame{FrameType: 255, OffsetDelta: 5, Raw: []byte{255, 0, 5, 0, 1, 4, 0, 2, 7}}
	raw, frameType, err := reencodeFrame(f, 20)
	if err != nil {
		t.Fatalf("reencodeFrame error: %v", err)
	}
	if frameType != 255 {
		t.Errorf("frameType changed for an explicit-delta frame: %d", frameType)
	}
	if raw[1] != 0 || raw[2] != 20 {
		t.Errorf("delta field not patched: % X", raw[1:3])
	}
	if len(raw) != len(f.Raw) {
		t.Errorf("raw length changed for an explicit-delta frame: got %d, want %d", len(raw), len(f.Raw))
	}
}

func TestReencodeFrameSameLocals1StackItemStaysImplicitWhenItFits(t *testing.T) {
	f := classfile.StackMapFrame{FrameType: 70, OffsetDelta: 6, Raw: []byte{70, 1}}
	raw, frameType, err := reencodeFrame(f, 20)
	if err != nil {
		t.Fatalf("reencodeFrame error: %v", err)
	}
	if frameType != 84 { // 64 + 20
		t.Errorf("frameType = %d, want 84", frameType)
	}
	if len(raw) != 2 || raw[0] != 84 || raw[1] != 1 {
		t.Errorf("unexpected raw bytes: % X", raw)
	}
}
