package instruction

import "testing"

func TestLengthFixedWidth(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int
	}{
		{"nop", []byte{byte(Nop)}, 1},
		{"bipush", []byte{byte(Bipush), 5}, 2},
		{"sipush", []byte{byte(Sipush), 0, 5}, 3},
		{"invokevirtual", []byte{byte(Invokevirtual), 0, 1}, 3},
		{"invokeinterface", []byte{byte(Invokeinterface), 0, 1, 1, 0}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Length(tt.code, 0)
			if err != nil {
				t.Fatalf("Length() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Length() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLengthUndefinedOpcode(t *testing.T) {
	// 0xBA is invokedynamic (defined); pick a genuinely reserved byte.
	_, err := Length([]byte{0xFE}, 0)
	if err == nil {
		t.Fatalf("expected an error for an undefined opcode")
	}
}

func TestDecodeBranchTarget(t *testing.T) {
	// goto +5 at offset 10 should target offset 15.
	code := make([]byte, 20)
	code[10] = byte(Goto)
	code[11] = 0
	code[12] = 5

	inst, err := Decode(code, 10)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if inst.BranchTarget != 15 {
		t.Errorf("BranchTarget = %d, want 15", inst.BranchTarget)
	}
	if inst.Length != 3 {
		t.Errorf("Length = %d, want 3", inst.Length)
	}
}

func TestPatchBranchTargetRoundTrips(t *testing.T) {
	code := make([]byte, 20)
	code[10] = byte(Goto)
	code[11] = 0
	code[12] = 5

	if err := PatchBranchTarget(code, 10, Goto, 18); err != nil {
		t.Fatalf("PatchBranchTarget error: %v", err)
	}
	inst, err := Decode(code, 10)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if inst.BranchTarget != 18 {
		t.Errorf("BranchTarget after patch = %d, want 18", inst.BranchTarget)
	}
}

func TestDecodeAllWalksSequentially(t *testing.T) {
	code := []byte{byte(Iconst0), byte(Iconst1), byte(Iadd), byte(Ireturn)}
	insts, err := DecodeAll(code)
	if err != nil {
		t.Fatalf("DecodeAll error: %v", err)
	}
	if len(insts) != 4 {
		t.Fatalf("got %d instructions, want 4", len(insts))
	}
	for i, inst := range insts {
		if inst.Offset != i {
			t.Errorf("instruction %d: Offset = %d, want %d", i, inst.Offset, i)
		}
	}
}

func TestTableswitchLengthAndPadding(t *testing.T) {
	// tableswitch at offset 1 (so padding is needed to reach a multiple of 4
	// relative to offset+1): default=0, low=0, high=1, two 4-byte targets.
	code := make([]byte, 1+3+12+8) // conservative upper bound
	code[0] = byte(Nop)
	code[1] = byte(Tableswitch)
	code[15] = 1 // high=1: low byte of the high field (opcode at 1, 2 pad bytes, default 4..7, low 8..11, high 12..15)

	length, err := Length(code, 1)
	if err != nil {
		t.Fatalf("Length error: %v", err)
	}
	pad := padTo4(1)
	want := 1 + pad + 12 + 2*4
	if length != want {
		t.Errorf("tableswitch length = %d, want %d (pad=%d)", length, want, pad)
	}
}

func TestEncodeSwitchRecomputesPadding(t *testing.T) {
	so := &SwitchOperand{
		DefaultTarget: 100,
		Low:           0,
		High:          1,
		Targets:       []int{50, 60},
	}
	encoded := EncodeSwitch(0, so, true)
	decoded, err := decodeTableswitch(encoded, 0)
	if err != nil {
		t.Fatalf("decodeTableswitch error: %v", err)
	}
	if decoded.DefaultTarget != 100 || decoded.Targets[0] != 50 || decoded.Targets[1] != 60 {
		t.Errorf("round-trip mismatch: %+v", decoded)
	}
}

func TestIsInvocationCoversAllFiveForms(t *testing.T) {
	for _, op := range []Opcode{Invokevirtual, Invokespecial, Invokestatic, Invokeinterface, Invokedynamic} {
		if !op.IsInvocation() {
			t.Errorf("opcode 0x%02X should be an invocation", byte(op))
		}
	}
	if Nop.IsInvocation() {
		t.Errorf("nop should not be an invocation")
	}
}
