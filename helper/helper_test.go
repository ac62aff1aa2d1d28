package helper

import (
	"testing"

	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

func TestRegistryNamesHelperClassPerCaller(t *testing.T) {
	r := NewRegistry(nil, nil)
	c := r.ClassFor("com/acme/Caller")
	if c.InternalName != "com/acme/Caller$$BoxtinActions" {
		t.Errorf("unexpected helper class name: %s", c.InternalName)
	}
	again := r.ClassFor("com/acme/Caller")
	if again != c {
		t.Errorf("expected the same *Class on a second request for the same caller")
	}
}

func TestRegistryAppendsSuffixOnNameCollision(t *testing.T) {
	taken := func(name string) bool { return name == "com/acme/Caller$$BoxtinActions" }
	r := NewRegistry(nil, taken)
	c := r.ClassFor("com/acme/Caller")
	if c.InternalName != "com/acme/Caller$$BoxtinActions$1" {
		t.Errorf("expected a numeric-suffixed name, got %s", c.InternalName)
	}
}

func TestStubIsSharedAcrossIdenticalKeys(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "delete",
		MemberDescriptor: "()Z",
		Action:           policy.Standard,
		TakesReceiver:    true,
		OriginalOpcode:   instruction.Invokevirtual,
	}
	name1, desc1, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	name2, desc2, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	if name1 != name2 || desc1 != desc2 {
		t.Errorf("expected the identical key to reuse one stub, got (%s,%s) and (%s,%s)", name1, desc1, name2, desc2)
	}
	if desc1 != "(Ljava/io/File;)Z" {
		t.Errorf("expected the receiver to be prefixed into the stub descriptor, got %s", desc1)
	}
}

func TestStandardActionThrowsSecurityException(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "delete",
		MemberDescriptor: "()Z",
		Action:           policy.Standard,
		TakesReceiver:    true,
	}
	_, _, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	if len(c.methods) != 1 {
		t.Fatalf("expected one synthesized method, got %d", len(c.methods))
	}
	code := c.methods[0].Code.Code
	if code[len(code)-1] != byte(instruction.Athrow) {
		t.Errorf("expected the Standard stub to end in athrow, got opcode 0x%02X", code[len(code)-1])
	}
}

func TestEmptyActionForBooleanReturnsZero(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "mkdir",
		MemberDescriptor: "()Z",
		Action:           policy.Empty,
		TakesReceiver:    true,
	}
	_, _, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	code := c.methods[0].Code.Code
	if len(code) != 2 || code[0] != byte(instruction.Iconst0) || code[1] != byte(instruction.Ireturn) {
		t.Errorf("expected iconst_0; ireturn, got % X", code)
	}
}

func TestValueActionPushesLiteral(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	key := planner.StubKey{
		TargetClass:      "java/lang/System",
		MemberName:       "getProperty",
		MemberDescriptor: "(Ljava/lang/String;)Ljava/lang/String;",
		Action:           policy.ValueAction(policy.Literal{Kind: "string", StringVal: "redacted"}),
		TakesReceiver:    false,
	}
	_, _, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	code := c.methods[0].Code.Code
	if code[0] != byte(instruction.Ldc) || code[len(code)-1] != byte(instruction.Areturn) {
		t.Errorf("expected ldc ...; areturn, got % X", code)
	}
}

func TestCheckedActionBranchesOnPredicate(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	predicate := policy.MemberRef{ClassName: "com/acme/Guard", MethodName: "allowed", Descriptor: "()Z"}
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "delete",
		MemberDescriptor: "()Z",
		Action:           policy.CheckedAction(predicate, policy.Standard),
		TakesReceiver:    true,
		OriginalOpcode:   instruction.Invokevirtual,
	}
	_, _, err := c.Stub(key)
	if err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	code := c.methods[0].Code.Code
	foundIfeq, foundThrow := false, false
	for _, b := range code {
		if b == byte(instruction.Ifeq) {
			foundIfeq = true
		}
		if b == byte(instruction.Athrow) {
			foundThrow = true
		}
	}
	if !foundIfeq || !foundThrow {
		t.Errorf("expected both a predicate branch and a fallback athrow, got % X", code)
	}
	if len(c.methods[0].Code.StackMap) == 0 {
		t.Errorf("expected a StackMapTable frame for the deny branch the ifeq targets")
	}
}

func TestCheckedActionCallerClassSentinelUsesRealCaller(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	predicate := policy.MemberRef{ClassName: "com/acme/Guard", MethodName: "allowed", Descriptor: "(Ljava/lang/Class;)Z", TakesCallerClass: true}
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "delete",
		MemberDescriptor: "()Z",
		Action:           policy.CheckedAction(predicate, policy.Standard),
		TakesReceiver:    true,
		OriginalOpcode:   instruction.Invokevirtual,
	}
	if _, _, err := c.Stub(key); err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	idx := c.cp.InternClass("com/acme/Caller")
	found := false
	code := c.methods[0].Code.Code
	for i := 0; i+2 < len(code); i++ {
		if code[i] == byte(instruction.Ldc) && uint16(code[i+1]) == idx {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the caller-class sentinel to reference com/acme/Caller, got % X", code)
	}
}

func TestEmitProducesWellFormedClassBytes(t *testing.T) {
	c := NewClass("com/acme/Caller$$BoxtinActions", "com/acme/Caller", nil)
	key := planner.StubKey{
		TargetClass:      "java/io/File",
		MemberName:       "delete",
		MemberDescriptor: "()Z",
		Action:           policy.Standard,
		TakesReceiver:    true,
	}
	if _, _, err := c.Stub(key); err != nil {
		t.Fatalf("Stub() error: %v", err)
	}
	bytes, err := c.Emit()
	if err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if len(bytes) < 10 || bytes[0] != 0xCA || bytes[1] != 0xFE || bytes[2] != 0xBA || bytes[3] != 0xBE {
		t.Errorf("expected a class file beginning with the magic number, got % X", bytes[:4])
	}
}
