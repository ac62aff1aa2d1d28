package agent

import (
	"testing"

	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/policy"
)

// fakeInstrumentation records whatever Transformer Activate registers, the
// way a real host's instrumentation hook would keep it for later class
// loads.
type fakeInstrumentation struct {
	registered Transformer
}

func (f *fakeInstrumentation) AddTransformer(t Transformer) { f.registered = t }

func resetForTest(t *testing.T) {
	t.Helper()
	reset()
	t.Cleanup(func() { reset() })
}

func TestPremainDefaultsToAllowAllController(t *testing.T) {
	resetForTest(t)
	if err := Premain(""); err != nil {
		t.Fatalf("Premain(\"\") error: %v", err)
	}
	if singleton.st != statePreArmed {
		t.Fatalf("state = %s, want %s", singleton.st, statePreArmed)
	}
	if _, ok := singleton.ctrl.(allowAllController); !ok {
		t.Fatalf("ctrl = %T, want allowAllController", singleton.ctrl)
	}
}

func TestPremainRejectsUnknownController(t *testing.T) {
	resetForTest(t)
	if err := Premain("no-such-controller"); err == nil {
		t.Fatal("expected an error for an unregistered controller name")
	}
	if singleton.st != stateUninitialized {
		t.Fatalf("state = %s, want %s after a failed premain", singleton.st, stateUninitialized)
	}
}

func TestPremainParsesControllerArgs(t *testing.T) {
	var gotArgs string
	RegisterController("recording", func(args string) (Controller, error) {
		gotArgs = args
		return allowAllController{}, nil
	})
	resetForTest(t)

	if err := Premain("recording=verbose"); err != nil {
		t.Fatalf("Premain error: %v", err)
	}
	if gotArgs != "verbose" {
		t.Fatalf("ctorArgs = %q, want %q", gotArgs, "verbose")
	}
}

func TestActivateRegistersTransformerAndTransitionsToActive(t *testing.T) {
	resetForTest(t)
	if err := Premain(""); err != nil {
		t.Fatalf("Premain error: %v", err)
	}
	inst := &fakeInstrumentation{}
	if err := Activate(inst, nil); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	if singleton.st != stateActive {
		t.Fatalf("state = %s, want %s", singleton.st, stateActive)
	}
	if inst.registered == nil {
		t.Fatal("Activate did not register a transformer")
	}
}

func TestActivateBeforePremainFails(t *testing.T) {
	resetForTest(t)
	if err := Activate(&fakeInstrumentation{}, allowAllController{}); err == nil {
		t.Fatal("expected Activate to fail before Premain ran")
	}
}

func TestReentrantActivationRejected(t *testing.T) {
	resetForTest(t)
	if err := Premain(""); err != nil {
		t.Fatalf("Premain error: %v", err)
	}
	if err := Activate(&fakeInstrumentation{}, nil); err != nil {
		t.Fatalf("first Activate error: %v", err)
	}
	if err := Activate(&fakeInstrumentation{}, nil); err != ErrAlreadyActive {
		t.Fatalf("second Activate error = %v, want ErrAlreadyActive", err)
	}
}

func TestRetireAllowsFreshActivation(t *testing.T) {
	resetForTest(t)
	if err := Premain(""); err != nil {
		t.Fatalf("Premain error: %v", err)
	}
	if err := Activate(&fakeInstrumentation{}, nil); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
	Retire()
	if singleton.st != stateRetired {
		t.Fatalf("state = %s, want %s", singleton.st, stateRetired)
	}

	newCtrl := allowAllController{}
	if err := Activate(&fakeInstrumentation{}, newCtrl); err != nil {
		t.Fatalf("Activate after Retire error: %v", err)
	}
	if singleton.st != stateActive {
		t.Fatalf("state = %s, want %s", singleton.st, stateActive)
	}
}

func TestTransformBeforeActiveFails(t *testing.T) {
	resetForTest(t)
	if _, err := singleton.Transform("m", "com/acme/Foo", classfile.EmptyClass("com/acme/Foo")); err == nil {
		t.Fatal("expected Transform to fail before activation")
	}
}

func TestTransformLeavesBadMagicUnchanged(t *testing.T) {
	resetForTest(t)
	mustActivate(t)

	out, err := singleton.Transform("m", "com/acme/Foo", []byte("not a class file"))
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	if out != nil {
		t.Fatalf("Transform returned non-nil bytes for a bad-magic input: %v", out)
	}
}

func TestTransformLeavesClassWithNoCallSitesUnchanged(t *testing.T) {
	resetForTest(t)
	mustActivate(t)

	raw := classfile.EmptyClass("com/acme/Foo")
	out, err := singleton.Transform("m", "com/acme/Foo", raw)
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	if out != nil {
		t.Fatalf("Transform rewrote a class with no invocation sites: %v", out)
	}
}

func TestTransformReplacesUnsupportedMajorVersionWithEmptyClass(t *testing.T) {
	resetForTest(t)
	mustActivate(t)

	raw := classfile.EmptyClass("com/acme/Future")
	// Major version lives at bytes [6:8]; push it past MaxSupportedMajor.
	raw[6] = 0
	raw[7] = byte(classfile.MaxSupportedMajor + 1)

	out, err := singleton.Transform("m", "com/acme/Future", raw)
	if err != nil {
		t.Fatalf("Transform error: %v", err)
	}
	pc, err := classfile.Parse(out)
	if err != nil {
		t.Fatalf("re-parsing the empty-class substitute failed: %v", err)
	}
	if pc.ThisClassName() != "com/acme/Future" {
		t.Fatalf("empty-class substitute names %q, want %q", pc.ThisClassName(), "com/acme/Future")
	}
}

func TestDefaultControllerAllowsEverything(t *testing.T) {
	ctrl := allowAllController{}
	rules, err := ctrl.RulesForCaller("any.module")
	if err != nil {
		t.Fatalf("RulesForCaller error: %v", err)
	}
	view := rules.ForClass("other.module", "java/io", "File")
	if !view.ReadableFrom("any.module") {
		t.Fatal("allowAllController's Rules should be readable from any module")
	}
	if rule := view.RuleForMethod("delete", "()"); rule.Kind != policy.RuleAllow {
		t.Fatalf("rule.Kind = %v, want RuleAllow", rule.Kind)
	}
}

func TestRulesForTargetFallsBackToCallerRules(t *testing.T) {
	ctrl := allowAllController{}
	rules, err := RulesForTarget(ctrl)
	if err != nil {
		t.Fatalf("RulesForTarget error: %v", err)
	}
	if rules == nil {
		t.Fatal("RulesForTarget returned a nil Rules")
	}
}

func mustActivate(t *testing.T) {
	t.Helper()
	if err := Premain(""); err != nil {
		t.Fatalf("Premain error: %v", err)
	}
	if err := Activate(&fakeInstrumentation{}, nil); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
}
