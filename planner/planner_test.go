package planner

import (
	"testing"

	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/policy"
)

// buildClassWithOneCall constructs a minimal ParsedClass whose sole method
// invokes targetClass.targetMethod()V via invokevirtual.
func buildClassWithOneCall(t *testing.T, targetClass, targetMethod, descriptor string) *classfile.ParsedClass {
	t.Helper()
	cp := classfile.NewConstantPool()
	thisClass := cp.InternClass("com/acme/Caller")
	methodref := cp.InternMethodref(targetClass, targetMethod, descriptor)

	code := []byte{
		byte(instruction.Invokevirtual), byte(methodref >> 8), byte(methodref),
		byte(instruction.Return),
	}

	nameIdx := cp.InternUtf8("run")
	descIdx := cp.InternUtf8("()V")

	pc := &classfile.ParsedClass{
		MajorVersion: 61,
		ConstantPool: cp,
		ThisClass:    thisClass,
		Methods: []classfile.Method{
			{
				NameIndex: nameIdx,
				DescIndex: descIdx,
				Code: &classfile.CodeAttribute{
					MaxStack:  2,
					MaxLocals: 1,
					Code:      code,
				},
			},
		},
	}
	return pc
}

func builtRules(t *testing.T, catalog policy.Catalog, configure func(*policy.Builder)) *policy.Rules {
	t.Helper()
	b := policy.NewBuilder(catalog)
	if configure != nil {
		configure(b)
	}
	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return rules
}

func TestPlanKeepsAllowedInvocation(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithReads("app", "java.base")

	pc := buildClassWithOneCall(t, "java/io/File", "delete", "()Z")
	rules := builtRules(t, catalog, nil)

	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan.Methods) != 1 || len(plan.Methods[0].Entries) != 1 {
		t.Fatalf("expected one method with one plan entry, got %+v", plan.Methods)
	}
	if plan.Methods[0].Entries[0].Action != Keep {
		t.Errorf("expected Keep, got %v", plan.Methods[0].Entries[0].Action)
	}
}

func TestPlanReplacesDeniedInvocation(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithReads("app", "java.base")

	pc := buildClassWithOneCall(t, "java/io/File", "delete", "()Z")
	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", policy.Standard)
	})

	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	entry := plan.Methods[0].Entries[0]
	if entry.Action != DenyReplace {
		t.Errorf("expected DenyReplace, got %v", entry.Action)
	}
	if entry.Stub.TargetClass != "java/io/File" || entry.Stub.MemberName != "delete" {
		t.Errorf("unexpected stub key: %+v", entry.Stub)
	}
}

func TestPlanChecksCheckedAction(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithReads("app", "java.base")

	predicate := policy.MemberRef{ClassName: "com/acme/Guard", MethodName: "allowed", Descriptor: "()Z"}
	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").
			DenyMethod("delete", policy.CheckedAction(predicate, policy.Standard))
	})

	pc := buildClassWithOneCall(t, "java/io/File", "delete", "()Z")
	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Methods[0].Entries[0].Action != CheckedWrap {
		t.Errorf("expected CheckedWrap, got %v", plan.Methods[0].Entries[0].Action)
	}
}

func TestPlanDenyAtTargetLeavesCallerUntouched(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithReads("app", "java.base")

	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").
			TargetCheck().DenyMethod("delete", policy.Standard)
	})

	pc := buildClassWithOneCall(t, "java/io/File", "delete", "()Z")
	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Methods[0].Entries[0].Action != Keep {
		t.Errorf("DenyAtTarget should keep the caller-side call site, got %v", plan.Methods[0].Entries[0].Action)
	}
	if plan.Methods[0].Entries[0].Rule.Kind != policy.RuleDenyAtTarget {
		t.Errorf("expected the resolved rule to still be DenyAtTarget, got %+v", plan.Methods[0].Entries[0].Rule)
	}
}

func TestPlanSubtypeDenyReachesThroughBaseClassReference(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("app", "com/acme", "BaseProvider", "java/lang/Object", nil).
		WithMethod("app", "com/acme", "BaseProvider", "put", []string{"Ljava/lang/String;", "Ljava/lang/String;"}, "V").
		WithClass("app", "com/acme", "DeniedProvider", "com/acme/BaseProvider", nil).
		// The catalog lists each class's flat member table (inherited members
		// included), so the inherited "put" is registered here too.
		WithMethod("app", "com/acme", "DeniedProvider", "put", []string{"Ljava/lang/String;", "Ljava/lang/String;"}, "V")

	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("app").ForPackage("com/acme").ForClass("DeniedProvider").
			DenyVariant("put", policy.Standard, "Ljava/lang/String;", "Ljava/lang/String;")
	})

	// The call site references the base class statically, as in spec §8
	// scenario 6 (cast to an interface/base type doesn't erase the deny).
	pc := buildClassWithOneCall(t, "com/acme/BaseProvider", "put", "(Ljava/lang/String;Ljava/lang/String;)V")

	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if plan.Methods[0].Entries[0].Action != DenyReplace {
		t.Errorf("expected the subclass deny to reach through the base-class reference, got %v", plan.Methods[0].Entries[0].Action)
	}
}

// buildClassWithOneMethod constructs a minimal ParsedClass named selfClass
// declaring one method (name/descriptor) with an empty body, used to plan
// that class as a DenyAtTarget *target* rather than as a caller.
func buildClassWithOneMethod(t *testing.T, selfClass, methodName, descriptor string, static bool) *classfile.ParsedClass {
	t.Helper()
	cp := classfile.NewConstantPool()
	thisClass := cp.InternClass(selfClass)

	code := []byte{byte(instruction.Return)}
	var flags uint16
	if static {
		flags = 0x0008 // ACC_STATIC
	}

	pc := &classfile.ParsedClass{
		MajorVersion: 61,
		ConstantPool: cp,
		ThisClass:    thisClass,
		Methods: []classfile.Method{
			{
				AccessFlags: flags,
				NameIndex:   cp.InternUtf8(methodName),
				DescIndex:   cp.InternUtf8(descriptor),
				Code:        &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 1, Code: code},
			},
		},
	}
	return pc
}

func TestPlanEmitsTargetEntryDenyForOwnDeniedMethod(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z")

	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").
			TargetCheck().DenyMethod("delete", policy.Standard)
	})

	pc := buildClassWithOneMethod(t, "java/io/File", "delete", "()Z", false)
	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan.Methods) != 1 || len(plan.Methods[0].Entries) != 1 {
		t.Fatalf("expected one target-entry-deny plan entry, got %+v", plan.Methods)
	}
	entry := plan.Methods[0].Entries[0]
	if entry.Action != TargetEntryDeny {
		t.Errorf("expected TargetEntryDeny, got %v", entry.Action)
	}
	if entry.Stub.TargetClass != "java/io/File" || entry.Stub.MemberName != "delete" {
		t.Errorf("unexpected stub key: %+v", entry.Stub)
	}
	if !entry.Stub.TakesReceiver {
		t.Errorf("an instance method's prologue stub should take a receiver")
	}
}

func TestPlanOmitsTargetEntryDenyWhenClassIsUnknown(t *testing.T) {
	catalog := policy.NewStaticCatalog() // File never registered
	rules := builtRules(t, catalog, nil)

	pc := buildClassWithOneMethod(t, "java/io/File", "delete", "()Z", false)
	plan, err := Plan(pc, rules, "app", catalog)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan.Methods[0].Entries) != 0 {
		t.Errorf("an unlocatable class should never get a target-entry-deny prologue, got %+v", plan.Methods[0].Entries)
	}
}

func TestPlanIgnoresInvokedynamic(t *testing.T) {
	cp := classfile.NewConstantPool()
	thisClass := cp.InternClass("com/acme/Caller")
	code := []byte{byte(instruction.Invokedynamic), 0, 1, 0, 0, byte(instruction.Return)}
	pc := &classfile.ParsedClass{
		MajorVersion: 61,
		ConstantPool: cp,
		ThisClass:    thisClass,
		Methods: []classfile.Method{
			{
				NameIndex: cp.InternUtf8("run"),
				DescIndex: cp.InternUtf8("()V"),
				Code:      &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 1, Code: code},
			},
		},
	}
	rules := builtRules(t, nil, nil)

	plan, err := Plan(pc, rules, "app", nil)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan.Methods[0].Entries) != 0 {
		t.Errorf("invokedynamic sites should not produce a plain Methodref plan entry, got %+v", plan.Methods[0].Entries)
	}
}
