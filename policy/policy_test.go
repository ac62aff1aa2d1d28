package policy

import "testing"

func sampleCatalog() *StaticCatalog {
	return NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithMethod("java.base", "java/io", "File", "mkdir", nil, "Z").
		WithConstructor("java.base", "java/io", "File", []string{"Ljava/lang/String;"}).
		WithClass("app", "com/acme", "Widget", "java/lang/Object", nil).
		WithReads("app", "java.base")
}

func TestAllowAllIsDefault(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	rule := rules.ForClass("java.base", "java/io", "File").RuleForMethod("delete", "()")
	if rule.Kind != RuleAllow {
		t.Errorf("expected Allow by default, got %+v", rule)
	}
}

func TestDenyMethodIsEnforcedAtCaller(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	b.ForModule("java.base").
		ForPackage("java/io").
		ForClass("File").
		DenyMethod("delete", Standard)

	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	rule := rules.ForClass("java.base", "java/io", "File").RuleForMethod("delete", "()")
	if rule.Kind != RuleDenyAtCaller {
		t.Errorf("expected DenyAtCaller, got %+v", rule)
	}
	if rule.Action.Kind != ActionStandard {
		t.Errorf("expected Standard action, got %+v", rule.Action)
	}

	// mkdir was not denied, so it should still be allowed.
	other := rules.ForClass("java.base", "java/io", "File").RuleForMethod("mkdir", "()")
	if other.Kind != RuleAllow {
		t.Errorf("mkdir should remain allowed, got %+v", other)
	}
}

func TestDenyAllThenAllowVariantNarrowsBack(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	b.ForModule("java.base").
		ForPackage("java/io").
		ForClass("File").
		DenyAll().
		AllowMethod("mkdir")

	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	view := rules.ForClass("java.base", "java/io", "File")
	if r := view.RuleForMethod("mkdir", "()"); r.Kind != RuleAllow {
		t.Errorf("mkdir should be allowed after narrowing, got %+v", r)
	}
	if r := view.RuleForMethod("delete", "()"); r.Kind != RuleDenyAtCaller {
		t.Errorf("delete should remain denied by the class-level DenyAll, got %+v", r)
	}
}

func TestModuleDefaultDenyPropagatesToUnlistedClasses(t *testing.T) {
	cat := NewStaticCatalog().WithClass("java.base", "java/io", "File", "java/lang/Object", nil)
	b := NewBuilder(cat)
	b.ForModule("java.base").DenyAll()

	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	rule := rules.ForClass("java.base", "java/io", "File").RuleForMethod("delete", "()")
	if rule.Kind != RuleDenyAtCaller {
		t.Errorf("expected module-level DenyAll to cover an unlisted class, got %+v", rule)
	}
}

func TestBuildRejectsUnknownClass(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	b.ForModule("java.base").ForPackage("java/io").ForClass("NoSuchClass").DenyAll()

	_, err := b.Build()
	if err == nil {
		t.Fatalf("expected an error for an unknown class")
	}
}

func TestBuildRejectsCheckedWrappingChecked(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	predicate := MemberRef{ClassName: "com/acme/Guard", MethodName: "allowed", Descriptor: "()Z"}
	inner := CheckedAction(predicate, Standard)
	b.ForModule("java.base").
		ForPackage("java/io").
		ForClass("File").
		DenyMethod("delete", CheckedAction(predicate, inner))

	_, err := b.Build()
	if err == nil {
		t.Fatalf("expected an error for a Checked action nesting another Checked action")
	}
}

func TestTargetCheckSelectsDenyAtTarget(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	b.ForModule("java.base").
		ForPackage("java/io").
		ForClass("File").
		TargetCheck().
		DenyMethod("delete", Standard)

	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	rule := rules.ForClass("java.base", "java/io", "File").RuleForMethod("delete", "()")
	if rule.Kind != RuleDenyAtTarget {
		t.Errorf("expected DenyAtTarget, got %+v", rule)
	}
}

func TestReadableFromRespectsModuleGraph(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	rules, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	view := rules.ForClass("java.base", "java/io", "File")
	if !view.ReadableFrom("app") {
		t.Errorf("app should be able to read java.base (registered via WithReads)")
	}
	if view.ReadableFrom("other") {
		t.Errorf("other should not be able to read java.base")
	}
}

func TestHashIsDeterministicAndOrderIndependent(t *testing.T) {
	cat := sampleCatalog()

	b1 := NewBuilder(cat)
	b1.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", Standard)
	b1.ForModule("java.base").ForPackage("java/io").ForClass("File").AllowMethod("mkdir")
	r1, err := b1.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	b2 := NewBuilder(cat)
	b2.ForModule("java.base").ForPackage("java/io").ForClass("File").AllowMethod("mkdir")
	b2.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", Standard)
	r2, err := b2.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if !r1.Equal(r2) {
		t.Errorf("equivalent rule sets built in different orders should hash equal")
	}
}

func TestHashDiffersWhenRulesDiffer(t *testing.T) {
	cat := sampleCatalog()

	b1 := NewBuilder(cat)
	b1.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", Standard)
	r1, err := b1.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	b2 := NewBuilder(cat)
	r2, err := b2.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if r1.Equal(r2) {
		t.Errorf("differing rule sets should not hash equal")
	}
}

func TestValidateRejectsUnknownExceptionConstructor(t *testing.T) {
	cat := sampleCatalog()
	b := NewBuilder(cat)
	b.ForModule("java.base").
		ForPackage("java/io").
		ForClass("File").
		DenyMethod("delete", Exception("com/acme/NoSuchException", nil))

	_, err := b.Build()
	if err == nil {
		t.Fatalf("expected an error for an exception class with no matching constructor in the catalog")
	}
}
