package reflectshim

import (
	"testing"

	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/policy"
)

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

func fileCatalog() *policy.StaticCatalog {
	return policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z").
		WithReads("app", "java.base")
}

func TestLookupAllowsUndeniedMember(t *testing.T) {
	catalog := fileCatalog()
	rules := builtRules(t, catalog, nil)

	result := Lookup(rules, catalog, nil, "app", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if result.Denied() {
		t.Fatalf("expected an allowed lookup, got denial: %v", result.Err)
	}
	if result.Rule.Kind != policy.RuleAllow {
		t.Errorf("Rule.Kind = %v, want RuleAllow", result.Rule.Kind)
	}
}

func TestLookupDeniedAtCallerReportsNoSuchMethod(t *testing.T) {
	catalog := fileCatalog()
	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", policy.Standard)
	})

	result := Lookup(rules, catalog, nil, "app", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if !result.Denied() {
		t.Fatal("expected a denied lookup")
	}
	if result.Err.OriginClass != "com/acme/Caller$$BoxtinActions" {
		t.Errorf("OriginClass = %q, want the caller's CustomActions class name", result.Err.OriginClass)
	}
	if result.Err.TargetClass != "java/io/File" || result.Err.MemberName != "delete" {
		t.Errorf("unexpected error shape: %+v", result.Err)
	}
}

func TestLookupDeniedAtTargetAlsoFailsReflectively(t *testing.T) {
	catalog := fileCatalog()
	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").
			TargetCheck().DenyMethod("delete", policy.Standard)
	})

	result := Lookup(rules, catalog, nil, "app", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if !result.Denied() {
		t.Fatal("a RuleDenyAtTarget rule has no caller-side call site, but a reflective lookup still has no member to resolve to")
	}
}

func TestLookupUsesRegistryNamingWhenProvided(t *testing.T) {
	catalog := fileCatalog()
	rules := builtRules(t, catalog, func(b *policy.Builder) {
		b.ForModule("java.base").ForPackage("java/io").ForClass("File").DenyMethod("delete", policy.Standard)
	})
	registry := helper.NewRegistry(catalog, nil)

	// Allocate another caller's class first: the registry must still hand
	// this caller its own unsuffixed name, and Lookup must report it.
	taken := registry.ClassFor("com/acme/Other")
	_ = taken

	result := Lookup(rules, catalog, registry, "app", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if result.Err.OriginClass != "com/acme/Caller$$BoxtinActions" {
		t.Errorf("OriginClass = %q, want %q", result.Err.OriginClass, "com/acme/Caller$$BoxtinActions")
	}

	// A second Lookup for the same caller must report the identical class
	// the registry already allocated, not a fresh one.
	result2 := Lookup(rules, catalog, registry, "app", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if result2.Err.OriginClass != result.Err.OriginClass {
		t.Errorf("OriginClass changed across lookups for the same caller: %q vs %q", result.Err.OriginClass, result2.Err.OriginClass)
	}
}

func TestLookupModuleUnreadableDeniesAsStandard(t *testing.T) {
	catalog := policy.NewStaticCatalog().
		WithClass("java.base", "java/io", "File", "java/lang/Object", nil).
		WithMethod("java.base", "java/io", "File", "delete", nil, "Z")
	// No WithReads("untrusted", "java.base"): the caller's module cannot
	// read java.base at all, so every member of File is denied regardless
	// of File's own per-member rules (spec §4.3 "Module qualification").
	rules := builtRules(t, catalog, nil)

	result := Lookup(rules, catalog, nil, "untrusted", "com/acme/Caller", "java/io/File", "delete", "()Z", false)
	if !result.Denied() {
		t.Fatal("expected a lookup from an unreadable module to be denied")
	}
}
