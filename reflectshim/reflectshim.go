// Package reflectshim implements C7: the contract surface for intercepting
// reflective and method-handle lookups (spec §4, §9 "the reflection-shim's
// exact coverage of dynamic lookup APIs is enumerated by the source's
// internal rule tables; an authoritative list must come from the policy
// applier, not this core"). It answers one question — would a reflective
// lookup of this member succeed or fail under the active Rules — using the
// identical resolution planner.ResolveRule uses for a bytecode call site, so
// a method denied at a caller-side call is denied the same way through
// reflection (spec §8 "Reflection parity").
//
// This package models the *decision*, not a running reflective API: there is
// no bytecode interpreter in this tree for a resolved handle to actually
// invoke. A host wiring this in for real supplies its own
// java.lang.reflect/MethodHandles implementation and consults Lookup (or
// Denied) at the point it would otherwise return a live Method/MethodHandle.
package reflectshim

import (
	"fmt"

	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

// NoSuchMethodError is the reflective-lookup analog of a caller-side deny
// splice: spec §7.3's "no such method" signal, carrying the name of the
// CustomActions helper class a caller-side splice for the same member would
// have used, so a test can assert the synthetic failure's reported origin
// (spec §8 scenario 5 "denial's origin frame must be the generated helper
// class").
type NoSuchMethodError struct {
	TargetClass      string
	MemberName       string
	MemberDescriptor string
	OriginClass      string
}

func (e *NoSuchMethodError) Error() string {
	return fmt.Sprintf("no such method: %s.%s%s (denied by policy; reported from %s)",
		e.TargetClass, e.MemberName, e.MemberDescriptor, e.OriginClass)
}

// LookupResult is what a reflective/method-handle lookup resolves to.
type LookupResult struct {
	// Rule is the resolved policy.Rule, exposed so a Checked action's
	// predicate/inner action are available to a host that does have a real
	// invocation path, even though this package does not evaluate them.
	Rule policy.Rule
	// Err is non-nil exactly when the lookup is denied.
	Err *NoSuchMethodError
}

// Denied reports whether the lookup failed.
func (r *LookupResult) Denied() bool { return r.Err != nil }

// Lookup resolves a reflective/method-handle lookup of
// targetClass.memberName(memberDescriptor), performed by code running as
// callerInternalName in callerModule, against rules. registry may be nil —
// in that case OriginClass falls back to the same naming convention the
// registry uses (<caller>$$BoxtinActions) without actually allocating a
// registry entry, since a denied reflective lookup never needs a generated
// stub method, only its class name.
//
// RuleDenyAtTarget and RuleDenyAtCaller are both denials from a reflective
// lookup's point of view: the caller/target split in spec §4.4 is about
// where a bytecode-level splice happens, and there is no caller call site to
// splice for a reflective lookup at all.
func Lookup(
	rules *policy.Rules,
	catalog policy.Catalog,
	registry *helper.Registry,
	callerModule, callerInternalName string,
	targetClass, memberName, descriptor string,
	isConstructor bool,
) *LookupResult {
	rule := planner.ResolveRule(rules, catalog, callerModule, targetClass, memberName, descriptor, isConstructor)
	if rule.Kind == policy.RuleAllow {
		return &LookupResult{Rule: rule}
	}

	return &LookupResult{
		Rule: rule,
		Err: &NoSuchMethodError{
			TargetClass:      targetClass,
			MemberName:       memberName,
			MemberDescriptor: descriptor,
			OriginClass:      originClassFor(registry, callerInternalName),
		},
	}
}

func originClassFor(registry *helper.Registry, callerInternalName string) string {
	if registry != nil {
		return registry.ClassFor(callerInternalName).InternalName
	}
	return callerInternalName + "$$BoxtinActions"
}
