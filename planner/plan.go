// Package planner implements C4: for every invocation-like instruction in a
// parsed class it resolves the nominal target member, asks the policy model
// for the applicable Rule, and emits a plan entry describing what the
// rewriter (C5) must do at that offset (spec §4.4).
package planner

import (
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/policy"
)

// Action tags what the rewriter must do with one decoded instruction (spec
// §3 "Method plan").
type Action int

const (
	// Keep leaves the instruction untouched.
	Keep Action = iota
	// DenyReplace substitutes a call to a generated helper stub in place
	// of the original invocation.
	DenyReplace
	// CheckedWrap wraps the original call with a predicate check: if the
	// predicate returns false, the stub fires instead of the original.
	CheckedWrap
	// TargetEntryDeny marks a method, at the target class, whose entry
	// needs a deny prologue spliced in (spec §4.4 "Target-site
	// enforcement"); it carries no caller-side instruction.
	TargetEntryDeny
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case DenyReplace:
		return "deny-replace"
	case CheckedWrap:
		return "checked-wrap"
	case TargetEntryDeny:
		return "target-entry-deny"
	default:
		return "unknown"
	}
}

// StubKey identifies the generated helper stub a plan entry needs, derived
// from (target-class, member-descriptor, action-shape) so that two call
// sites needing the identical stub share one (spec §4.5 "helper-method names
// are derived from a stable hash of (target-class, member-descriptor,
// action-shape)" — the hash itself is computed by the helper package, which
// also owns stub naming).
type StubKey struct {
	TargetClass      string
	MemberName       string
	MemberDescriptor string
	Action           policy.DenyAction
	TakesReceiver    bool
	IsConstructor    bool
	// OriginalOpcode is the call-site's original invocation opcode,
	// needed by the helper package to re-issue the real call from inside
	// a Checked stub's "allowed" branch (spec §4.6).
	OriginalOpcode instruction.Opcode
}

// PlanEntry is one instruction's disposition.
type PlanEntry struct {
	Offset      int
	Instruction instruction.Instruction

	TargetClass      string
	MemberName       string
	MemberDescriptor string // full "(params)ret" descriptor of the resolved member
	IsConstructor    bool

	Rule   policy.Rule
	Action Action
	Stub   StubKey // populated when Action != Keep
}

// MethodPlan is the ordered plan for one method's code.
type MethodPlan struct {
	Method  *classfile.Method
	Name    string
	Entries []PlanEntry
}

// ClassPlan is the full per-method plan for one parsed class.
type ClassPlan struct {
	Class   *classfile.ParsedClass
	Methods []MethodPlan
}
