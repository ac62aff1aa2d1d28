// Package rewriter implements C5: given a planner.ClassPlan and the
// helper.Registry that owns generated stub methods, it splices each
// non-Keep call site, re-flows branch targets, the exception table, and
// StackMapTable frames to match the resulting code length, and re-emits the
// class (spec §4.5).
package rewriter

import (
	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/planner"
)

// Rewrite produces the rewritten class bytes for plan, using registry to
// resolve (or create) the stub each non-Keep entry needs. The generated
// stubs' own class bytes are not emitted here: the agent package calls
// registry.Emit when the host asks for them (LoadHelperClass,
// EmitHelperClasses), since each caller's one CustomActions class keeps
// accumulating stubs across rewrites (spec §4.6).
func Rewrite(plan *planner.ClassPlan, registry *helper.Registry) ([]byte, error) {
	pc := plan.Class
	callerName := pc.ThisClassName()

	for i := range plan.Methods {
		mp := &plan.Methods[i]
		if len(mp.Entries) == 0 {
			continue
		}
		if err := rewriteMethod(pc, mp, callerName, registry); err != nil {
			return nil, err
		}
	}

	return classfile.Redefine(pc)
}

// RewriteOrEmpty is Rewrite, substituting the empty-class form on any error
// instead of propagating it (spec §6 "ignore=false, substitute the
// empty-class form"). Every error this package raises is a Hard
// boxtinerr.ClassFormatError; RewriteOrEmpty does not distinguish further
// because, unlike C1's parse path, there is no "leave untouched" option once
// a rewrite has been attempted — the original bytes are no longer at hand
// here (the agent package holds those and chooses pass-through vs.
// empty-class itself when Rewrite fails outright).
func RewriteOrEmpty(plan *planner.ClassPlan, registry *helper.Registry) []byte {
	out, err := Rewrite(plan, registry)
	if err != nil {
		return classfile.EmptyClass(plan.Class.ThisClassName())
	}
	return out
}

// rewriteMethod mutates mp.Method.Code in place: splicing every non-Keep
// entry's call site, then re-flowing everything downstream whose described
// offset may have moved.
func rewriteMethod(pc *classfile.ParsedClass, mp *planner.MethodPlan, callerName string, registry *helper.Registry) error {
	ca := mp.Method.Code

	edits, prologueStack, synthetic, err := buildEdits(pc, mp, callerName, registry)
	if err != nil {
		return err
	}
	if len(edits) == 0 {
		return nil
	}
	if err := checkNonOverlapping(edits); err != nil {
		return err
	}

	newCode, om, err := reflow(ca.Code, edits)
	if err != nil {
		return err
	}

	exceptions, err := reflowExceptionTable(ca.Exceptions, om)
	if err != nil {
		return err
	}
	stackMap, err := reflowStackMap(ca.StackMap, om, synthetic)
	if err != nil {
		return err
	}

	ca.Code = newCode
	ca.Exceptions = exceptions
	ca.StackMap = stackMap
	if prologueStack > ca.MaxStack {
		ca.MaxStack = prologueStack
	}
	return nil
}

func checkNonOverlapping(edits []edit) error {
	for i := 1; i < len(edits); i++ {
		if edits[i].start < edits[i-1].end {
			return boxtinerr.NewHard("two call-site rewrites overlap in the same method")
		}
	}
	return nil
}
