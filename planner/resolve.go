package planner

import (
	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/policy"
)

// Plan walks every method of pc and produces a ClassPlan describing what the
// rewriter must do at each invocation site, given the Rules applicable to a
// caller in callerModule (spec §4.4, §2 "C4 walks each method's code via C2,
// and for each invocation-like instruction emits a plan entry").
func Plan(pc *classfile.ParsedClass, rules *policy.Rules, callerModule string, catalog policy.Catalog) (*ClassPlan, error) {
	cp := &ClassPlan{Class: pc}
	targetModule, targetPkg, targetSimple, targetKnown := locate(catalog, pc.ThisClassName())

	for i := range pc.Methods {
		m := &pc.Methods[i]
		if m.Code == nil {
			continue // abstract/native: no code to walk; a target-entry prologue has nowhere to splice
		}
		mp, err := planMethod(pc, m, rules, callerModule, catalog)
		if err != nil {
			return nil, err
		}
		if targetKnown {
			if entry, ok := planTargetEntryDeny(pc, m, rules, targetModule, targetPkg, targetSimple); ok {
				mp.Entries = append([]PlanEntry{entry}, mp.Entries...)
			}
		}
		cp.Methods = append(cp.Methods, mp)
	}
	return cp, nil
}

func planMethod(pc *classfile.ParsedClass, m *classfile.Method, rules *policy.Rules, callerModule string, catalog policy.Catalog) (MethodPlan, error) {
	mp := MethodPlan{Method: m, Name: pc.MethodName(m)}

	insts, err := instruction.DecodeAll(m.Code.Code)
	if err != nil {
		return MethodPlan{}, boxtinerr.WrapHard("decoding method body", err)
	}

	for _, inst := range insts {
		if !inst.Opcode.IsInvocation() {
			continue
		}
		entry, ok, err := planInvocation(pc, inst, rules, callerModule, catalog)
		if err != nil {
			return MethodPlan{}, err
		}
		if ok {
			mp.Entries = append(mp.Entries, entry)
		}
	}
	return mp, nil
}

// accStatic is the method access_flags bit marking a static method (JVMS
// §4.6); a prologue spliced into a static method's entry has no receiver to
// load ahead of its declared parameters.
const accStatic = 0x0008

// planTargetEntryDeny checks whether m itself (declared on the class pc is
// being transformed as, identified by targetModule/targetPkg/targetSimple)
// carries a DenyAtTarget rule (spec §4.4 "Target-site enforcement") and, if
// so, produces the PlanEntry the rewriter splices a deny prologue from. It
// never looks at callerModule: a target-site rule fires for every caller
// alike, which is exactly what distinguishes it from DenyAtCaller.
func planTargetEntryDeny(pc *classfile.ParsedClass, m *classfile.Method, rules *policy.Rules, targetModule, targetPkg, targetSimple string) (PlanEntry, bool) {
	name := pc.MethodName(m)
	if name == "<clinit>" {
		return PlanEntry{}, false // static initializer has no caller site to redirect; nothing a target deny would protect
	}
	descriptor := pc.MethodDescriptor(m)
	isConstructor := name == "<init>"

	view := rules.ForClass(targetModule, targetPkg, targetSimple)
	var rule policy.Rule
	if isConstructor {
		rule = view.RuleForConstructor(paramsOf(descriptor))
	} else {
		rule = view.RuleForMethod(name, paramsOf(descriptor))
	}
	if rule.Kind != policy.RuleDenyAtTarget {
		return PlanEntry{}, false
	}

	entry := PlanEntry{
		TargetClass:      pc.ThisClassName(),
		MemberName:       name,
		MemberDescriptor: descriptor,
		IsConstructor:    isConstructor,
		Rule:             rule,
		Action:           TargetEntryDeny,
		Stub: StubKey{
			TargetClass:      pc.ThisClassName(),
			MemberName:       name,
			MemberDescriptor: descriptor,
			Action:           rule.Action,
			TakesReceiver:    !isConstructor && m.AccessFlags&accStatic == 0,
			IsConstructor:    isConstructor,
		},
	}
	return entry, true
}

func planInvocation(pc *classfile.ParsedClass, inst instruction.Instruction, rules *policy.Rules, callerModule string, catalog policy.Catalog) (PlanEntry, bool, error) {
	if inst.Opcode == instruction.Invokedynamic {
		// Dynamic sites are resolved through the bootstrap-method table,
		// not a plain Methodref (spec §4.4 "Dynamic invocation"). They get
		// no plan entry: neither the planner nor the rewriter changes an
		// invokedynamic site or its bootstrap method, whatever it targets.
		return PlanEntry{}, false, nil
	}

	className, memberName, descriptor := pc.ConstantPool.MethodrefInfo(inst.CPIndex)
	if className == "" {
		return PlanEntry{}, false, nil // not a resolvable Methodref (e.g. malformed/unsupported CP entry)
	}
	isConstructor := memberName == "<init>"

	entry := PlanEntry{
		Offset:           inst.Offset,
		Instruction:      inst,
		TargetClass:      className,
		MemberName:       memberName,
		MemberDescriptor: descriptor,
		IsConstructor:    isConstructor,
	}

	rule := resolveRule(rules, catalog, callerModule, className, memberName, descriptor, isConstructor)
	entry.Rule = rule

	switch rule.Kind {
	case policy.RuleAllow:
		entry.Action = Keep
	case policy.RuleDenyAtCaller:
		if rule.Action.Kind == policy.ActionChecked {
			entry.Action = CheckedWrap
		} else {
			entry.Action = DenyReplace
		}
		entry.Stub = StubKey{
			TargetClass:      className,
			MemberName:       memberName,
			MemberDescriptor: descriptor,
			Action:           rule.Action,
			TakesReceiver:    !isConstructor && inst.Opcode != instruction.Invokestatic,
			IsConstructor:    isConstructor,
			OriginalOpcode:   inst.Opcode,
		}
	case policy.RuleDenyAtTarget:
		// Enforced by rewriting the target class's entry point, not this
		// call site; the caller-side instruction is left untouched (spec
		// §4.4 "Keep; target class is rewritten separately").
		entry.Action = Keep
	}

	return entry, true, nil
}

// ResolveRule exposes resolveRule to callers outside the planner that need
// the identical caller/subtype resolution without walking a full method
// body — reflectshim's reflective-lookup path (spec §4.4 "a call expressed
// against a base class..." applies the same way whether the call reaches
// the target through a bytecode call site or a reflective lookup; C7 must
// never compute its own, possibly-diverging, answer).
func ResolveRule(rules *policy.Rules, catalog policy.Catalog, callerModule, className, memberName, descriptor string, isConstructor bool) policy.Rule {
	return resolveRule(rules, catalog, callerModule, className, memberName, descriptor, isConstructor)
}

// resolveRule implements spec §4.4's subtype/cast-safety rule: "a call
// expressed against a base class whose dynamic target is a denied subclass
// must still be denied." It resolves the rule at the nominal
// (statically-referenced) class first, then walks the known subclass tree
// looking for any descendant that overrides the same member with a denial —
// since the platform's dynamic dispatch may land on that override at
// runtime — preferring the deepest (most-specific) denial found (spec §4.4
// tie-break, §9 "Deep inheritance").
func resolveRule(rules *policy.Rules, catalog policy.Catalog, callerModule, className, memberName, descriptor string, isConstructor bool) policy.Rule {
	rule, ok := ruleAt(rules, catalog, callerModule, className, memberName, descriptor, isConstructor)
	if !ok {
		rule = policy.Allow
	}

	// Constructors are never inherited; subtype closure only applies to
	// virtually-dispatched methods.
	if isConstructor || catalog == nil {
		return rule
	}

	module, pkg, simple, locateOK := catalog.LocateClass(className)
	if !locateOK {
		return rule
	}

	if deepest, found := deepestSubclassDeny(rules, catalog, callerModule, module, pkg, simple, memberName, descriptor, map[string]bool{className: true}, 0); found {
		return deepest
	}
	return rule
}

// deepestSubclassDeny recurses through the catalog's known direct-subclass
// index. For each subclass it looks deeper first, so within one chain of
// subclasses the deepest denial wins (spec §4.4 "the most-specific
// (deepest) deny wins"). Depth is not compared across sibling branches: the
// first branch, in DirectSubclasses order, that holds any denial wins.
func deepestSubclassDeny(rules *policy.Rules, catalog policy.Catalog, callerModule, module, pkg, simple, memberName, descriptor string, seen map[string]bool, depth int) (policy.Rule, bool) {
	for _, subInternal := range catalog.DirectSubclasses(module, pkg, simple) {
		if seen[subInternal] {
			continue
		}
		seen[subInternal] = true

		subModule, subPkg, subSimple, ok := catalog.LocateClass(subInternal)
		if !ok {
			continue
		}

		if deeper, deeperOK := deepestSubclassDeny(rules, catalog, callerModule, subModule, subPkg, subSimple, memberName, descriptor, seen, depth+1); deeperOK {
			return deeper, true
		}

		if subRule, subOK := ruleAt(rules, catalog, callerModule, subInternal, memberName, descriptor, false); subOK && subRule.Kind != policy.RuleAllow {
			return subRule, true
		}
	}

	return policy.Rule{}, false
}

func ruleAt(rules *policy.Rules, catalog policy.Catalog, callerModule, className, memberName, descriptor string, isConstructor bool) (policy.Rule, bool) {
	module, pkg, simple, ok := locate(catalog, className)
	if !ok {
		return policy.Rule{}, false
	}
	view := rules.ForClass(module, pkg, simple)
	if !view.ReadableFrom(callerModule) {
		return policy.DenyAtCaller(policy.Standard), true
	}
	paramsOnly := paramsOf(descriptor)
	if isConstructor {
		return view.RuleForConstructor(paramsOnly), true
	}
	return view.RuleForMethod(memberName, paramsOnly), true
}

func locate(catalog policy.Catalog, internalClassName string) (module, pkg, class string, ok bool) {
	if catalog == nil {
		return "", "", "", false
	}
	return catalog.LocateClass(internalClassName)
}

// paramsOf extracts the "(...)" parameter-type portion of a full
// "(params)return" method descriptor, matching the params-only key the
// policy package resolves rules by.
func paramsOf(descriptor string) string {
	end := 0
	for i := 0; i < len(descriptor); i++ {
		if descriptor[i] == ')' {
			end = i + 1
			break
		}
	}
	if end == 0 {
		return descriptor
	}
	return descriptor[:end]
}
