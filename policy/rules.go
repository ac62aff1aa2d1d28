package policy

import "github.com/cojen/boxtin/boxtinerr"

// Rules is the immutable, built result of a Builder (spec §4.3). It is safe
// for concurrent use by many planner goroutines (spec §5).
type Rules struct {
	tree    *tree
	catalog Catalog
}

// Validate walks the built tree and reports every semantic problem a
// Builder call site couldn't catch eagerly: Exception actions naming a
// class without a matching constructor, Value actions whose literal kind
// doesn't match the member's return type, Custom/Checked replacements whose
// arity or caller-class/receiver placement doesn't line up with the
// member's descriptor, and so on (spec §4.3 "enumerate every failure before
// returning, not merely the first").
func (r *Rules) Validate() []error {
	var errs []error
	if r.catalog == nil {
		return errs
	}
	for moduleName, moduleNode := range r.tree.root.children {
		for pkgName, pkgNode := range moduleNode.children {
			for className, classNode := range pkgNode.children {
				errs = append(errs, r.validateClassNode(moduleName, pkgName, className, classNode)...)
			}
		}
	}
	return errs
}

func (r *Rules) validateClassNode(module, pkg, class string, classNode *node) []error {
	var errs []error
	for key, mem := range classNode.children {
		if mem.rule == nil {
			continue
		}
		name, descriptor := splitMemberKey(key)
		errs = append(errs, r.validateRule(module, pkg, class, name, descriptor, *mem.rule)...)
	}
	return errs
}

func splitMemberKey(key string) (string, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == 0 {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func (r *Rules) validateRule(module, pkg, class, name, descriptor string, rule Rule) []error {
	if rule.Kind == RuleAllow {
		return nil
	}
	return r.validateAction(module, pkg, class, name, descriptor, rule.Action)
}

func (r *Rules) validateAction(module, pkg, class, name, descriptor string, a DenyAction) []error {
	var errs []error

	switch a.Kind {
	case ActionException:
		withString := a.ExceptionMessage != nil
		if !r.catalog.ConstructorExists(a.ExceptionClass, withString) {
			errs = append(errs, boxtinerr.NewConfigErrorf(
				"%s.%s.%s#%s: exception class %s has no matching constructor", module, pkg, class, name, a.ExceptionClass))
		}

	case ActionValue:
		ret, ok := r.returnDescriptorFor(module, pkg, class, name, descriptor)
		if ok && !literalCompatible(a.Value, ret) {
			errs = append(errs, boxtinerr.NewConfigErrorf(
				"%s.%s.%s#%s: value literal kind %q is not compatible with return type %q", module, pkg, class, name, a.Value.Kind, ret))
		}

	case ActionCustom:
		errs = append(errs, r.validateMemberRef(module, pkg, class, name, descriptor, a.Custom)...)

	case ActionChecked:
		errs = append(errs, r.validateMemberRef(module, pkg, class, name, descriptor, a.Predicate)...)
		if a.Inner != nil {
			if a.Inner.Kind == ActionChecked {
				errs = append(errs, boxtinerr.NewConfigErrorf(
					"%s.%s.%s#%s: a Checked action's inner action must not itself be Checked", module, pkg, class, name))
			} else {
				errs = append(errs, r.validateAction(module, pkg, class, name, descriptor, *a.Inner)...)
			}
		}
	}
	return errs
}

func (r *Rules) returnDescriptorFor(module, pkg, class, name, descriptor string) (string, bool) {
	if name == "<init>" {
		return "V", true
	}
	return r.catalog.ReturnDescriptor(module, pkg, class, name, descriptor)
}

// validateMemberRef checks what can be checked without a module/package
// qualifier for the replacement member: replacement classes are named by
// internal class name alone (spec §3 MemberRef), resolved against the
// target platform only once the helper class (C6) actually emits the call,
// so only shape — not catalog presence — is verified here.
func (r *Rules) validateMemberRef(module, pkg, class, name, descriptor string, ref MemberRef) []error {
	var errs []error
	if ref.ClassName == "" || ref.MethodName == "" {
		errs = append(errs, boxtinerr.NewConfigErrorf(
			"%s.%s.%s#%s: replacement member reference is missing a class or method name", module, pkg, class, name))
		return errs
	}
	params, ok := r.catalog.ParamDescriptors(module, pkg, class, name, descriptor)
	if !ok {
		return errs // no single member to check: a name-wide rule, or a variant setMember already reported missing
	}
	want := len(params)
	if ref.TakesCallerClass {
		want++
	}
	if ref.TakesReceiver {
		want++
	}
	if ref.Descriptor != "" {
		declared := countParamDescriptors(ref.Descriptor)
		if declared != want {
			errs = append(errs, boxtinerr.NewConfigErrorf(
				"%s.%s.%s#%s: replacement %s.%s expects %d parameters (caller=%v, receiver=%v) but declares %d",
				module, pkg, class, name, ref.ClassName, ref.MethodName, want, ref.TakesCallerClass, ref.TakesReceiver, declared))
		}
	}
	return errs
}

// countParamDescriptors counts the parameter types in a "(...)ret" method
// descriptor without fully parsing it.
func countParamDescriptors(descriptor string) int {
	count := 0
	i := 0
	for i < len(descriptor) && descriptor[i] != ')' {
		c := descriptor[i]
		switch {
		case c == '(':
			i++
		case c == '[':
			i++
		case c == 'L':
			j := i + 1
			for j < len(descriptor) && descriptor[j] != ';' {
				j++
			}
			i = j + 1
			count++
		default:
			i++
			count++
		}
	}
	return count
}

func literalCompatible(lit Literal, returnDescriptor string) bool {
	switch returnDescriptor {
	case "I", "S", "B", "C":
		return lit.Kind == "int"
	case "J":
		return lit.Kind == "long"
	case "F":
		return lit.Kind == "float"
	case "D":
		return lit.Kind == "double"
	case "Z":
		return lit.Kind == "boolean"
	case "Ljava/lang/String;":
		return lit.Kind == "string"
	default:
		return isReferenceDescriptor(returnDescriptor) && lit.Kind == "string"
	}
}

func isReferenceDescriptor(d string) bool {
	return len(d) > 0 && (d[0] == 'L' || d[0] == '[')
}

// ForClass returns a narrowed view of the rules governing targetModule's
// pkg.className, used by the planner to resolve per-invocation rules. The
// view only records those coordinates: every RuleForMethod or
// RuleForConstructor call walks the tree from the root again.
func (r *Rules) ForClass(targetModule, pkg, className string) ClassView {
	return ClassView{rules: r, targetModule: targetModule, pkg: pkg, className: className}
}

// ClassView is a narrowed, read-only handle onto one target class's rules.
type ClassView struct {
	rules        *Rules
	targetModule string
	pkg          string
	className    string
}

// RuleForMethod resolves the rule governing an invocation of name/descriptor
// (spec §4.3 "most-specific-wins": exact-variant rule wins over a
// name-wide rule, which wins over the enclosing class/package/module
// default).
func (v ClassView) RuleForMethod(name, paramsDescriptor string) Rule {
	return v.rules.tree.resolve(v.targetModule, v.pkg, v.className, memberKey{name: name, descriptor: paramsDescriptor})
}

// RuleForConstructor resolves the rule governing a constructor invocation.
func (v ClassView) RuleForConstructor(paramsDescriptor string) Rule {
	return v.rules.tree.resolve(v.targetModule, v.pkg, v.className, memberKey{name: "<init>", descriptor: paramsDescriptor})
}

// ReadableFrom implements module qualification (spec §4.3): it reports
// whether callerModule can read the target module (always true without a
// catalog). The planner resolves every member of an unreadable module to
// DenyAtCaller(Standard), ignoring whatever finer-grained rules the target
// module's author wrote.
func (v ClassView) ReadableFrom(callerModule string) bool {
	if v.rules.catalog == nil {
		return true
	}
	return v.rules.catalog.Reads(callerModule, v.targetModule)
}
