// Package policy implements C3: the hierarchical, mergeable rule tree and
// its lookup semantics (spec §3, §4.3). A Rules value, once built, is
// immutable and safe to share across concurrently transforming goroutines
// (spec §5).
package policy

// Descriptor is a parameter-type descriptor list in the platform's internal
// form, e.g. "(Ljava/lang/String;)V" or just the parameter part used as a
// lookup key, "(Ljava/lang/String;)".
type Descriptor = string

// Policy is the interior-node default: whether members not otherwise named
// are allowed or denied (spec §3 "Rule tree").
type Policy int

const (
	PolicyAllow Policy = iota
	PolicyDeny
)

// Site identifies whether a denial is enforced by rewriting the caller's
// call site or the target's entry point (spec §3 "Rule").
type Site int

const (
	SiteCaller Site = iota
	SiteTarget
)

// RuleKind tags the three shapes a resolved Rule can take.
type RuleKind int

const (
	RuleAllow RuleKind = iota
	RuleDenyAtCaller
	RuleDenyAtTarget
)

// Rule is the tagged value produced by a lookup: Allow, DenyAtCaller(action),
// or DenyAtTarget(action) (spec §3).
type Rule struct {
	Kind   RuleKind
	Action DenyAction // zero value when Kind == RuleAllow
}

// Allow is the resolved rule meaning "leave the call site alone".
var Allow = Rule{Kind: RuleAllow}

// DenyAtCaller builds a Rule enforced by rewriting the caller's call site.
func DenyAtCaller(a DenyAction) Rule { return Rule{Kind: RuleDenyAtCaller, Action: a} }

// DenyAtTarget builds a Rule enforced by rewriting the target's entry point.
func DenyAtTarget(a DenyAction) Rule { return Rule{Kind: RuleDenyAtTarget, Action: a} }

// ActionKind tags the six DenyAction shapes (spec §3 "DenyAction").
type ActionKind int

const (
	ActionStandard ActionKind = iota
	ActionException
	ActionValue
	ActionEmpty
	ActionCustom
	ActionChecked
)

func (k ActionKind) String() string {
	switch k {
	case ActionStandard:
		return "standard"
	case ActionException:
		return "exception"
	case ActionValue:
		return "value"
	case ActionEmpty:
		return "empty"
	case ActionCustom:
		return "custom"
	case ActionChecked:
		return "checked"
	default:
		return "unknown"
	}
}

// Literal is a constant value usable by ActionValue: a primitive or a
// string, matching the platform's loadable-constant categories.
type Literal struct {
	// Kind is one of "int","long","float","double","boolean","char","string".
	Kind string

	IntVal    int64
	FloatVal  float64
	BoolVal   bool
	StringVal string
}

// MemberRef names a static or instance method/constructor used as a Custom
// replacement or Checked predicate (spec §3 "Custom", §4.4).
type MemberRef struct {
	ClassName  string
	MethodName string
	Descriptor string
	// TakesCallerClass reports whether the first declared parameter is the
	// caller-class sentinel type (spec §4.4).
	TakesCallerClass bool
	// TakesReceiver reports whether the replacement also wants the
	// original call's receiver forwarded as an argument (instance calls
	// only); spec §4.4 "if it takes the receiver as its first (or second,
	// after caller) parameter".
	TakesReceiver bool
}

// DenyAction is the tagged union described in spec §3. Only the field(s)
// matching Kind are populated.
type DenyAction struct {
	Kind ActionKind

	// ActionException
	ExceptionClass   string
	ExceptionMessage *string // nil means "construct with no-arg ctor"

	// ActionValue
	Value Literal

	// ActionCustom
	Custom MemberRef

	// ActionChecked
	Predicate MemberRef
	Inner     *DenyAction // must not itself be Checked (spec §3 invariant)
}

// Standard is the DenyAction that throws the platform's security-exception
// type with no message.
var Standard = DenyAction{Kind: ActionStandard}

// Exception builds an Exception(class, message) action.
func Exception(className string, message *string) DenyAction {
	return DenyAction{Kind: ActionException, ExceptionClass: className, ExceptionMessage: message}
}

// ValueAction builds a Value(literal) action.
func ValueAction(lit Literal) DenyAction {
	return DenyAction{Kind: ActionValue, Value: lit}
}

// Empty is the DenyAction that returns a type-appropriate empty value.
var Empty = DenyAction{Kind: ActionEmpty}

// CustomAction builds a Custom(replacement) action.
func CustomAction(ref MemberRef) DenyAction {
	return DenyAction{Kind: ActionCustom, Custom: ref}
}

// CheckedAction builds a Checked(predicate, inner) action. inner must not
// itself be Checked; Builder/Validate enforce this.
func CheckedAction(predicate MemberRef, inner DenyAction) DenyAction {
	return DenyAction{Kind: ActionChecked, Predicate: predicate, Inner: &inner}
}
