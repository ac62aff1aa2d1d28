package agent

import (
	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/policy"
)

// Controller is spec §6's "Controller interface": rulesForCaller is the
// only required operation. The core never caches its results across
// classes — every Transform call asks again.
type Controller interface {
	RulesForCaller(module string) (*policy.Rules, error)
}

// TargetController is the optional half of spec §6's Controller interface
// ("rulesForTarget() -> Rules (optional, defaults to the same policy)").
// A Controller that needs a distinct rule set for target-site enforcement
// (spec §4.4's RuleDenyAtTarget path) implements it; otherwise RulesForTarget
// falls back to whatever RulesForCaller("") returns.
type TargetController interface {
	RulesForTarget() (*policy.Rules, error)
}

// CatalogController lets a Controller supply the policy.Catalog the planner
// and rewriter resolve module/subtype information against. A Controller
// that doesn't implement it gets no catalog: the planner then cannot map
// any class to its rule-tree coordinates, so no rule is looked up and every
// call site resolves to Allow (no caller-side splice, no target-entry
// prologue).
type CatalogController interface {
	Catalog() policy.Catalog
}

// RulesForTarget resolves ctrl's target-site rules, falling back to
// RulesForCaller("") when ctrl doesn't implement TargetController.
func RulesForTarget(ctrl Controller) (*policy.Rules, error) {
	if tc, ok := ctrl.(TargetController); ok {
		return tc.RulesForTarget()
	}
	return ctrl.RulesForCaller("")
}

// ControllerFactory constructs a Controller, optionally from the string
// following "=" in premain's argument (empty when none was supplied). This
// is the Go-native stand-in for spec §6's "controller-class ... with both
// a () and a (String) constructor": a factory ignores ctorArgs itself if it
// has no use for it, the equivalent of a no-arg constructor.
type ControllerFactory func(ctorArgs string) (Controller, error)

var controllerFactories = map[string]ControllerFactory{
	"default": func(string) (Controller, error) { return allowAllController{}, nil },
}

// RegisterController makes a named Controller factory available to premain's
// "<controller-name>" / "<controller-name>=<controller-args>" argument.
// Intended to be called from an init() in whatever package defines a
// Controller, the way the host's class loader would register a named
// controller class.
func RegisterController(name string, factory ControllerFactory) {
	controllerFactories[name] = factory
}

func buildController(name, ctorArgs string) (Controller, error) {
	factory, ok := controllerFactories[name]
	if !ok {
		return nil, boxtinerr.NewConfigErrorf("unknown controller %q", name)
	}
	ctrl, err := factory(ctorArgs)
	if err != nil {
		return nil, boxtinerr.NewConfigErrorf("constructing controller %q: %v", name, err)
	}
	if ctrl == nil {
		return nil, boxtinerr.NewConfigErrorf("controller %q factory returned a nil Controller", name)
	}
	return ctrl, nil
}

// allowAllController is the "default" controller: an empty, catalog-less
// Rules tree (policy.Rules' own resolve defaults every lookup to Allow),
// matching a freshly installed agent that denies nothing until a real
// Controller supplies rules (normally boxtincfg's YAML-loaded one).
type allowAllController struct{}

func (allowAllController) RulesForCaller(string) (*policy.Rules, error) {
	return policy.NewBuilder(nil).Build()
}
