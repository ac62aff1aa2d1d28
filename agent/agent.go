// Package agent is the external glue that drives C1-C6 from a single
// transform(callerModule, internalClassName, originalBytes) entry point: an
// activation state machine, a premain-style bootstrap, and the per-caller
// CustomActions loader described in spec §5/§6. Everything inside C1-C6 is
// pure transformation logic; agent is the only package that holds process-
// wide mutable state.
package agent

import (
	"strings"
	"sync"

	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/boxtinlog"
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/helper"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
	"github.com/cojen/boxtin/rewriter"
)

// state is the process-wide single-slot activation lifecycle (spec §5
// "Activation lifecycle"): uninitialized -> pre-armed -> active, with
// retired reachable only through the test hook.
type state int

const (
	stateUninitialized state = iota
	statePreArmed
	stateActive
	stateRetired
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case statePreArmed:
		return "pre-armed"
	case stateActive:
		return "active"
	case stateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Instrumentation is the host hook the agent registers its class-file
// transformer with (spec §5 "registers the class-file transformer"). A real
// host supplies one backed by its own class-loading pipeline; tests can
// supply a fake that just records the transformer it was handed.
type Instrumentation interface {
	AddTransformer(Transformer)
}

// Transformer is the class-file transform hook spec §6 describes:
// transform(callerModule, internalClassName, originalBytes) -> newBytesOrNull.
type Transformer interface {
	Transform(callerModule, internalClassName string, originalBytes []byte) ([]byte, error)
}

// Agent is the process-wide singleton implementing the activation state
// machine and the Transformer hook. Use the package-level functions
// (Premain, Activate, Retire, Transform) rather than constructing one
// directly; Default returns the singleton the package functions operate on.
type Agent struct {
	mu    sync.Mutex
	st    state
	ctrl  Controller
	inst  Instrumentation
	plans sync.Mutex // serializes registry access across concurrently-loading classes (spec §5)

	catalog  policy.Catalog
	registry *helper.Registry
}

var singleton = &Agent{st: stateUninitialized}

// Default returns the process-wide Agent singleton.
func Default() *Agent { return singleton }

// ErrAlreadyActive is returned by Activate when the agent is already active
// (spec §5 "Re-entrant activation is rejected").
var ErrAlreadyActive = boxtinerr.NewConfigError("agent is already active")

// Premain implements spec §6's "Agent entry": it parses args (of the form
// "<controller-name>" or "<controller-name>=<controller-args>", defaulting
// to "default" when args is empty), resolves and constructs the named
// Controller, and transitions uninitialized -> pre-armed. It does not
// register the transformer; Activate does that.
func Premain(args string) error {
	return singleton.premain(args)
}

func (a *Agent) premain(args string) error {
	name, ctorArgs := splitControllerArgs(args)
	ctrl, err := buildController(name, ctorArgs)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.st != stateUninitialized {
		return boxtinerr.NewConfigErrorf("premain called from state %s, want %s", a.st, stateUninitialized)
	}
	a.ctrl = ctrl
	a.st = statePreArmed
	return nil
}

// splitControllerArgs parses "<name>" or "<name>=<args>" into its parts,
// defaulting name to "default" when s is empty (spec §6).
func splitControllerArgs(s string) (name, ctorArgs string) {
	if s == "" {
		return "default", ""
	}
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Activate transitions pre-armed -> active and registers the agent's
// Transform method with inst (spec §5 "the first activate(controller)
// transitions to active and registers the class-file transformer"). If
// controller is non-nil it overrides whatever Premain resolved, letting the
// test hook re-activate with a fresh Controller after Retire.
func Activate(inst Instrumentation, controller Controller) error {
	return singleton.activate(inst, controller)
}

func (a *Agent) activate(inst Instrumentation, controller Controller) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.st == stateActive {
		return ErrAlreadyActive
	}
	if a.st != statePreArmed && a.st != stateRetired {
		return boxtinerr.NewConfigErrorf("activate called from state %s, want %s", a.st, statePreArmed)
	}
	if controller != nil {
		a.ctrl = controller
	}
	if a.ctrl == nil {
		return boxtinerr.NewConfigError("activate called with no controller resolved by premain")
	}

	boxtinlog.Init()
	a.catalog = catalogFor(a.ctrl)
	a.registry = helper.NewRegistry(a.catalog, nil)
	a.inst = inst
	a.st = stateActive

	if inst != nil {
		inst.AddTransformer(a)
	}
	return nil
}

// Retire is the test hook that transitions active -> retired, freeing the
// agent to be Activate'd again (spec §5 "retired is reachable only through
// the test hook"). Premain accepts only the uninitialized state, so it
// fails after Retire.
func Retire() { singleton.retire() }

func (a *Agent) retire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.st = stateRetired
	a.ctrl = nil
	a.inst = nil
	a.catalog = nil
	a.registry = nil
}

// reset is a test-only convenience that drops straight back to
// uninitialized, skipping the retired waypoint.
func reset() { singleton.mu.Lock(); singleton.st = stateUninitialized; singleton.ctrl = nil; singleton.mu.Unlock() }

// controllerAndCatalog returns the active controller and catalog under the
// lock, or an error if the agent isn't active.
func (a *Agent) controllerAndCatalog() (Controller, policy.Catalog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.st != stateActive {
		return nil, nil, boxtinerr.NewConfigErrorf("transform called from state %s, want %s", a.st, stateActive)
	}
	return a.ctrl, a.catalog, nil
}

// Transform implements the Transformer interface: spec §6's
// transform(callerModule, internalClassName, originalBytes) hook. It is
// safe to call concurrently from multiple class-loading threads (spec §5
// "multiple threads may transform different classes concurrently").
func (a *Agent) Transform(callerModule, internalClassName string, originalBytes []byte) ([]byte, error) {
	ctrl, catalog, err := a.controllerAndCatalog()
	if err != nil {
		return nil, err
	}

	pc, err := classfile.Parse(originalBytes)
	if err != nil {
		if cfe, ok := boxtinerr.AsClassFormatError(err); ok {
			boxtinlog.HardFormatError(internalClassName, cfe)
			return classfile.EmptyClass(internalClassName), nil
		}
		return nil, err
	}
	if pc.Ignore {
		boxtinlog.IgnorableFormatError(internalClassName, "bad magic number or truncated class file")
		return nil, nil
	}

	rules, err := ctrl.RulesForCaller(callerModule)
	if err != nil {
		return nil, err
	}

	plan, err := planner.Plan(pc, rules, callerModule, catalog)
	if err != nil {
		if cfe, ok := boxtinerr.AsClassFormatError(err); ok && !cfe.Ignore() {
			boxtinlog.HardFormatError(internalClassName, cfe)
			return classfile.EmptyClass(internalClassName), nil
		}
		return nil, err
	}

	if !planHasRewrites(plan) {
		return nil, nil
	}

	// The Registry isn't itself safe for concurrent use (helper.Registry's
	// doc comment); serialize the create-or-reuse race across concurrently
	// loading classes with a single mutex rather than per-caller locks,
	// trading a little contention for a registry that never needs its own
	// synchronization (spec §5 "single-writer/many-readers discipline").
	a.plans.Lock()
	out, err := rewriter.Rewrite(plan, a.registry)
	a.plans.Unlock()
	if err != nil {
		boxtinlog.HardFormatError(internalClassName, err)
		return classfile.EmptyClass(internalClassName), nil
	}
	return out, nil
}

// LoadHelperClass returns the bytes of a previously generated CustomActions
// class by its internal name, for the host's class loader to resolve when a
// rewritten caller's invokestatic to it is itself loaded (spec §5 "the
// per-caller CustomActions loader is lazily created... others await
// publication via an ordinary memory-safe map insertion" — Emit is
// idempotent, so repeated lookups simply re-serialize the same bytes).
func (a *Agent) LoadHelperClass(internalName string) ([]byte, bool) {
	a.plans.Lock()
	defer a.plans.Unlock()
	if a.registry == nil {
		return nil, false
	}
	classes, err := a.registry.Emit()
	if err != nil {
		return nil, false
	}
	b, ok := classes[internalName]
	return b, ok
}

// EmitHelperClasses returns every CustomActions class generated so far,
// keyed by internal name. Unlike LoadHelperClass (which answers "does this
// one specific class exist"), this is for a harness that wants to persist
// the whole generated output alongside the rewritten callers.
func (a *Agent) EmitHelperClasses() (map[string][]byte, error) {
	a.plans.Lock()
	defer a.plans.Unlock()
	if a.registry == nil {
		return nil, boxtinerr.NewConfigError("agent is not active")
	}
	return a.registry.Emit()
}

func planHasRewrites(plan *planner.ClassPlan) bool {
	for _, mp := range plan.Methods {
		for _, e := range mp.Entries {
			if e.Action != planner.Keep {
				return true
			}
		}
	}
	return false
}

// catalogFor resolves the Catalog the planner/rewriter should use: an
// optional CatalogController override, falling back to nil. With a nil
// catalog the planner cannot locate any class in the rule tree, so every
// call site is kept unchanged.
func catalogFor(ctrl Controller) policy.Catalog {
	if cc, ok := ctrl.(CatalogController); ok {
		return cc.Catalog()
	}
	return nil
}
