package helper

import (
	"strconv"

	"github.com/cojen/boxtin/boxtinlog"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

// NamePredicate reports whether internalName already names a class known to
// the host (a real class, not one of our own generated helpers), so the
// Registry can avoid a collision (spec §4.6 "Must not collide with user
// names; if a name is taken, append a numeric suffix").
type NamePredicate func(internalName string) bool

// Registry owns the one CustomActions *Class per caller that the agent's
// per-caller loader publishes (spec §4.6 "Shared resources"). It is not
// itself safe for concurrent use; the agent package serializes all access
// to it behind one mutex (Agent.plans), not per caller.
type Registry struct {
	catalog  policy.Catalog
	nameUsed NamePredicate
	classes  map[string]*Class // caller internal name -> its CustomActions class
	names    map[string]bool   // every helper class name handed out so far
}

// NewRegistry builds an empty Registry. nameUsed may be nil, in which case
// only this registry's own previously-allocated names are treated as taken.
func NewRegistry(catalog policy.Catalog, nameUsed NamePredicate) *Registry {
	return &Registry{
		catalog:  catalog,
		nameUsed: nameUsed,
		classes:  make(map[string]*Class),
		names:    make(map[string]bool),
	}
}

// ClassFor returns the CustomActions class for callerInternalName, creating
// and naming it on first use.
func (r *Registry) ClassFor(callerInternalName string) *Class {
	if c, ok := r.classes[callerInternalName]; ok {
		return c
	}
	name := r.uniqueName(callerInternalName + "$$BoxtinActions")
	c := NewClass(name, callerInternalName, r.catalog)
	r.classes[callerInternalName] = c
	return c
}

func (r *Registry) uniqueName(base string) string {
	candidate := base
	suffix := 1
	for r.taken(candidate) {
		candidate = base + "$" + strconv.Itoa(suffix)
		suffix++
	}
	r.names[candidate] = true
	return candidate
}

func (r *Registry) taken(name string) bool {
	if r.names[name] {
		return true
	}
	return r.nameUsed != nil && r.nameUsed(name)
}

// Stub resolves the (helperClass, name, descriptor) a plan entry's stub key
// needs, creating the caller's CustomActions class and the stub method on
// first use.
func (r *Registry) Stub(callerInternalName string, key planner.StubKey) (helperClass, name, descriptor string, err error) {
	c := r.ClassFor(callerInternalName)
	name, descriptor, err = c.Stub(key)
	if err != nil {
		return "", "", "", err
	}
	boxtinlog.Denial(key.TargetClass, key.MemberName, key.Action.Kind.String())
	return c.InternalName, name, descriptor, nil
}

// Emit serializes every caller's accumulated CustomActions class. The
// returned map is keyed by the generated class's own internal name.
func (r *Registry) Emit() (map[string][]byte, error) {
	out := make(map[string][]byte, len(r.classes))
	for _, c := range r.classes {
		bytes, err := c.Emit()
		if err != nil {
			return nil, err
		}
		out[c.InternalName] = bytes
	}
	return out, nil
}
