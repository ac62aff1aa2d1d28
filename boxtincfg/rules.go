// Package boxtincfg is the ambient configuration surface: loading a
// declarative YAML policy document onto a policy.Builder (spec §4.3's
// fluent scope-narrowing API has no file format of its own — this supplies
// one), and the CLI's viper-backed config file/environment binding.
package boxtincfg

import (
	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/policy"
	"gopkg.in/yaml.v3"
)

// PolicyDoc is the root of a policy rule file: a module tree mirroring
// policy.Rules' own module -> package -> class -> member shape, plus the
// module reads/exports graph a StaticCatalog would otherwise need WithReads
// calls for.
type PolicyDoc struct {
	Modules map[string]ModuleDoc `yaml:"modules"`
	// Reads maps a caller module to the list of modules it can read (spec
	// §4.3 "Module qualification"). Only consulted via ApplyReads, against
	// a caller-supplied StaticCatalog; a plain Catalog implementation is
	// free to already encode its own reads graph.
	Reads map[string][]string `yaml:"reads"`
}

// ModuleDoc is one module's default policy and package tree.
type ModuleDoc struct {
	Default  string                `yaml:"default"` // "allow" or "deny"; empty means allow
	Packages map[string]PackageDoc `yaml:"packages"`
}

// PackageDoc is one package's default policy and class tree.
type PackageDoc struct {
	Default string              `yaml:"default"`
	Classes map[string]ClassDoc `yaml:"classes"`
}

// ClassDoc is one class's rules: an optional class-wide override, an
// enforcement site for every rule on this class, and per-member overrides.
type ClassDoc struct {
	// Site is "caller" (default) or "target" (spec §3 "DenyAtTarget").
	Site string `yaml:"site"`
	// AllowAll/DenyAll set the class-wide default, overriding the
	// enclosing package/module default (spec §3 "interior node default").
	// DenyAll always uses the Standard action; a class-wide deny with a
	// different action is expressed per-member instead, matching
	// policy.ClassScope.DenyAll's own shape.
	AllowAll bool `yaml:"allow_all"`
	DenyAll  bool `yaml:"deny_all"`

	Methods      map[string]MemberDoc `yaml:"methods"`
	Variants     []VariantDoc         `yaml:"variants"`
	AllCtors     *ActionDoc           `yaml:"all_constructors"`
	CtorVariants []CtorVariantDoc     `yaml:"constructor_variants"`
}

// MemberDoc is a name-wide method override: every overload of the method
// gets this rule.
type MemberDoc struct {
	Action ActionDoc `yaml:"action"`
}

// VariantDoc overrides exactly one method overload, named by its parameter
// descriptors (spec §3 "allowVariant/denyVariant").
type VariantDoc struct {
	Name   string    `yaml:"name"`
	Params []string  `yaml:"params"`
	Action ActionDoc `yaml:"action"`
}

// CtorVariantDoc overrides exactly one constructor overload.
type CtorVariantDoc struct {
	Params []string  `yaml:"params"`
	Action ActionDoc `yaml:"action"`
}

// ActionDoc is the YAML shape of a policy.Rule/DenyAction: "kind: allow"
// resolves to policy.Allow; every other kind builds a DenyAction of that
// shape (spec §3 "DenyAction").
type ActionDoc struct {
	Kind string `yaml:"kind"` // allow, standard, exception, value, empty, custom, checked

	// exception
	ExceptionClass   string  `yaml:"exception_class"`
	ExceptionMessage *string `yaml:"exception_message"`

	// value
	Value *LiteralDoc `yaml:"value"`

	// custom
	Custom *MemberRefDoc `yaml:"custom"`

	// checked
	Predicate *MemberRefDoc `yaml:"predicate"`
	Inner     *ActionDoc    `yaml:"inner"`
}

// LiteralDoc is the YAML shape of policy.Literal.
type LiteralDoc struct {
	Kind   string  `yaml:"kind"` // int, long, float, double, boolean, char, string
	Int    int64   `yaml:"int"`
	Float  float64 `yaml:"float"`
	Bool   bool    `yaml:"bool"`
	String string  `yaml:"string"`
}

// MemberRefDoc is the YAML shape of policy.MemberRef.
type MemberRefDoc struct {
	Class            string `yaml:"class"`
	Method           string `yaml:"method"`
	Descriptor       string `yaml:"descriptor"`
	TakesCallerClass bool   `yaml:"takes_caller_class"`
	TakesReceiver    bool   `yaml:"takes_receiver"`
}

// ParseDoc unmarshals a YAML policy document's bytes.
func ParseDoc(data []byte) (*PolicyDoc, error) {
	var doc PolicyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, boxtinerr.NewConfigErrorf("parsing policy document: %v", err)
	}
	return &doc, nil
}

// LoadRules parses data as a YAML policy document and builds a policy.Rules
// from it against catalog (spec §4.3 "Validation"). catalog may be nil for
// a quick syntax-only load (boxtinctl's "validate" without a live catalog
// still catches structurally malformed actions, just not unknown-class
// references).
func LoadRules(data []byte, catalog policy.Catalog) (*policy.Rules, error) {
	doc, err := ParseDoc(data)
	if err != nil {
		return nil, err
	}
	return BuildRules(doc, catalog)
}

// ApplyReads registers every "reads" entry from doc onto catalog, for
// callers that build a StaticCatalog from the same YAML document (spec
// §4.3 "Module qualification"). Call this before LoadRules/BuildRules so
// the catalog already reflects the reads graph while rules validate.
func ApplyReads(doc *PolicyDoc, catalog *policy.StaticCatalog) {
	for callerModule, targets := range doc.Reads {
		for _, target := range targets {
			catalog.WithReads(callerModule, target)
		}
	}
}

// BuildRules walks a parsed PolicyDoc onto a fresh policy.Builder. Malformed
// actions are collected across the whole document and returned together
// (spec §4.3 "enumerate every failure before returning, not merely the
// first"), matching policy.Builder.Build's own aggregation.
func BuildRules(doc *PolicyDoc, catalog policy.Catalog) (*policy.Rules, error) {
	b := policy.NewBuilder(catalog)
	var errs []error
	for moduleName, m := range doc.Modules {
		applyModule(b, moduleName, m, &errs)
	}
	if len(errs) > 0 {
		return nil, boxtinerr.NewMultiConfigError(errs)
	}
	return b.Build()
}

func applyModule(b *policy.Builder, name string, m ModuleDoc, errs *[]error) {
	scope := b.ForModule(name)
	switch m.Default {
	case "deny":
		scope.DenyAll()
	case "allow", "":
	default:
		*errs = append(*errs, boxtinerr.NewConfigErrorf("module %s: unknown default %q", name, m.Default))
	}
	for pkgName, p := range m.Packages {
		applyPackage(scope, pkgName, p, errs)
	}
}

func applyPackage(scope *policy.ModuleScope, name string, p PackageDoc, errs *[]error) {
	pkg := scope.ForPackage(name)
	switch p.Default {
	case "deny":
		pkg.DenyAll()
	case "allow", "":
	default:
		*errs = append(*errs, boxtinerr.NewConfigErrorf("package %s: unknown default %q", name, p.Default))
	}
	for className, c := range p.Classes {
		applyClass(pkg, className, c, errs)
	}
}

func applyClass(pkg *policy.PackageScope, name string, c ClassDoc, errs *[]error) {
	cls := pkg.ForClass(name)
	switch c.Site {
	case "target":
		cls.TargetCheck()
	case "caller", "":
		cls.CallerCheck()
	default:
		*errs = append(*errs, boxtinerr.NewConfigErrorf("class %s: unknown site %q", name, c.Site))
	}

	if c.AllowAll {
		cls.AllowAll()
	} else if c.DenyAll {
		cls.DenyAll()
	}

	for methodName, mem := range c.Methods {
		action, allow, err := buildAction(mem.Action)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		if allow {
			cls.AllowMethod(methodName)
		} else {
			cls.DenyMethod(methodName, action)
		}
	}

	for _, v := range c.Variants {
		action, allow, err := buildAction(v.Action)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		if allow {
			cls.AllowVariant(v.Name, v.Params...)
		} else {
			cls.DenyVariant(v.Name, action, v.Params...)
		}
	}

	if c.AllCtors != nil {
		action, allow, err := buildAction(*c.AllCtors)
		if err != nil {
			*errs = append(*errs, err)
		} else if allow {
			cls.AllowAllConstructors()
		} else {
			cls.DenyAllConstructors(action)
		}
	}

	for _, v := range c.CtorVariants {
		action, allow, err := buildAction(v.Action)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		if allow {
			cls.AllowVariant("<init>", v.Params...)
		} else {
			cls.DenyVariant("<init>", action, v.Params...)
		}
	}
}

// buildAction translates an ActionDoc into a policy.DenyAction. allow is
// true exactly when doc describes "kind: allow", in which case action is
// the zero value and must not be used.
func buildAction(doc ActionDoc) (action policy.DenyAction, allow bool, err error) {
	switch doc.Kind {
	case "", "allow":
		return policy.DenyAction{}, true, nil
	case "standard":
		return policy.Standard, false, nil
	case "exception":
		return policy.Exception(doc.ExceptionClass, doc.ExceptionMessage), false, nil
	case "value":
		if doc.Value == nil {
			return policy.DenyAction{}, false, boxtinerr.NewConfigError("value action missing its literal")
		}
		return policy.ValueAction(buildLiteral(*doc.Value)), false, nil
	case "empty":
		return policy.Empty, false, nil
	case "custom":
		if doc.Custom == nil {
			return policy.DenyAction{}, false, boxtinerr.NewConfigError("custom action missing its replacement member")
		}
		return policy.CustomAction(buildMemberRef(*doc.Custom)), false, nil
	case "checked":
		if doc.Predicate == nil || doc.Inner == nil {
			return policy.DenyAction{}, false, boxtinerr.NewConfigError("checked action missing its predicate or inner action")
		}
		inner, innerAllow, err := buildAction(*doc.Inner)
		if err != nil {
			return policy.DenyAction{}, false, err
		}
		if innerAllow {
			return policy.DenyAction{}, false, boxtinerr.NewConfigError("checked action's inner action must itself deny")
		}
		return policy.CheckedAction(buildMemberRef(*doc.Predicate), inner), false, nil
	default:
		return policy.DenyAction{}, false, boxtinerr.NewConfigErrorf("unknown action kind %q", doc.Kind)
	}
}

func buildLiteral(doc LiteralDoc) policy.Literal {
	lit := policy.Literal{Kind: doc.Kind}
	switch doc.Kind {
	case "int", "long":
		lit.IntVal = doc.Int
	case "float", "double":
		lit.FloatVal = doc.Float
	case "boolean":
		lit.BoolVal = doc.Bool
	case "char", "string":
		lit.StringVal = doc.String
	}
	return lit
}

func buildMemberRef(doc MemberRefDoc) policy.MemberRef {
	return policy.MemberRef{
		ClassName:        doc.Class,
		MethodName:       doc.Method,
		Descriptor:       doc.Descriptor,
		TakesCallerClass: doc.TakesCallerClass,
		TakesReceiver:    doc.TakesReceiver,
	}
}
