package policy

import "github.com/cojen/boxtin/boxtinerr"

// Builder assembles a rule tree via the fluent scope-narrowing API described
// in spec §4.3: forModule -> forPackage -> forClass -> forMember, each level
// offering allowAll/denyAll and, at class scope, per-member overrides.
type Builder struct {
	catalog Catalog
	tree    *tree
	errs    []error
}

// NewBuilder starts a Builder validated against catalog (spec §4.3
// "Validation requires that every named class exist in the platform's
// module catalog").
func NewBuilder(catalog Catalog) *Builder {
	return &Builder{catalog: catalog, tree: newTree()}
}

// ModuleScope narrows to one module.
type ModuleScope struct {
	b    *Builder
	node *node
	name string
}

// ForModule begins narrowing scope to moduleName.
func (b *Builder) ForModule(moduleName string) *ModuleScope {
	return &ModuleScope{b: b, node: b.tree.root.child(moduleName), name: moduleName}
}

// AllowAll sets this scope's default policy to allow (spec §3 "interior
// node default").
func (m *ModuleScope) AllowAll() *ModuleScope {
	p := PolicyAllow
	m.node.defaultPolicy = &p
	return m
}

// DenyAll sets this scope's default policy to deny.
func (m *ModuleScope) DenyAll() *ModuleScope {
	p := PolicyDeny
	m.node.defaultPolicy = &p
	return m
}

// PackageScope narrows a ModuleScope to one package.
type PackageScope struct {
	b       *Builder
	node    *node
	module  string
	pkgName string
}

func (m *ModuleScope) ForPackage(pkgName string) *PackageScope {
	return &PackageScope{b: m.b, node: m.node.child(pkgName), module: m.name, pkgName: pkgName}
}

func (p *PackageScope) AllowAll() *PackageScope {
	pol := PolicyAllow
	p.node.defaultPolicy = &pol
	return p
}

func (p *PackageScope) DenyAll() *PackageScope {
	pol := PolicyDeny
	p.node.defaultPolicy = &pol
	return p
}

// ClassScope narrows a PackageScope to one class, and is where per-member
// rules are attached.
type ClassScope struct {
	b         *Builder
	node      *node
	module    string
	pkgName   string
	className string
	site      Site // which enforcement site callerCheck()/targetCheck() selected
}

func (p *PackageScope) ForClass(className string) *ClassScope {
	c := &ClassScope{b: p.b, node: p.node.child(className), module: p.module, pkgName: p.pkgName, className: className, site: SiteCaller}
	if p.b.catalog != nil && !p.b.catalog.HasClass(p.module, p.pkgName, className) {
		p.b.errs = append(p.b.errs, boxtinerr.NewConfigErrorf(
			"unknown class %s.%s.%s", p.module, p.pkgName, className))
	}
	return c
}

// CallerCheck selects deny-at-caller enforcement for subsequent rules on
// this class scope (the default).
func (c *ClassScope) CallerCheck() *ClassScope {
	c.site = SiteCaller
	return c
}

// TargetCheck selects deny-at-target enforcement for subsequent rules on
// this class scope (spec §3 "DenyAtTarget").
func (c *ClassScope) TargetCheck() *ClassScope {
	c.site = SiteTarget
	return c
}

func (c *ClassScope) ruleFor(action DenyAction, allow bool) Rule {
	if allow {
		return Allow
	}
	if c.site == SiteTarget {
		return DenyAtTarget(action)
	}
	return DenyAtCaller(action)
}

// AllowAll marks every member of this class allowed, overriding the
// enclosing package/module default.
func (c *ClassScope) AllowAll() *ClassScope {
	r := Allow
	c.node.rule = &r
	return c
}

// DenyAll marks every member of this class denied with the Standard action.
func (c *ClassScope) DenyAll() *ClassScope {
	r := c.ruleFor(Standard, false)
	c.node.rule = &r
	return c
}

// AllowMethod allows every overload of the named method.
func (c *ClassScope) AllowMethod(name string) *ClassScope {
	return c.setMember(name, "", Allow)
}

// DenyMethod denies every overload of the named method with action.
func (c *ClassScope) DenyMethod(name string, action DenyAction) *ClassScope {
	return c.setMember(name, "", c.ruleFor(action, false))
}

// AllowVariant allows exactly the overload of name whose parameter
// descriptors match paramDescriptors.
func (c *ClassScope) AllowVariant(name string, paramDescriptors ...string) *ClassScope {
	return c.setMember(name, descriptorOf(paramDescriptors, ""), Allow)
}

// DenyVariant denies exactly the named overload with action.
func (c *ClassScope) DenyVariant(name string, action DenyAction, paramDescriptors ...string) *ClassScope {
	return c.setMember(name, descriptorOf(paramDescriptors, ""), c.ruleFor(action, false))
}

// AllowAllConstructors allows every constructor overload.
func (c *ClassScope) AllowAllConstructors() *ClassScope {
	return c.setMember("<init>", "", Allow)
}

// DenyAllConstructors denies every constructor overload with action.
func (c *ClassScope) DenyAllConstructors(action DenyAction) *ClassScope {
	return c.setMember("<init>", "", c.ruleFor(action, false))
}

func (c *ClassScope) setMember(name, descriptor string, rule Rule) *ClassScope {
	if c.b.catalog != nil {
		exists := false
		if name == "<init>" {
			if descriptor == "" {
				exists = true // name-wide: covers every declared ctor, nothing to look up
			} else {
				exists = c.b.catalog.HasConstructor(c.module, c.pkgName, c.className, descriptor)
			}
		} else if descriptor == "" {
			exists = true
		} else {
			exists = c.b.catalog.HasMethod(c.module, c.pkgName, c.className, name, descriptor)
		}
		if !exists && descriptor != "" {
			c.b.errs = append(c.b.errs, boxtinerr.NewConfigErrorf(
				"unknown member %s.%s.%s#%s%s", c.module, c.pkgName, c.className, name, descriptor))
		}
	}

	if rule.Kind != RuleAllow {
		validateAction(c.b, rule.Action)
	}

	mem := c.node.child(memberChildKey(name, descriptor))
	r := rule
	mem.rule = &r
	return c
}

func validateAction(b *Builder, a DenyAction) {
	if a.Kind == ActionChecked && a.Inner != nil && a.Inner.Kind == ActionChecked {
		b.errs = append(b.errs, boxtinerr.NewConfigErrorf("a Checked action's inner action must not itself be Checked"))
	}
}

// ApplyRules applies a caller-supplied function over this Builder, letting
// callers factor shared rule groups into reusable funcs (spec §4.3
// "applyRules(applier)").
func (b *Builder) ApplyRules(applier func(*Builder)) *Builder {
	applier(b)
	return b
}

// Build finalizes the Builder into an immutable Rules value, returning every
// validation error accumulated across the narrowing calls plus whatever
// Validate finds by walking the finished tree (spec §4.3 "enumerate every
// failure before returning, not merely the first").
func (b *Builder) Build() (*Rules, error) {
	errs := append([]error(nil), b.errs...)

	r := &Rules{tree: b.tree, catalog: b.catalog}
	errs = append(errs, r.Validate()...)

	if len(errs) > 0 {
		return nil, boxtinerr.NewMultiConfigError(errs)
	}
	return r, nil
}
