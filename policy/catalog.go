package policy

// Catalog is the platform's known-class/module surface, supplied when a
// Builder is constructed (spec §4.3 "Validation" and "Module qualification").
// A real Catalog is typically backed by the host's module layer; tests and
// the CLI can use NewStaticCatalog.
type Catalog interface {
	// HasClass reports whether module/pkg/class names a class known to the
	// platform. Validate treats an unknown class as an error unless the
	// rule covering it is broad (e.g. "deny all of module").
	HasClass(module, pkg, class string) bool

	// HasMethod reports whether the named class declares a method with
	// this name and descriptor.
	HasMethod(module, pkg, class, name, descriptor string) bool

	// HasConstructor reports whether the named class declares a
	// constructor with this parameter descriptor (no return type).
	HasConstructor(module, pkg, class, paramDescriptor string) bool

	// ReturnDescriptor resolves the return-type component of a method's
	// descriptor, used by Validate to check a Value action's literal kind
	// against the return type (spec §4.3).
	ReturnDescriptor(module, pkg, class, name, descriptor string) (string, bool)

	// ParamDescriptors resolves a method or constructor's ordered
	// parameter-type descriptors, used by Validate to check a Custom/Checked
	// replacement's parameter count (spec §4.4).
	ParamDescriptors(module, pkg, class, name, descriptor string) ([]string, bool)

	// Supertypes returns the direct superclass and implemented interfaces
	// of a class. The planner's subtype-deny walk does not call it; it
	// walks DirectSubclasses instead.
	Supertypes(module, pkg, class string) (superclass string, interfaces []string, ok bool)

	// Reads reports whether callerModule can read targetModule (spec §4.3
	// "Module qualification"): lookup must consult the caller module's
	// reads/exports graph.
	Reads(callerModule, targetModule string) bool

	// ConstructorExists reports whether className has a public
	// no-argument, or public (String)-argument, constructor — used to
	// validate Exception actions (spec §4.3.ii).
	ConstructorExists(className string, withStringArg bool) bool

	// HasNoArgConstructor reports whether className has a public
	// no-argument constructor. No code in this module calls it; the
	// helper's Empty mapping emits a no-argument construction without
	// checking.
	HasNoArgConstructor(className string) bool

	// LocateClass maps an internal class name (as it appears in a
	// Methodref/Fieldref constant-pool entry, e.g. "java/io/File") to the
	// (module, package, simpleName) triple the rule tree is keyed by. Used
	// by the planner to turn a resolved call-site target into a rule
	// lookup (spec §4.4 "resolves the nominal target class/member").
	LocateClass(internalClassName string) (module, pkg, class string, ok bool)

	// DirectSubclasses returns the internal names of every class
	// registered as directly extending module/pkg/class, used by the
	// planner's subtype-safety walk (spec §4.4 "a call expressed against
	// a base class whose dynamic target is a denied subclass must still
	// be denied").
	DirectSubclasses(module, pkg, class string) []string
}

// StaticCatalog is an in-memory Catalog, typically loaded from a rule-file's
// companion class listing or from the standard-library table (see the
// stdlib package) for tests and the boxtinctl CLI.
type StaticCatalog struct {
	classes            map[string]classInfo
	reads              map[string]map[string]bool
	noArgConstructors  map[string]bool
	stringConstructors map[string]bool
	byInternalName     map[string]qualifiedClass
	subclassesOf       map[string][]string // superclass internal name -> direct subclass internal names
}

type qualifiedClass struct {
	module, pkg, class string
}

type methodInfo struct {
	returnDescriptor string
	paramDescriptors []string
}

type classInfo struct {
	module     string
	pkg        string
	superclass string
	interfaces []string
	methods    map[string]methodInfo // key: name+descriptor
	ctors      map[string]methodInfo // key: paramDescriptor
}

func qualifiedKey(module, pkg, class string) string { return module + "/" + pkg + "/" + class }

// NewStaticCatalog returns an empty catalog; use the With* methods to
// populate it (typically from boxtincfg's rule-file companion data or from
// the stdlib package's built-in table).
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		classes:            make(map[string]classInfo),
		reads:              make(map[string]map[string]bool),
		noArgConstructors:  make(map[string]bool),
		stringConstructors: make(map[string]bool),
		byInternalName:     make(map[string]qualifiedClass),
		subclassesOf:       make(map[string][]string),
	}
}

func internalName(pkg, class string) string {
	if pkg == "" {
		return class
	}
	return pkg + "/" + class
}

// WithClass registers a class's module/package/superclass/interfaces.
func (c *StaticCatalog) WithClass(module, pkg, class, superclass string, interfaces []string) *StaticCatalog {
	key := qualifiedKey(module, pkg, class)
	info := c.classes[key]
	info.module = module
	info.pkg = pkg
	info.superclass = superclass
	info.interfaces = interfaces
	if info.methods == nil {
		info.methods = make(map[string]methodInfo)
	}
	if info.ctors == nil {
		info.ctors = make(map[string]methodInfo)
	}
	c.classes[key] = info
	selfName := internalName(pkg, class)
	c.byInternalName[selfName] = qualifiedClass{module: module, pkg: pkg, class: class}
	if superclass != "" {
		c.subclassesOf[superclass] = append(c.subclassesOf[superclass], selfName)
	}
	return c
}

// paramsKey builds the lookup key used for both methods and constructors:
// the parenthesized parameter-type list, ignoring the return type. Policy
// rules (spec §4.3 allowVariant/denyVariant) name an overload by its
// parameter types only, so catalog lookups key on the same thing.
func paramsKey(paramDescriptors []string) string { return descriptorOf(paramDescriptors, "") }

// WithMethod registers a method's descriptor components on an already
// registered class.
func (c *StaticCatalog) WithMethod(module, pkg, class, name string, paramDescriptors []string, returnDescriptor string) *StaticCatalog {
	key := qualifiedKey(module, pkg, class)
	info := c.classes[key]
	if info.methods == nil {
		info.methods = make(map[string]methodInfo)
	}
	info.methods[name+paramsKey(paramDescriptors)] = methodInfo{
		returnDescriptor: returnDescriptor,
		paramDescriptors: paramDescriptors,
	}
	c.classes[key] = info
	return c
}

// WithConstructor registers a constructor's parameter descriptors.
func (c *StaticCatalog) WithConstructor(module, pkg, class string, paramDescriptors []string) *StaticCatalog {
	key := qualifiedKey(module, pkg, class)
	info := c.classes[key]
	if info.ctors == nil {
		info.ctors = make(map[string]methodInfo)
	}
	info.ctors[paramsKey(paramDescriptors)] = methodInfo{paramDescriptors: paramDescriptors}
	c.classes[key] = info

	if len(paramDescriptors) == 0 {
		c.noArgConstructors[internalName(pkg, class)] = true
	}
	if len(paramDescriptors) == 1 && paramDescriptors[0] == "Ljava/lang/String;" {
		c.stringConstructors[internalName(pkg, class)] = true
	}
	return c
}

// WithReads registers that callerModule can read targetModule.
func (c *StaticCatalog) WithReads(callerModule, targetModule string) *StaticCatalog {
	if c.reads[callerModule] == nil {
		c.reads[callerModule] = make(map[string]bool)
	}
	c.reads[callerModule][targetModule] = true
	return c
}

func descriptorOf(params []string, ret string) string {
	d := "("
	for _, p := range params {
		d += p
	}
	d += ")" + ret
	return d
}

func (c *StaticCatalog) HasClass(module, pkg, class string) bool {
	_, ok := c.classes[qualifiedKey(module, pkg, class)]
	return ok
}

// HasMethod's descriptor argument is the parenthesized parameter-type list
// only (as produced by paramsKey), not a full "(params)return" descriptor —
// policy rules never name a return type.
func (c *StaticCatalog) HasMethod(module, pkg, class, name, descriptor string) bool {
	info, ok := c.classes[qualifiedKey(module, pkg, class)]
	if !ok {
		return false
	}
	_, exists := info.methods[name+descriptor]
	return exists
}

// HasConstructor's paramDescriptor argument is likewise a params-only key.
func (c *StaticCatalog) HasConstructor(module, pkg, class, paramDescriptor string) bool {
	info, ok := c.classes[qualifiedKey(module, pkg, class)]
	if !ok {
		return false
	}
	_, exists := info.ctors[paramDescriptor]
	return exists
}

func (c *StaticCatalog) ReturnDescriptor(module, pkg, class, name, descriptor string) (string, bool) {
	info, ok := c.classes[qualifiedKey(module, pkg, class)]
	if !ok {
		return "", false
	}
	m, exists := info.methods[name+descriptor]
	return m.returnDescriptor, exists
}

func (c *StaticCatalog) ParamDescriptors(module, pkg, class, name, descriptor string) ([]string, bool) {
	info, ok := c.classes[qualifiedKey(module, pkg, class)]
	if !ok {
		return nil, false
	}
	if name == "<init>" {
		m, exists := info.ctors[descriptor]
		return m.paramDescriptors, exists
	}
	m, exists := info.methods[name+descriptor]
	return m.paramDescriptors, exists
}

func (c *StaticCatalog) Supertypes(module, pkg, class string) (string, []string, bool) {
	info, ok := c.classes[qualifiedKey(module, pkg, class)]
	if !ok {
		return "", nil, false
	}
	return info.superclass, info.interfaces, true
}

func (c *StaticCatalog) Reads(callerModule, targetModule string) bool {
	if callerModule == targetModule {
		return true
	}
	return c.reads[callerModule][targetModule]
}

func (c *StaticCatalog) ConstructorExists(className string, withStringArg bool) bool {
	if withStringArg {
		return c.stringConstructors[className]
	}
	return c.noArgConstructors[className]
}

func (c *StaticCatalog) HasNoArgConstructor(className string) bool {
	return c.noArgConstructors[className]
}

func (c *StaticCatalog) LocateClass(internalClassName string) (string, string, string, bool) {
	q, ok := c.byInternalName[internalClassName]
	if !ok {
		return "", "", "", false
	}
	return q.module, q.pkg, q.class, true
}

func (c *StaticCatalog) DirectSubclasses(module, pkg, class string) []string {
	return c.subclassesOf[internalName(pkg, class)]
}
