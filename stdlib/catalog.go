// Package stdlib is the built-in standard-library rule table: a static,
// data-only catalog of the platform's well-known java.base classes (spec
// §1 "the built-in standard-library rule set... a static data table" is
// explicitly out of the rewriter's core scope, but a host still needs
// something to hand to policy.NewBuilder and the planner as their
// Catalog). It carries no logic beyond registration calls.
package stdlib

import "github.com/cojen/boxtin/policy"

// Catalog returns a fresh policy.StaticCatalog populated with the subset of
// java.base this module's test scenarios and example policies reference
// (spec §8's end-to-end scenarios name java.io.FileInputStream,
// java.lang.System, java.lang.ProcessBuilder, and java.util.Map/HashMap).
// It is not exhaustive; a host with a real module system should prefer its
// own live Catalog and use this only for demos, tests, and boxtinctl's
// "dump" command run without a discovered classpath.
func Catalog() *policy.StaticCatalog {
	c := policy.NewStaticCatalog()
	registerLangPackage(c)
	registerIOPackage(c)
	registerUtilPackage(c)
	return c
}

func registerLangPackage(c *policy.StaticCatalog) {
	const mod, pkg = "java.base", "java/lang"

	c.WithClass(mod, pkg, "Object", "", nil)

	c.WithClass(mod, pkg, "System", "java/lang/Object", nil)
	c.WithMethod(mod, pkg, "System", "exit", []string{"I"}, "V")
	c.WithMethod(mod, pkg, "System", "getProperty", []string{"Ljava/lang/String;"}, "Ljava/lang/String;")
	c.WithMethod(mod, pkg, "System", "getProperty", []string{"Ljava/lang/String;", "Ljava/lang/String;"}, "Ljava/lang/String;")
	c.WithMethod(mod, pkg, "System", "currentTimeMillis", nil, "J")

	c.WithClass(mod, pkg, "Runtime", "java/lang/Object", nil)
	c.WithMethod(mod, pkg, "Runtime", "exec", []string{"Ljava/lang/String;"}, "Ljava/lang/Process;")
	c.WithMethod(mod, pkg, "Runtime", "getRuntime", nil, "Ljava/lang/Runtime;")

	c.WithClass(mod, pkg, "ProcessBuilder", "java/lang/Object", nil)
	c.WithConstructor(mod, pkg, "ProcessBuilder", nil)
	c.WithConstructor(mod, pkg, "ProcessBuilder", []string{"Ljava/util/List;"})
	c.WithMethod(mod, pkg, "ProcessBuilder", "start", nil, "Ljava/lang/Process;")

	c.WithClass(mod, pkg, "Thread", "java/lang/Object", nil)
	c.WithConstructor(mod, pkg, "Thread", nil)
	c.WithMethod(mod, pkg, "Thread", "start", nil, "V")

	c.WithClass(mod, pkg, "String", "java/lang/Object", nil)
	c.WithConstructor(mod, pkg, "String", nil)
	c.WithConstructor(mod, pkg, "String", []string{"Ljava/lang/String;"})
	c.WithMethod(mod, pkg, "String", "length", nil, "I")
}

func registerIOPackage(c *policy.StaticCatalog) {
	const mod, pkg = "java.base", "java/io"

	c.WithClass(mod, pkg, "File", "java/lang/Object", nil)
	c.WithConstructor(mod, pkg, "File", []string{"Ljava/lang/String;"})
	c.WithMethod(mod, pkg, "File", "delete", nil, "Z")
	c.WithMethod(mod, pkg, "File", "exists", nil, "Z")

	c.WithClass(mod, pkg, "FileInputStream", "java/io/InputStream", nil)
	c.WithConstructor(mod, pkg, "FileInputStream", []string{"Ljava/lang/String;"})
	c.WithConstructor(mod, pkg, "FileInputStream", []string{"Ljava/io/File;"})

	c.WithClass(mod, pkg, "InputStream", "java/lang/Object", nil)
	c.WithMethod(mod, pkg, "InputStream", "close", nil, "V")
}

func registerUtilPackage(c *policy.StaticCatalog) {
	const mod, pkg = "java.base", "java/util"

	// Map has no declared superclass (it is an interface). HashMap is
	// registered as Map's direct subclass so the planner's subtype-deny
	// walk (planner.deepestSubclassDeny, which indexes only by
	// StaticCatalog's superclass link, not by the separate interfaces
	// list) can find it when a caller holds a Map-typed reference whose
	// dynamic target is a HashMap (spec §8 scenario 6, "the cast does not
	// erase the subtype-level deny"). HashMap's interfaces entry still
	// names Map for Supertypes() queries.
	c.WithClass(mod, pkg, "Map", "", nil)
	c.WithMethod(mod, pkg, "Map", "put", []string{"Ljava/lang/Object;", "Ljava/lang/Object;"}, "Ljava/lang/Object;")
	c.WithMethod(mod, pkg, "Map", "get", []string{"Ljava/lang/Object;"}, "Ljava/lang/Object;")

	c.WithClass(mod, pkg, "HashMap", "java/util/Map", []string{"java/util/Map"})
	c.WithConstructor(mod, pkg, "HashMap", nil)
	c.WithMethod(mod, pkg, "HashMap", "put", []string{"Ljava/lang/Object;", "Ljava/lang/Object;"}, "Ljava/lang/Object;")
	c.WithMethod(mod, pkg, "HashMap", "get", []string{"Ljava/lang/Object;"}, "Ljava/lang/Object;")
}
