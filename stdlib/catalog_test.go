package stdlib

import "testing"

func TestCatalogKnowsWellKnownClasses(t *testing.T) {
	c := Catalog()
	if !c.HasClass("java.base", "java/io", "File") {
		t.Error("expected java.io.File to be registered")
	}
	if !c.HasMethod("java.base", "java/lang", "System", "exit", "(I)") {
		t.Error("expected System.exit(int) to be registered")
	}
	if !c.HasConstructor("java.base", "java/io", "FileInputStream", "(Ljava/lang/String;)") {
		t.Error("expected FileInputStream(String) to be registered")
	}
}

func TestCatalogHashMapReachableFromMap(t *testing.T) {
	c := Catalog()
	subs := c.DirectSubclasses("java.base", "java/util", "Map")
	found := false
	for _, s := range subs {
		if s == "java/util/HashMap" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected java/util/HashMap among Map's direct subclasses, got %v", subs)
	}
}

func TestCatalogLocateClassRoundTrips(t *testing.T) {
	c := Catalog()
	module, pkg, class, ok := c.LocateClass("java/io/File")
	if !ok || module != "java.base" || pkg != "java/io" || class != "File" {
		t.Errorf("LocateClass(java/io/File) = (%q,%q,%q,%v)", module, pkg, class, ok)
	}
}
