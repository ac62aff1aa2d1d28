package main

import "github.com/cojen/boxtin/policy"

// fileController is a Controller (and CatalogController) backed by a single
// policy.Rules loaded once at startup from a YAML rule file — boxtinagent
// has no host module system to ask "what is this class's caller module", so
// unlike a real embedding it hands back the same Rules regardless of the
// module argument (spec §6 "Controller interface"; a real Controller is
// expected to vary its answer per module).
type fileController struct {
	rules   *policy.Rules
	catalog policy.Catalog
}

func (c *fileController) RulesForCaller(string) (*policy.Rules, error) {
	return c.rules, nil
}

func (c *fileController) Catalog() policy.Catalog {
	return c.catalog
}
