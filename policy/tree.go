package policy

// node is one level of the rule tree: root, module, package, class, or
// member (spec §3 "Rule tree"). Each level carries an optional default
// Policy and a set of named child overrides; most-specific-wins lookup
// walks from root down through module/package/class to member, keeping the
// deepest override found along the way.
type node struct {
	defaultPolicy *Policy // nil means "inherit from parent"
	rule          *Rule   // set only on member-level (or class-level "all") nodes

	children map[string]*node
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode()
		n.children[name] = c
	}
	return c
}

// tree is the full hierarchical structure built by a Builder: root ->
// module -> package -> class -> member.
type tree struct {
	root *node
}

func newTree() *tree {
	return &tree{root: newNode()}
}

// memberKey identifies a method or constructor at the member level: its
// name (or "<init>") plus the rule selector (either the full descriptor for
// a specific-variant rule, or "" for a name-wide rule).
type memberKey struct {
	name       string
	descriptor string // "" selects "all variants of this name"
}

// resolve performs the most-specific-wins lookup described in spec §4.3:
// walk module -> package -> class -> member, remembering the deepest rule
// set along the path, and falling back to the deepest explicit Policy
// default if no member-level rule matches.
func (t *tree) resolve(module, pkg, class string, key memberKey) Rule {
	policy := PolicyAllow
	var deepestRule *Rule

	apply := func(n *node) {
		if n.defaultPolicy != nil {
			policy = *n.defaultPolicy
		}
	}

	cur := t.root
	apply(cur)

	if m, ok := cur.children[module]; ok {
		cur = m
		apply(cur)

		if p, ok := cur.children[pkg]; ok {
			cur = p
			apply(cur)

			if c, ok := cur.children[class]; ok {
				cur = c
				apply(cur)

				// class-level "all members" rule, e.g. denyAll()/allowAll()
				// applied at forClass() scope without narrowing further.
				if cur.rule != nil {
					deepestRule = cur.rule
				}

				// Exact-variant rule takes precedence over a name-wide rule.
				if mem, ok := cur.children[memberChildKey(key.name, "")]; ok && mem.rule != nil {
					deepestRule = mem.rule
				}
				if key.descriptor != "" {
					if mem, ok := cur.children[memberChildKey(key.name, key.descriptor)]; ok && mem.rule != nil {
						deepestRule = mem.rule
					}
				}
			}
		}
	}

	if deepestRule != nil {
		return *deepestRule
	}
	if policy == PolicyDeny {
		return DenyAtCaller(Standard)
	}
	return Allow
}

func memberChildKey(name, descriptor string) string {
	return name + "\x00" + descriptor
}
