package policy

import (
	"crypto/md5"
	"encoding/binary"
	"io"
	"sort"
)

// Hash computes a deterministic, structural MD5 digest of the built rule
// tree (spec §4.3 "Equality and hashing of built Rules must be deterministic
// and structural"): two Rules built from equivalent Builder calls, in any
// order, hash identically. Grounded on the teacher's own use of
// crypto/md5 for content hashing (gfunction.hashMapHash).
func (r *Rules) Hash() [16]byte {
	h := md5.New()
	writeNode(h, r.tree.root)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Equal reports whether two Rules values were built from structurally
// equivalent rule sets, independent of the order Builder calls were made in.
func (r *Rules) Equal(other *Rules) bool {
	return r.Hash() == other.Hash()
}

func writeNode(h io.Writer, n *node) {
	if n.defaultPolicy != nil {
		h.Write([]byte{1, byte(*n.defaultPolicy)})
	} else {
		h.Write([]byte{0})
	}
	if n.rule != nil {
		writeRule(h, *n.rule)
	} else {
		h.Write([]byte{0xFF})
	}

	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	putUint32(h, uint32(len(keys)))
	for _, k := range keys {
		writeString(h, k)
		writeNode(h, n.children[k])
	}
}

func writeRule(h io.Writer, r Rule) {
	h.Write([]byte{byte(r.Kind)})
	if r.Kind != RuleAllow {
		writeAction(h, r.Action)
	}
}

func writeAction(h io.Writer, a DenyAction) {
	h.Write([]byte{byte(a.Kind)})
	switch a.Kind {
	case ActionException:
		writeString(h, a.ExceptionClass)
		if a.ExceptionMessage != nil {
			h.Write([]byte{1})
			writeString(h, *a.ExceptionMessage)
		} else {
			h.Write([]byte{0})
		}
	case ActionValue:
		writeString(h, a.Value.Kind)
		writeString(h, a.Value.StringVal)
		putUint64(h, uint64(a.Value.IntVal))
		putUint64(h, uint64(a.Value.FloatVal))
		if a.Value.BoolVal {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case ActionCustom:
		writeMemberRef(h, a.Custom)
	case ActionChecked:
		writeMemberRef(h, a.Predicate)
		if a.Inner != nil {
			h.Write([]byte{1})
			writeAction(h, *a.Inner)
		} else {
			h.Write([]byte{0})
		}
	}
}

func writeMemberRef(h io.Writer, m MemberRef) {
	writeString(h, m.ClassName)
	writeString(h, m.MethodName)
	writeString(h, m.Descriptor)
	if m.TakesCallerClass {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	if m.TakesReceiver {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

func writeString(h io.Writer, s string) {
	putUint32(h, uint32(len(s)))
	h.Write([]byte(s))
}

func putUint32(h io.Writer, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	h.Write(b)
}

func putUint64(h io.Writer, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	h.Write(b)
}

// HashString renders a Rules hash as a hex string, convenient for
// boxtinctl's dump output and logging.
func (r *Rules) HashString() string {
	sum := r.Hash()
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, 32)
	for _, b := range sum {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return string(out)
}
