// Package helper implements C6: synthesis of the generated "CustomActions"
// helper class that hosts a caller's deny stubs (spec §4.6). Each stub is a
// static method whose body implements one DenyAction shape; stub identity
// and naming are derived from a stable hash of
// (target-class, member-descriptor, action-shape) so that two call sites
// needing the same replacement share one method (spec §4.5 "Deterministic
// output").
package helper

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

// stubHash computes the deterministic digest a StubKey's identity is derived
// from. Grounded on the teacher's own use of crypto/md5 for content hashing
// (gfunction.hashMapHash), the same technique policy.Rules.Hash already
// applies to a built rule tree.
func stubHash(key planner.StubKey) string {
	h := md5.New()
	writeString(h, key.TargetClass)
	writeString(h, key.MemberName)
	writeString(h, key.MemberDescriptor)
	writeBool(h, key.TakesReceiver)
	writeBool(h, key.IsConstructor)
	writeAction(h, key.Action)
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)
}

// stubName derives the generated static method's name from the stub's
// identity hash. Names never depend on registration order, only on shape.
func stubName(key planner.StubKey) string {
	return "boxtin$stub$" + stubHash(key)[:12]
}

func writeAction(h io.Writer, a policy.DenyAction) {
	writeByte(h, byte(a.Kind))
	switch a.Kind {
	case policy.ActionException:
		writeString(h, a.ExceptionClass)
		if a.ExceptionMessage != nil {
			writeByte(h, 1)
			writeString(h, *a.ExceptionMessage)
		} else {
			writeByte(h, 0)
		}
	case policy.ActionValue:
		writeString(h, a.Value.Kind)
		writeString(h, a.Value.StringVal)
		putUint64(h, uint64(a.Value.IntVal))
		putUint64(h, uint64(a.Value.FloatVal))
		if a.Value.BoolVal {
			writeByte(h, 1)
		} else {
			writeByte(h, 0)
		}
	case policy.ActionCustom:
		writeMemberRef(h, a.Custom)
	case policy.ActionChecked:
		writeMemberRef(h, a.Predicate)
		if a.Inner != nil {
			writeByte(h, 1)
			writeAction(h, *a.Inner)
		} else {
			writeByte(h, 0)
		}
	}
}

func writeMemberRef(h io.Writer, m policy.MemberRef) {
	writeString(h, m.ClassName)
	writeString(h, m.MethodName)
	writeString(h, m.Descriptor)
	writeBool(h, m.TakesCallerClass)
	writeBool(h, m.TakesReceiver)
}

func writeBool(h io.Writer, b bool) {
	if b {
		writeByte(h, 1)
	} else {
		writeByte(h, 0)
	}
}

func writeByte(h io.Writer, b byte) { h.Write([]byte{b}) }

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

// sortedStubKeys returns m's keys in sorted order, independent of map
// iteration order. No code in this module calls it.
func sortedStubKeys(m map[string]planner.StubKey) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
