// Package classfile implements C1: the deterministic class-file codec. It
// parses constant-pool entries, methods, code attributes, stack-map frames
// and exception tables into an immutable ParsedClass, and emits a ParsedClass
// back to bytes. The codec performs no semantic interpretation of bytecode —
// that is the job of the instruction and planner packages.
package classfile

// Constant-pool tag values, per the platform's class-file format.
const (
	TagUtf8              = 1
	TagInteger           = 3
	TagFloat             = 4
	TagLong              = 5
	TagDouble            = 6
	TagClass             = 7
	TagString            = 8
	TagFieldref          = 9
	TagMethodref         = 10
	TagInterfaceMethodref = 11
	TagNameAndType       = 12
	TagMethodHandle      = 15
	TagMethodType        = 16
	TagDynamic           = 17
	TagInvokeDynamic     = 18
	TagModule            = 19
	TagPackage           = 20
)

// MagicNumber is the four-byte signature every class file must begin with.
const MagicNumber = 0xCAFEBABE

// MaxCodeLength is the platform's 64 KiB code-attribute limit (spec §4.1.a).
const MaxCodeLength = 65535

// CPEntry is one constant-pool slot. Only the fields relevant to the tag are
// populated; the rest are zero. Indices are 1-based and index 0 is never a
// valid entry, matching the platform's constant pool numbering.
type CPEntry struct {
	Tag int

	// TagUtf8
	Utf8 string

	// TagInteger, TagFloat, TagLong, TagDouble
	IntVal    int32
	FloatVal  float32
	LongVal   int64
	DoubleVal float64

	// TagClass, TagString, TagMethodType, TagModule, TagPackage: index of a
	// Utf8 entry (or, for MethodType, the descriptor Utf8).
	NameIndex uint16

	// TagFieldref, TagMethodref, TagInterfaceMethodref
	ClassIndex       uint16
	NameAndTypeIndex uint16

	// TagNameAndType
	DescriptorIndex uint16

	// TagMethodHandle
	RefKind  uint8
	RefIndex uint16

	// TagDynamic, TagInvokeDynamic
	BootstrapMethodAttrIndex uint16
}

// ConstantPool is the append-only, never-reordered vector of CPEntry. Index 0
// is unused; Long and Double entries occupy two slots (the platform quirk
// where the following index is unusable), mirrored here by leaving a zero
// CPEntry in the slot after each of them, so a Go index is always the JVM's
// constant-pool index.
type ConstantPool struct {
	entries []CPEntry // entries[0] is the unused zero index
}

// NewConstantPool returns a pool with the mandatory unused slot 0 populated.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: []CPEntry{{}}}
}

// Count returns the declared constant_pool_count (len(entries), including the
// unused slot 0).
func (cp *ConstantPool) Count() int { return len(cp.entries) }

// Get returns the entry at index, or a zero entry and false if out of range.
func (cp *ConstantPool) Get(index uint16) (CPEntry, bool) {
	if int(index) <= 0 || int(index) >= len(cp.entries) {
		return CPEntry{}, false
	}
	return cp.entries[index], true
}

// Append adds a new entry and returns its index. Long/Double entries consume
// an extra phantom slot to mirror JVM numbering.
func (cp *ConstantPool) Append(e CPEntry) uint16 {
	idx := uint16(len(cp.entries))
	cp.entries = append(cp.entries, e)
	if e.Tag == TagLong || e.Tag == TagDouble {
		cp.entries = append(cp.entries, CPEntry{}) // phantom slot
	}
	return idx
}

// FindUtf8 returns the index of an existing Utf8 entry with the given
// content, or 0 if none exists. Used by the rewriter/helper packages to
// deduplicate constant-pool growth (spec §4.5 "Constant-pool growth").
func (cp *ConstantPool) FindUtf8(s string) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagUtf8 && e.Utf8 == s {
			return uint16(i)
		}
	}
	return 0
}

// InternUtf8 returns the index of an existing Utf8 entry equal to s,
// appending a new one only if none exists.
func (cp *ConstantPool) InternUtf8(s string) uint16 {
	if idx := cp.FindUtf8(s); idx != 0 {
		return idx
	}
	return cp.Append(CPEntry{Tag: TagUtf8, Utf8: s})
}

// FindMethodref returns the index of an existing Methodref entry pointing at
// (classIndex, natIndex), or 0 if none exists.
func (cp *ConstantPool) FindMethodref(classIndex, natIndex uint16) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagMethodref && e.ClassIndex == classIndex && e.NameAndTypeIndex == natIndex {
			return uint16(i)
		}
	}
	return 0
}

// InternClass interns a Utf8 of the given internal class name and a Class
// entry pointing at it, deduplicating both.
func (cp *ConstantPool) InternClass(internalName string) uint16 {
	utf8 := cp.InternUtf8(internalName)
	for i, e := range cp.entries {
		if e.Tag == TagClass && e.NameIndex == utf8 {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagClass, NameIndex: utf8})
}

// InternNameAndType interns a NameAndType entry for (name, descriptor).
func (cp *ConstantPool) InternNameAndType(name, descriptor string) uint16 {
	n := cp.InternUtf8(name)
	d := cp.InternUtf8(descriptor)
	for i, e := range cp.entries {
		if e.Tag == TagNameAndType && e.NameIndex == n && e.DescriptorIndex == d {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagNameAndType, NameIndex: n, DescriptorIndex: d})
}

// InternMethodref interns a Methodref entry for a static/virtual helper call,
// deduplicating the class, name-and-type, and methodref entries.
func (cp *ConstantPool) InternMethodref(internalClassName, name, descriptor string) uint16 {
	classIdx := cp.InternClass(internalClassName)
	natIdx := cp.InternNameAndType(name, descriptor)
	if idx := cp.FindMethodref(classIdx, natIdx); idx != 0 {
		return idx
	}
	return cp.Append(CPEntry{Tag: TagMethodref, ClassIndex: classIdx, NameAndTypeIndex: natIdx})
}

// ClassName resolves a Class-entry index to its internal name, or "" if the
// index does not name a Class entry.
func (cp *ConstantPool) ClassName(classIndex uint16) string {
	e, ok := cp.Get(classIndex)
	if !ok || e.Tag != TagClass {
		return ""
	}
	u, ok := cp.Get(e.NameIndex)
	if !ok || u.Tag != TagUtf8 {
		return ""
	}
	return u.Utf8
}

// NameAndType resolves a NameAndType-entry index to (name, descriptor).
func (cp *ConstantPool) NameAndType(natIndex uint16) (string, string) {
	e, ok := cp.Get(natIndex)
	if !ok || e.Tag != TagNameAndType {
		return "", ""
	}
	nameE, _ := cp.Get(e.NameIndex)
	descE, _ := cp.Get(e.DescriptorIndex)
	return nameE.Utf8, descE.Utf8
}

// MethodrefInfo resolves a Methodref/InterfaceMethodref index to
// (className, methodName, descriptor).
func (cp *ConstantPool) MethodrefInfo(index uint16) (className, methodName, descriptor string) {
	e, ok := cp.Get(index)
	if !ok || (e.Tag != TagMethodref && e.Tag != TagInterfaceMethodref) {
		return "", "", ""
	}
	className = cp.ClassName(e.ClassIndex)
	methodName, descriptor = cp.NameAndType(e.NameAndTypeIndex)
	return
}

// InternInteger interns an Integer constant-pool entry.
func (cp *ConstantPool) InternInteger(v int32) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagInteger && e.IntVal == v {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagInteger, IntVal: v})
}

// InternLong interns a Long constant-pool entry.
func (cp *ConstantPool) InternLong(v int64) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagLong && e.LongVal == v {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagLong, LongVal: v})
}

// InternFloat interns a Float constant-pool entry.
func (cp *ConstantPool) InternFloat(v float32) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagFloat && e.FloatVal == v {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagFloat, FloatVal: v})
}

// InternDouble interns a Double constant-pool entry.
func (cp *ConstantPool) InternDouble(v float64) uint16 {
	for i, e := range cp.entries {
		if e.Tag == TagDouble && e.DoubleVal == v {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagDouble, DoubleVal: v})
}

// InternString interns a String constant-pool entry (and its backing Utf8).
func (cp *ConstantPool) InternString(s string) uint16 {
	utf8 := cp.InternUtf8(s)
	for i, e := range cp.entries {
		if e.Tag == TagString && e.NameIndex == utf8 {
			return uint16(i)
		}
	}
	return cp.Append(CPEntry{Tag: TagString, NameIndex: utf8})
}

// FieldrefInfo resolves a Fieldref index to (className, fieldName, descriptor).
func (cp *ConstantPool) FieldrefInfo(index uint16) (className, fieldName, descriptor string) {
	e, ok := cp.Get(index)
	if !ok || e.Tag != TagFieldref {
		return "", "", ""
	}
	className = cp.ClassName(e.ClassIndex)
	fieldName, descriptor = cp.NameAndType(e.NameAndTypeIndex)
	return
}

// Raw exposes the entry slice for the emitter and tests. Callers must not
// mutate the returned slice's entries in place to preserve append-only
// growth semantics elsewhere; use Append/Intern* instead.
func (cp *ConstantPool) Raw() []CPEntry { return cp.entries }
