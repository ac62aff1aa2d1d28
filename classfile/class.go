package classfile

// Attribute is a generic (name, raw bytes) attribute. Most attributes are
// round-tripped opaquely; Code (with its exception table) and StackMapTable
// are the only ones the rewriter needs to understand structurally.
type Attribute struct {
	Name string
	Data []byte
}

// ExceptionTableEntry is one row of a Code attribute's exception table.
type ExceptionTableEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // index into the constant pool's Class entries, or 0 for "any"
}

// StackMapFrame is kept as its still-encoded bytes plus the decoded
// frame_type/offset_delta the rewriter needs to know which instruction the
// frame describes. Full frame-content decoding (locals/stack verification
// types) is not needed by the planner/rewriter, which only re-expresses
// offsets; see DESIGN.md for the scope note.
type StackMapFrame struct {
	FrameType   uint8
	OffsetDelta int // offset_delta: described offset = previous frame's offset + OffsetDelta + 1 (just OffsetDelta for the first frame)
	Raw         []byte
}

// CodeAttribute is the decoded form of a method's "Code" attribute.
type CodeAttribute struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Exceptions []ExceptionTableEntry
	Attributes []Attribute
	StackMap   []StackMapFrame // decoded from the nested StackMapTable attribute, if present
}

// Method is a method_info structure, including constructors and <clinit>.
type Method struct {
	AccessFlags uint16
	NameIndex   uint16
	DescIndex   uint16
	Code        *CodeAttribute // nil for abstract/native methods
	Attributes  []Attribute
}

// Field is a field_info structure.
type Field struct {
	AccessFlags uint16
	NameIndex   uint16
	DescIndex   uint16
	Attributes  []Attribute
}

// BootstrapMethod is one entry of the BootstrapMethods attribute, used to
// resolve invokedynamic call sites (spec §4.4 "Dynamic invocation").
type BootstrapMethod struct {
	MethodRefIndex uint16 // index of a MethodHandle CP entry
	Arguments      []uint16
}

// ParsedClass is the immutable record produced by Parse. Field names follow
// the class-file format's own vocabulary.
type ParsedClass struct {
	MinorVersion uint16
	MajorVersion uint16

	ConstantPool *ConstantPool

	AccessFlags uint16
	ThisClass   uint16 // CP index of a Class entry
	SuperClass  uint16 // CP index of a Class entry, 0 for java/lang/Object

	Interfaces []uint16 // CP indices of Class entries

	Fields  []Field
	Methods []Method

	Attributes      []Attribute
	BootstrapMethods []BootstrapMethod

	// Ignore is set by Parse when the input was truncated or carried a bad
	// magic number: the host should leave the class untouched rather than
	// attempt to emit anything (spec §4.1, "ignore=true").
	Ignore bool
}

// ThisClassName resolves ThisClass to its internal name (e.g. "java/lang/Foo").
func (pc *ParsedClass) ThisClassName() string {
	return pc.ConstantPool.ClassName(pc.ThisClass)
}

// SuperClassName resolves SuperClass to its internal name, or "" for
// java/lang/Object (SuperClass == 0).
func (pc *ParsedClass) SuperClassName() string {
	if pc.SuperClass == 0 {
		return ""
	}
	return pc.ConstantPool.ClassName(pc.SuperClass)
}

// MethodByNameAndDescriptor finds a method by its exact name and descriptor,
// mirroring how the platform resolves a declared member.
func (pc *ParsedClass) MethodByNameAndDescriptor(name, descriptor string) (*Method, bool) {
	for i := range pc.Methods {
		m := &pc.Methods[i]
		mn, _ := pc.ConstantPool.Get(m.NameIndex)
		md, _ := pc.ConstantPool.Get(m.DescIndex)
		if mn.Utf8 == name && md.Utf8 == descriptor {
			return m, true
		}
	}
	return nil, false
}

// MethodName resolves a method's name from the constant pool.
func (pc *ParsedClass) MethodName(m *Method) string {
	e, _ := pc.ConstantPool.Get(m.NameIndex)
	return e.Utf8
}

// MethodDescriptor resolves a method's descriptor from the constant pool.
func (pc *ParsedClass) MethodDescriptor(m *Method) string {
	e, _ := pc.ConstantPool.Get(m.DescIndex)
	return e.Utf8
}
