package classfile

// Redefine implements C1's emission contract: it serializes a ParsedClass
// back to bytes. Constant-pool growth is append-only (spec §4.5); the
// bootstrap-methods attribute, if any, is re-synthesized from
// pc.BootstrapMethods and kept alongside pc.Attributes so it participates in
// the same preserve-unless-rewritten discipline as every other attribute.
func Redefine(pc *ParsedClass) ([]byte, error) {
	w := &byteWriter{}
	w.u4(MagicNumber)
	w.u2(pc.MinorVersion)
	w.u2(pc.MajorVersion)

	// The constant pool must be fully finalized (including any helper
	// Methodref/Utf8 entries the rewriter/helper packages interned) before
	// we encode its count and entries, but attribute encoding below may
	// itself intern attribute-name Utf8 entries — so we encode the pool
	// last, serializing into a side buffer and splicing it in afterward.
	bodyW := &byteWriter{}

	bodyW.u2(pc.AccessFlags)
	bodyW.u2(pc.ThisClass)
	bodyW.u2(pc.SuperClass)

	bodyW.u2(uint16(len(pc.Interfaces)))
	for _, i := range pc.Interfaces {
		bodyW.u2(i)
	}

	bodyW.u2(uint16(len(pc.Fields)))
	for _, f := range pc.Fields {
		bodyW.u2(f.AccessFlags)
		bodyW.u2(f.NameIndex)
		bodyW.u2(f.DescIndex)
		encodeAttributes(bodyW, pc.ConstantPool, f.Attributes)
	}

	bodyW.u2(uint16(len(pc.Methods)))
	for _, m := range pc.Methods {
		bodyW.u2(m.AccessFlags)
		bodyW.u2(m.NameIndex)
		bodyW.u2(m.DescIndex)

		attrs := append([]Attribute(nil), m.Attributes...)
		if m.Code != nil {
			codeBytes, err := encodeCodeAttribute(m.Code, pc.ConstantPool)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{Name: "Code", Data: codeBytes})
		}
		encodeAttributes(bodyW, pc.ConstantPool, attrs)
	}

	classAttrs := append([]Attribute(nil), pc.Attributes...)
	if len(pc.BootstrapMethods) > 0 {
		classAttrs = append(classAttrs, Attribute{
			Name: "BootstrapMethods",
			Data: encodeBootstrapMethodsAttribute(pc.BootstrapMethods),
		})
	}
	encodeAttributes(bodyW, pc.ConstantPool, classAttrs)

	// Now that every attribute has had a chance to intern a Utf8 entry, the
	// constant pool is final: encode it and assemble the full class file.
	encodeConstantPool(w, pc.ConstantPool)
	w.raw(bodyW.buf)

	return w.buf, nil
}

func encodeConstantPool(w *byteWriter, cp *ConstantPool) {
	entries := cp.Raw()
	w.u2(uint16(len(entries)))
	for i := 1; i < len(entries); i++ {
		e := entries[i]
		switch e.Tag {
		case 0:
			// phantom slot following a Long/Double entry; nothing to emit
			continue
		case TagUtf8:
			w.u1(TagUtf8)
			w.u2(uint16(len(e.Utf8)))
			w.raw([]byte(e.Utf8))
		case TagInteger:
			w.u1(TagInteger)
			w.u4(uint32(e.IntVal))
		case TagFloat:
			w.u1(TagFloat)
			w.u4(float32Bits(e.FloatVal))
		case TagLong:
			w.u1(TagLong)
			bits := uint64(e.LongVal)
			w.u4(uint32(bits >> 32))
			w.u4(uint32(bits))
		case TagDouble:
			w.u1(TagDouble)
			bits := float64Bits(e.DoubleVal)
			w.u4(uint32(bits >> 32))
			w.u4(uint32(bits))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			w.u1(uint8(e.Tag))
			w.u2(e.NameIndex)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			w.u1(uint8(e.Tag))
			w.u2(e.ClassIndex)
			w.u2(e.NameAndTypeIndex)
		case TagNameAndType:
			w.u1(TagNameAndType)
			w.u2(e.NameIndex)
			w.u2(e.DescriptorIndex)
		case TagMethodHandle:
			w.u1(TagMethodHandle)
			w.u1(e.RefKind)
			w.u2(e.RefIndex)
		case TagDynamic, TagInvokeDynamic:
			w.u1(uint8(e.Tag))
			w.u2(e.BootstrapMethodAttrIndex)
			w.u2(e.NameAndTypeIndex)
		}
	}
}

// EmptyClass builds the empty-class form used when parsing or rewriting
// fails (spec §6): a minimal valid class file declaring `public class <name>`
// with no fields, no methods beyond the implicit inherited ones, and no
// static initializer.
func EmptyClass(internalName string) []byte {
	cp := NewConstantPool()
	thisClassIdx := cp.InternClass(internalName)
	superClassIdx := cp.InternClass("java/lang/Object")

	pc := &ParsedClass{
		MinorVersion: 0,
		MajorVersion: MaxSupportedMajor,
		ConstantPool: cp,
		AccessFlags:  0x0021, // ACC_PUBLIC | ACC_SUPER
		ThisClass:    thisClassIdx,
		SuperClass:   superClassIdx,
	}
	out, err := Redefine(pc)
	if err != nil {
		// EmptyClass has no code/attributes that can legitimately fail to
		// encode; a failure here indicates a codec bug, not bad input.
		panic("classfile: EmptyClass failed to encode: " + err.Error())
	}
	return out
}
