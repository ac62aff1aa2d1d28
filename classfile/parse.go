package classfile

import (
	"errors"

	"github.com/cojen/boxtin/boxtinerr"
)

// MinSupportedMajor/MaxSupportedMajor bound the major class-file versions
// this codec recognizes. A major version outside this range is a
// non-ignorable error (spec §4.1): "A major-version the codec does not
// recognize is a non-ignorable error."
const (
	MinSupportedMajor = 45 // JDK 1.1
	MaxSupportedMajor = 68 // JDK 24
)

// Parse implements C1's begin(bytes) contract: it performs a single forward
// pass over a class file and returns a ParsedClass, or an error. Truncation
// or a bad magic number yields a ParsedClass with Ignore set (the host
// should leave the class untouched); an unrecognized major version is a
// non-ignorable error. Method bodies are not decoded here: an undefined
// opcode surfaces later, when the planner decodes the code.
func Parse(data []byte) (*ParsedClass, error) {
	r := newByteReader(data)

	// fail maps an error that stems from running off the end of the input
	// (an Ignorable error anywhere in its wrap chain) to the Ignore result.
	fail := func(err error) (*ParsedClass, error) {
		for e := err; e != nil; e = errors.Unwrap(e) {
			if cfe, ok := boxtinerr.AsClassFormatError(e); ok && cfe.Ignore() {
				return &ParsedClass{Ignore: true}, nil
			}
		}
		return nil, err
	}

	magic, err := r.u4()
	if err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	if magic != MagicNumber {
		return &ParsedClass{Ignore: true}, nil
	}

	minor, err := r.u2()
	if err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	major, err := r.u2()
	if err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	if major < MinSupportedMajor || major > MaxSupportedMajor {
		return nil, boxtinerr.NewHardf("unsupported class file major version %d", major)
	}

	pc := &ParsedClass{MinorVersion: minor, MajorVersion: major}

	cp, err := parseConstantPool(r)
	if err != nil {
		return fail(err)
	}
	pc.ConstantPool = cp

	if pc.AccessFlags, err = r.u2(); err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	if pc.ThisClass, err = r.u2(); err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	if pc.SuperClass, err = r.u2(); err != nil {
		return &ParsedClass{Ignore: true}, nil
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return &ParsedClass{Ignore: true}, nil
	}
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return &ParsedClass{Ignore: true}, nil
		}
		pc.Interfaces = append(pc.Interfaces, idx)
	}

	if pc.Fields, err = parseFields(r, cp); err != nil {
		return fail(err)
	}
	if pc.Methods, err = parseMethods(r, cp); err != nil {
		return fail(err)
	}
	if pc.Attributes, err = parseAttributes(r, cp); err != nil {
		return fail(err)
	}

	if err := extractBootstrapMethods(pc); err != nil {
		return fail(err)
	}

	return pc, nil
}

func parseConstantPool(r *byteReader) (*ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated constant pool count", err)
	}

	cp := &ConstantPool{entries: make([]CPEntry, count)}
	for i := 1; i < int(count); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, boxtinerr.WrapHard("truncated constant pool", err)
		}
		entry := CPEntry{Tag: int(tag)}
		switch int(tag) {
		case TagUtf8:
			length, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(length))
			if err != nil {
				return nil, err
			}
			entry.Utf8 = string(b)
		case TagInteger:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.IntVal = int32(v)
		case TagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.FloatVal = float32FromBits(v)
		case TagLong:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.LongVal = int64(uint64(hi)<<32 | uint64(lo))
			cp.entries[i] = entry
			i++ // longs and doubles occupy the next index too
			continue
		case TagDouble:
			hi, err := r.u4()
			if err != nil {
				return nil, err
			}
			lo, err := r.u4()
			if err != nil {
				return nil, err
			}
			entry.DoubleVal = float64FromBits(uint64(hi)<<32 | uint64(lo))
			cp.entries[i] = entry
			i++
			continue
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.NameIndex = idx
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			classIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			natIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.ClassIndex = classIdx
			entry.NameAndTypeIndex = natIdx
		case TagNameAndType:
			nameIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			descIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.NameIndex = nameIdx
			entry.DescriptorIndex = descIdx
		case TagMethodHandle:
			refKind, err := r.u1()
			if err != nil {
				return nil, err
			}
			refIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.RefKind = refKind
			entry.RefIndex = refIdx
		case TagDynamic, TagInvokeDynamic:
			bmIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			natIdx, err := r.u2()
			if err != nil {
				return nil, err
			}
			entry.BootstrapMethodAttrIndex = bmIdx
			entry.NameAndTypeIndex = natIdx
		default:
			return nil, boxtinerr.NewHardf("unrecognized constant pool tag %d at index %d", tag, i)
		}
		cp.entries[i] = entry
	}
	return cp, nil
}

func parseFields(r *byteReader, cp *ConstantPool) ([]Field, error) {
	count, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated field count", err)
	}
	fields := make([]Field, 0, count)
	for i := 0; i < int(count); i++ {
		f := Field{}
		if f.AccessFlags, err = r.u2(); err != nil {
			return nil, err
		}
		if f.NameIndex, err = r.u2(); err != nil {
			return nil, err
		}
		if f.DescIndex, err = r.u2(); err != nil {
			return nil, err
		}
		if f.Attributes, err = parseAttributes(r, cp); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseMethods(r *byteReader, cp *ConstantPool) ([]Method, error) {
	count, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated method count", err)
	}
	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		m := Method{}
		if m.AccessFlags, err = r.u2(); err != nil {
			return nil, err
		}
		if m.NameIndex, err = r.u2(); err != nil {
			return nil, err
		}
		if m.DescIndex, err = r.u2(); err != nil {
			return nil, err
		}
		attrs, err := parseAttributes(r, cp)
		if err != nil {
			return nil, err
		}
		var kept []Attribute
		for _, a := range attrs {
			if a.Name == "Code" {
				code, err := parseCodeAttribute(a.Data, cp)
				if err != nil {
					return nil, err
				}
				m.Code = code
				continue
			}
			kept = append(kept, a)
		}
		m.Attributes = kept
		methods = append(methods, m)
	}
	return methods, nil
}

func parseAttributes(r *byteReader, cp *ConstantPool) ([]Attribute, error) {
	count, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated attribute count", err)
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < int(count); i++ {
		nameIdx, err := r.u2()
		if err != nil {
			return nil, err
		}
		length, err := r.u4()
		if err != nil {
			return nil, err
		}
		data, err := r.bytes(int(length))
		if err != nil {
			return nil, err
		}
		nameEntry, _ := cp.Get(nameIdx)
		attrs = append(attrs, Attribute{Name: nameEntry.Utf8, Data: append([]byte(nil), data...)})
	}
	return attrs, nil
}
