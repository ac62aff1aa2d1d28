package classfile

// encodeAttributes writes an attribute_info list (count + entries) to w,
// interning each attribute's name Utf8 in cp. Shared by the class, field,
// method and Code-attribute emitters.
func encodeAttributes(w *byteWriter, cp *ConstantPool, attrs []Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		nameIdx := cp.InternUtf8(a.Name)
		w.u2(nameIdx)
		w.u4(uint32(len(a.Data)))
		w.raw(a.Data)
	}
}

// extractBootstrapMethods pulls the BootstrapMethods class attribute (used
// to resolve invokedynamic call sites) out of pc.Attributes into the
// structured BootstrapMethods field, leaving the rest of pc.Attributes
// untouched. The attribute is re-synthesized from BootstrapMethods on Emit.
func extractBootstrapMethods(pc *ParsedClass) error {
	var kept []Attribute
	for _, a := range pc.Attributes {
		if a.Name != "BootstrapMethods" {
			kept = append(kept, a)
			continue
		}
		r := newByteReader(a.Data)
		count, err := r.u2()
		if err != nil {
			return err
		}
		for i := 0; i < int(count); i++ {
			methodRefIdx, err := r.u2()
			if err != nil {
				return err
			}
			argCount, err := r.u2()
			if err != nil {
				return err
			}
			args := make([]uint16, 0, argCount)
			for j := 0; j < int(argCount); j++ {
				idx, err := r.u2()
				if err != nil {
					return err
				}
				args = append(args, idx)
			}
			pc.BootstrapMethods = append(pc.BootstrapMethods, BootstrapMethod{
				MethodRefIndex: methodRefIdx,
				Arguments:      args,
			})
		}
	}
	pc.Attributes = kept
	return nil
}

// encodeBootstrapMethodsAttribute re-synthesizes the BootstrapMethods
// attribute body from pc.BootstrapMethods, which nothing in this module
// adds to or rewrites, so the entries come back as parsed (spec §4.1, "the
// bootstrap-methods attribute is preserved").
func encodeBootstrapMethodsAttribute(methods []BootstrapMethod) []byte {
	w := &byteWriter{}
	w.u2(uint16(len(methods)))
	for _, m := range methods {
		w.u2(m.MethodRefIndex)
		w.u2(uint16(len(m.Arguments)))
		for _, a := range m.Arguments {
			w.u2(a)
		}
	}
	return w.buf
}
