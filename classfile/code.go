package classfile

import "github.com/cojen/boxtin/boxtinerr"

// parseCodeAttribute decodes a method's "Code" attribute body (spec §4.1).
// The instruction bytes themselves are kept raw here; decoding them into
// individual instructions is the instruction package's job (C2) so that C1
// stays free of bytecode semantics.
func parseCodeAttribute(data []byte, cp *ConstantPool) (*CodeAttribute, error) {
	r := newByteReader(data)

	maxStack, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated Code attribute", err)
	}
	maxLocals, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated Code attribute", err)
	}
	codeLength, err := r.u4()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated Code attribute", err)
	}
	code, err := r.bytes(int(codeLength))
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated Code attribute code array", err)
	}

	excCount, err := r.u2()
	if err != nil {
		return nil, boxtinerr.WrapHard("truncated exception table", err)
	}
	exceptions := make([]ExceptionTableEntry, 0, excCount)
	for i := 0; i < int(excCount); i++ {
		var e ExceptionTableEntry
		if e.StartPC, err = r.u2(); err != nil {
			return nil, err
		}
		if e.EndPC, err = r.u2(); err != nil {
			return nil, err
		}
		if e.HandlerPC, err = r.u2(); err != nil {
			return nil, err
		}
		if e.CatchType, err = r.u2(); err != nil {
			return nil, err
		}
		exceptions = append(exceptions, e)
	}

	attrs, err := parseAttributes(r, cp)
	if err != nil {
		return nil, err
	}

	ca := &CodeAttribute{
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		Code:       append([]byte(nil), code...),
		Exceptions: exceptions,
	}

	var kept []Attribute
	for _, a := range attrs {
		if a.Name == "StackMapTable" {
			frames, err := decodeStackMapTable(a.Data)
			if err != nil {
				return nil, err
			}
			ca.StackMap = frames
			continue
		}
		kept = append(kept, a)
	}
	ca.Attributes = kept

	if len(code) > MaxCodeLength {
		return nil, boxtinerr.NewHardf("Method is too large: code length %d exceeds %d", len(code), MaxCodeLength)
	}

	return ca, nil
}

// encodeCodeAttribute is the Code attribute's inverse: it serializes a
// CodeAttribute back to the raw body bytes stored under attribute name
// "Code". cp is used to intern the nested StackMapTable attribute's name.
func encodeCodeAttribute(ca *CodeAttribute, cp *ConstantPool) ([]byte, error) {
	if len(ca.Code) > MaxCodeLength {
		return nil, boxtinerr.NewHardf("Method is too large: code length %d exceeds %d", len(ca.Code), MaxCodeLength)
	}

	w := &byteWriter{}
	w.u2(ca.MaxStack)
	w.u2(ca.MaxLocals)
	w.u4(uint32(len(ca.Code)))
	w.raw(ca.Code)

	w.u2(uint16(len(ca.Exceptions)))
	for _, e := range ca.Exceptions {
		w.u2(e.StartPC)
		w.u2(e.EndPC)
		w.u2(e.HandlerPC)
		w.u2(e.CatchType)
	}

	attrs := append([]Attribute(nil), ca.Attributes...)
	if len(ca.StackMap) > 0 {
		attrs = append(attrs, Attribute{Name: "StackMapTable", Data: encodeStackMapTable(ca.StackMap)})
	}
	encodeAttributes(w, cp, attrs)

	return w.buf, nil
}
