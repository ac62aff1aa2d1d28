package classfile

import "github.com/cojen/boxtin/boxtinerr"

// Stack-map frame type boundaries (JVM class-file format, StackMapTable
// attribute). The codec decodes only enough of each frame to know its byte
// length and the instruction offset it describes — it does not interpret
// verification-type contents, per C1's "no semantic interpretation" contract.
const (
	frameSameMax                     = 63
	frameSameLocals1StackItemMin      = 64
	frameSameLocals1StackItemMax      = 127
	frameSameLocals1StackItemExtended = 247
	frameChopMin                     = 248
	frameChopMax                     = 250
	frameSameExtended                = 251
	frameAppendMin                   = 252
	frameAppendMax                   = 254
	frameFull                        = 255
)

// verificationTypeInfo tags that carry extra bytes beyond the 1-byte tag.
const (
	vtiTopObjectIndex      = 7 // Object_variable_info: u2 cpool index
	vtiUninitializedOffset = 8 // Uninitialized_variable_info: u2 offset
)

func readVerificationTypeInfo(r *byteReader) ([]byte, error) {
	start := r.pos
	tag, err := r.u1()
	if err != nil {
		return nil, err
	}
	switch tag {
	case vtiTopObjectIndex, vtiUninitializedOffset:
		if _, err := r.u2(); err != nil {
			return nil, err
		}
	}
	return r.data[start:r.pos], nil
}

// decodeStackMapTable parses a StackMapTable attribute's body (already
// stripped of the attribute name/length header) into a sequence of frames,
// each retaining its raw encoded bytes so the rewriter can re-emit them
// unchanged when no instruction before them changed length.
func decodeStackMapTable(body []byte) ([]StackMapFrame, error) {
	r := newByteReader(body)
	count, err := r.u2()
	if err != nil {
		return nil, err
	}
	frames := make([]StackMapFrame, 0, count)
	for i := 0; i < int(count); i++ {
		start := r.pos
		frameType, err := r.u1()
		if err != nil {
			return nil, err
		}

		var offsetDelta int
		switch {
		case frameType <= frameSameMax:
			offsetDelta = int(frameType)

		case frameType >= frameSameLocals1StackItemMin && frameType <= frameSameLocals1StackItemMax:
			offsetDelta = int(frameType) - frameSameLocals1StackItemMin
			if _, err := readVerificationTypeInfo(r); err != nil {
				return nil, err
			}

		case frameType == frameSameLocals1StackItemExtended:
			delta, err := r.u2()
			if err != nil {
				return nil, err
			}
			offsetDelta = int(delta)
			if _, err := readVerificationTypeInfo(r); err != nil {
				return nil, err
			}

		case frameType >= frameChopMin && frameType <= frameChopMax:
			delta, err := r.u2()
			if err != nil {
				return nil, err
			}
			offsetDelta = int(delta)

		case frameType == frameSameExtended:
			delta, err := r.u2()
			if err != nil {
				return nil, err
			}
			offsetDelta = int(delta)

		case frameType >= frameAppendMin && frameType <= frameAppendMax:
			delta, err := r.u2()
			if err != nil {
				return nil, err
			}
			offsetDelta = int(delta)
			n := int(frameType) - 251
			for j := 0; j < n; j++ {
				if _, err := readVerificationTypeInfo(r); err != nil {
					return nil, err
				}
			}

		case frameType == frameFull:
			delta, err := r.u2()
			if err != nil {
				return nil, err
			}
			offsetDelta = int(delta)
			numLocals, err := r.u2()
			if err != nil {
				return nil, err
			}
			for j := 0; j < int(numLocals); j++ {
				if _, err := readVerificationTypeInfo(r); err != nil {
					return nil, err
				}
			}
			numStack, err := r.u2()
			if err != nil {
				return nil, err
			}
			for j := 0; j < int(numStack); j++ {
				if _, err := readVerificationTypeInfo(r); err != nil {
					return nil, err
				}
			}

		default:
			return nil, boxtinerr.NewHardf("reserved stack-map frame_type %d is not defined", frameType)
		}

		frames = append(frames, StackMapFrame{
			FrameType:   frameType,
			OffsetDelta: offsetDelta,
			Raw:         append([]byte(nil), r.data[start:r.pos]...),
		})
	}
	return frames, nil
}

// encodeStackMapTable re-serializes frames back into a StackMapTable
// attribute body (count + frames). Used by the emitter when no frame's raw
// bytes changed; the rewriter is responsible for regenerating Raw on frames
// whose described offset moved (spec §4.5).
func encodeStackMapTable(frames []StackMapFrame) []byte {
	w := &byteWriter{}
	w.u2(uint16(len(frames)))
	for _, f := range frames {
		w.raw(f.Raw)
	}
	return w.buf
}

// Verification-type-info tags (platform class-file format, StackMapTable
// attribute), exposed so callers that splice new branch targets into a
// method — a deny stub's checked branch, a target-entry prologue's own
// branches and its rejoin with the original method body — can synthesize
// the stack-map frame such a join point requires instead of leaving it
// implicit (spec §8 "Stack-map validity": any point reachable other than by
// falling through from the immediately preceding instruction needs one).
const (
	VTITop               = 0
	VTIInteger           = 1
	VTIFloat             = 2
	VTIDouble            = 3
	VTILong              = 4
	VTINull              = 5
	VTIUninitializedThis = 6
	VTIObject            = 7
	VTIUninitialized     = 8
)

// AppendLocalVerificationType appends one verification_type_info entry
// describing descriptor (a field descriptor for a method parameter or
// local) to data, interning a Class entry through cp for a reference type.
// A category-2 type (long/double) contributes exactly one entry here, not
// two: number_of_locals counts values, not 4-byte slots.
func AppendLocalVerificationType(cp *ConstantPool, data []byte, descriptor string) []byte {
	switch descriptor[0] {
	case 'J':
		return append(data, VTILong)
	case 'D':
		return append(data, VTIDouble)
	case 'F':
		return append(data, VTIFloat)
	case 'Z', 'B', 'C', 'S', 'I':
		return append(data, VTIInteger)
	default: // 'L' or '['
		name := descriptor
		if descriptor[0] == 'L' {
			name = descriptor[1 : len(descriptor)-1]
		}
		idx := cp.InternClass(name)
		return append(data, VTIObject, byte(idx>>8), byte(idx))
	}
}

// AppendReceiverVerificationType appends the verification_type_info entry
// for an instance (or constructor) method's own receiver local (slot 0):
// UninitializedThis for a constructor prologue spliced in ahead of any
// superclass/this constructor call, Object(selfClass) otherwise.
func AppendReceiverVerificationType(cp *ConstantPool, data []byte, selfClass string, isConstructor bool) []byte {
	if isConstructor {
		return append(data, VTIUninitializedThis)
	}
	idx := cp.InternClass(selfClass)
	return append(data, VTIObject, byte(idx>>8), byte(idx))
}

// BuildFullFrame synthesizes a full_frame (frame_type 255) StackMapFrame at
// the given offset_delta, with an empty operand stack and the supplied
// already-encoded locals (localsCount verification_type_info entries,
// built via AppendLocalVerificationType/AppendReceiverVerificationType).
// Every join point this splices in front of existing bytecode has an empty
// stack at its start, so callers never need to describe one.
func BuildFullFrame(offsetDelta, localsCount int, localsData []byte) StackMapFrame {
	raw := make([]byte, 0, 6+len(localsData))
	raw = append(raw, frameFull, byte(offsetDelta>>8), byte(offsetDelta))
	raw = append(raw, byte(localsCount>>8), byte(localsCount))
	raw = append(raw, localsData...)
	raw = append(raw, 0, 0) // number_of_stack_items
	return StackMapFrame{FrameType: frameFull, OffsetDelta: offsetDelta, Raw: raw}
}
