package rewriter

import (
	"sort"

	"github.com/cojen/boxtin/boxtinerr"
	"github.com/cojen/boxtin/classfile"
)

// reflowExceptionTable remaps every entry's start/end/handler offsets
// through om. EndPC is conventionally one-past-the-last-covered-instruction,
// which is exactly what om's len(oldCode) sentinel entry covers when a
// try-block runs to the end of the method.
func reflowExceptionTable(exc []classfile.ExceptionTableEntry, om map[int]int) ([]classfile.ExceptionTableEntry, error) {
	if len(exc) == 0 {
		return exc, nil
	}
	out := make([]classfile.ExceptionTableEntry, len(exc))
	for i, e := range exc {
		start, ok := om[int(e.StartPC)]
		if !ok {
			return nil, boxtinerr.NewHardf("exception table start_pc %d falls inside a spliced call site", e.StartPC)
		}
		end, ok := om[int(e.EndPC)]
		if !ok {
			return nil, boxtinerr.NewHardf("exception table end_pc %d falls inside a spliced call site", e.EndPC)
		}
		handler, ok := om[int(e.HandlerPC)]
		if !ok {
			return nil, boxtinerr.NewHardf("exception table handler_pc %d falls inside a spliced call site", e.HandlerPC)
		}
		out[i] = classfile.ExceptionTableEntry{
			StartPC:   uint16(start),
			EndPC:     uint16(end),
			HandlerPC: uint16(handler),
			CatchType: e.CatchType,
		}
	}
	return out, nil
}

// Stack-map frame_type boundaries (JVM class-file format). Duplicated from
// classfile/stackmap.go's unexported constants of the same name: these are
// the wire format's own fixed points, not a choice either package makes, so
// re-stating them here costs nothing and keeps the rewriter from reaching
// into C1's internals.
const (
	frameSameMax                      = 63
	frameSameLocals1StackItemMin       = 64
	frameSameLocals1StackItemMax       = 127
	frameSameLocals1StackItemExtended  = 247
	frameChopMin                       = 248
	frameChopMax                       = 250
	frameSameExtended                  = 251
	frameAppendMin                     = 252
	frameAppendMax                     = 254
	frameFull                          = 255
)

// syntheticFrame is a brand-new join point a splice introduces — a target-
// entry prologue's internal branch and its rejoin with the original method
// body, or a deny stub's checked branch — identified by its final absolute
// offset in the rewritten code (already known exactly: these offsets lie
// inside freshly emitted bytes, never inside code the offset map om
// retargets). localsCount/localsData describe the full_frame's locals list,
// built via classfile.AppendLocalVerificationType/AppendReceiverVerificationType.
type syntheticFrame struct {
	offset      int
	localsCount int
	localsData  []byte
}

// reflowStackMap remaps every existing frame's described offset through om,
// re-derives its encoded bytes (promoting an implicit-delta frame_type
// (0-127) to its explicit-delta "_extended" form when the new delta no
// longer fits), merges in any extra synthetic frames a splice introduced,
// and re-chains offset_delta across the combined, offset-sorted sequence
// (spec §4.5, §8 "Stack-map validity").
func reflowStackMap(frames []classfile.StackMapFrame, om map[int]int, extra []syntheticFrame) ([]classfile.StackMapFrame, error) {
	if len(frames) == 0 && len(extra) == 0 {
		return frames, nil
	}

	type absFrame struct {
		offset   int
		existing *classfile.StackMapFrame
		synth    *syntheticFrame
	}
	all := make([]absFrame, 0, len(frames)+len(extra))

	prevOldAbs := -1
	for i := range frames {
		f := &frames[i]
		oldAbs := prevOldAbs + f.OffsetDelta + 1
		newAbs, ok := om[oldAbs]
		if !ok {
			return nil, boxtinerr.NewHardf("stack map frame at old code offset %d falls inside a spliced call site", oldAbs)
		}
		all = append(all, absFrame{offset: newAbs, existing: f})
		prevOldAbs = oldAbs
	}
	for i := range extra {
		all = append(all, absFrame{offset: extra[i].offset, synth: &extra[i]})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].offset < all[j].offset })

	out := make([]classfile.StackMapFrame, len(all))
	prevNewAbs := -1
	for i, a := range all {
		newDelta := a.offset - prevNewAbs - 1
		if newDelta < 0 {
			return nil, boxtinerr.NewHardf("stack map frame at new code offset %d moved out of order after rewriting", a.offset)
		}

		if a.synth != nil {
			out[i] = classfile.BuildFullFrame(newDelta, a.synth.localsCount, a.synth.localsData)
		} else {
			raw, frameType, err := reencodeFrame(*a.existing, newDelta)
			if err != nil {
				return nil, err
			}
			out[i] = classfile.StackMapFrame{FrameType: frameType, OffsetDelta: newDelta, Raw: raw}
		}
		prevNewAbs = a.offset
	}
	return out, nil
}

// reencodeFrame rebuilds f's Raw bytes for a new offset_delta. Explicit-delta
// frame types (247 and up) only need their 2-byte delta field patched;
// everything else in Raw (verification-type lists, locals/stack counts) is
// copied unchanged. Implicit-delta types (0-127) encode the delta in the
// frame_type byte itself and must be promoted to the matching "_extended"
// form when newDelta no longer fits.
func reencodeFrame(f classfile.StackMapFrame, newDelta int) ([]byte, uint8, error) {
	switch {
	case f.FrameType <= frameSameMax:
		if newDelta <= frameSameMax {
			return []byte{byte(newDelta)}, uint8(newDelta), nil
		}
		return []byte{frameSameExtended, byte(newDelta >> 8), byte(newDelta)}, frameSameExtended, nil

	case f.FrameType >= frameSameLocals1StackItemMin && f.FrameType <= frameSameLocals1StackItemMax:
		vti := append([]byte(nil), f.Raw[1:]...) // the single verification_type_info, unchanged
		if newDelta <= 63 {
			frameType := uint8(frameSameLocals1StackItemMin + newDelta)
			return append([]byte{frameType}, vti...), frameType, nil
		}
		raw := append([]byte{frameSameLocals1StackItemExtended, byte(newDelta >> 8), byte(newDelta)}, vti...)
		return raw, frameSameLocals1StackItemExtended, nil

	case f.FrameType == frameSameLocals1StackItemExtended,
		f.FrameType >= frameChopMin && f.FrameType <= frameChopMax,
		f.FrameType == frameSameExtended,
		f.FrameType >= frameAppendMin && f.FrameType <= frameAppendMax,
		f.FrameType == frameFull:
		if newDelta > 0xFFFF {
			return nil, 0, boxtinerr.NewHardf("stack map frame delta %d no longer fits in 16 bits", newDelta)
		}
		raw := append([]byte(nil), f.Raw...)
		raw[1] = byte(newDelta >> 8)
		raw[2] = byte(newDelta)
		return raw, f.FrameType, nil

	default:
		return nil, 0, boxtinerr.NewHardf("reserved stack-map frame_type %d", f.FrameType)
	}
}
