package rewriter

import (
	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

// securityExceptionClass mirrors helper.builder's constant of the same
// name: the platform's security-exception type, thrown by the Standard deny
// action (spec §3 "DenyAction", §7.3). Target prologues splice directly
// into the target class's own constant pool, so they can't share helper's
// unexported bodyBuilder; the action-shape logic below is the same
// technique, adapted for a receiver-bearing in-place prologue rather than a
// freestanding static stub (see helper/builder.go's bodyBuilder).
const securityExceptionClass = "java/lang/SecurityException"

// buildTargetPrologue synthesizes the bytecode spliced at the entry of a
// method carrying a DenyAtTarget rule (spec §4.4 "Target-site enforcement"):
// unconditionally (or, for a Checked action, conditionally) evaluate the
// action before any original instruction runs, without touching the
// method's declared signature. It returns the replacement bytes, the
// operand-stack depth the splice itself requires (so the caller can bump the
// method's declared MaxStack if needed), and the set of offsets within those
// bytes that are now branch targets or otherwise unreachable by fall-through
// from the preceding instruction — every one of these, plus the point where
// the prologue rejoins the original method body, needs its own StackMapTable
// frame (spec §8 "Stack-map validity"); splice.go turns these into
// syntheticFrame values once it knows where the prologue landed in the
// rewritten method.
func buildTargetPrologue(cp *classfile.ConstantPool, entry planner.PlanEntry, isStatic bool) ([]byte, uint16, []int, error) {
	params, ret := classfile.SplitDescriptor(entry.MemberDescriptor)
	localBase := 0
	if !isStatic {
		localBase = 1 // slot 0 holds the receiver (or the uninitialized `this` of a constructor)
	}
	b := &prologueBuilder{
		cp:            cp,
		params:        params,
		localBase:     localBase,
		hasReceiver:   !isStatic,
		selfClass:     entry.TargetClass,
		isConstructor: entry.IsConstructor,
	}
	if err := b.emitAction(entry.Rule.Action, ret); err != nil {
		return nil, 0, nil, err
	}
	// The prologue's own end is always a join point: every non-Checked
	// action terminates with athrow/return, which leaves the original
	// method body that immediately follows looking like dead code to the
	// verifier, and a Checked action's "predicate true" path reaches the
	// same point via an explicit goto rather than fall-through.
	joins := append(append([]int(nil), b.frameJoins...), len(b.code))
	return b.code, b.maxStack, joins, nil
}

// prologueLocalsFrame builds the locals list a synthetic frame at any join
// point inside (or at the end of) a target prologue needs: the receiver (if
// the method has one), then each declared parameter, in slot order — the
// full locals set is live at every join point here, since the prologue never
// declares additional locals of its own.
func prologueLocalsFrame(cp *classfile.ConstantPool, entry planner.PlanEntry, isStatic bool) (int, []byte) {
	params, _ := classfile.SplitDescriptor(entry.MemberDescriptor)
	count := 0
	var data []byte
	if !isStatic {
		data = classfile.AppendReceiverVerificationType(cp, data, entry.TargetClass, entry.IsConstructor)
		count++
	}
	for _, p := range params {
		data = classfile.AppendLocalVerificationType(cp, data, p)
		count++
	}
	return count, data
}

type prologueBuilder struct {
	cp            *classfile.ConstantPool
	code          []byte
	maxStack      uint16
	params        []string
	localBase     int
	hasReceiver   bool
	selfClass     string
	isConstructor bool
	// frameJoins collects offsets, within code, of branch targets the
	// prologue introduces internally (e.g. a Checked action's deny
	// branch) — not including the prologue's own end, which the caller
	// always adds separately.
	frameJoins []int
}

func (b *prologueBuilder) emit(bytes []byte) { b.code = append(b.code, bytes...) }
func (b *prologueBuilder) bump(n uint16) {
	if n > b.maxStack {
		b.maxStack = n
	}
}

// loadArgs pushes, in order, the receiver (if ref wants it and the method
// has one) followed by the method's own declared parameters — the argument
// convention Custom/Checked replacements share with a caller-side stub
// (spec §4.4 "Custom and checked argument plumbing"), here read straight
// from the enclosing method's own locals rather than a stub's parameters.
func (b *prologueBuilder) loadArgs(ref policy.MemberRef) {
	depth := 0
	if ref.TakesCallerClass {
		// A target-entry prologue fires identically regardless of who
		// calls in, so there is no single real "caller" to report; the
		// target class's own identity stands in for it (spec §4.4's
		// caller-class argument has no better referent at this splice
		// point than the class whose member is being entered).
		idx := b.cp.InternClass(b.selfClass)
		b.emit([]byte{byte(instruction.Ldc), byte(idx)})
		depth++
	}
	local := b.localBase
	if ref.TakesReceiver && b.hasReceiver {
		b.emit(instruction.LoadLocal("Ljava/lang/Object;", 0))
		depth++
	}
	for _, p := range b.params {
		b.emit(instruction.LoadLocal(p, local))
		local += classfile.SlotWidth(p)
		depth++
	}
	b.bump(uint16(depth))
}

func (b *prologueBuilder) emitAction(a policy.DenyAction, ret string) error {
	switch a.Kind {
	case policy.ActionStandard:
		return b.emitThrow(securityExceptionClass, nil)
	case policy.ActionException:
		return b.emitThrow(a.ExceptionClass, a.ExceptionMessage)
	case policy.ActionValue:
		b.emitLiteral(a.Value, ret)
		b.emit([]byte{byte(instruction.ReturnFor(ret))})
		return nil
	case policy.ActionEmpty:
		b.emitEmpty(ret)
		b.emit([]byte{byte(instruction.ReturnFor(ret))})
		return nil
	case policy.ActionCustom:
		return b.emitForward(a.Custom, ret)
	case policy.ActionChecked:
		return b.emitChecked(a, ret)
	}
	return nil
}

func (b *prologueBuilder) emitThrow(cls string, msg *string) error {
	classIdx := b.cp.InternClass(cls)
	b.emit([]byte{byte(instruction.New), byte(classIdx >> 8), byte(classIdx)})
	b.emit([]byte{byte(instruction.Dup)})
	b.bump(2)

	ctorDescriptor := "()V"
	if msg != nil {
		strIdx := b.cp.InternString(*msg)
		b.emitLdc(strIdx)
		b.bump(3)
		ctorDescriptor = "(Ljava/lang/String;)V"
	}
	ctorRef := b.cp.InternMethodref(cls, "<init>", ctorDescriptor)
	b.emit([]byte{byte(instruction.Invokespecial), byte(ctorRef >> 8), byte(ctorRef)})
	b.emit([]byte{byte(instruction.Athrow)})
	return nil
}

func (b *prologueBuilder) emitLdc(cpIndex uint16) {
	if cpIndex <= 0xFF {
		b.emit([]byte{byte(instruction.Ldc), byte(cpIndex)})
	} else {
		b.emit([]byte{byte(instruction.LdcW), byte(cpIndex >> 8), byte(cpIndex)})
	}
}

func (b *prologueBuilder) emitLdc2(cpIndex uint16) { b.emit([]byte{byte(instruction.Ldc2W), byte(cpIndex >> 8), byte(cpIndex)}) }

func (b *prologueBuilder) emitLiteral(lit policy.Literal, ret string) {
	switch lit.Kind {
	case "boolean":
		if lit.BoolVal {
			b.emit([]byte{byte(instruction.Iconst1)})
		} else {
			b.emit([]byte{byte(instruction.Iconst0)})
		}
		b.bump(1)
	case "int", "char":
		b.emitLdc(b.cp.InternInteger(int32(lit.IntVal)))
		b.bump(1)
	case "long":
		b.emitLdc2(b.cp.InternLong(lit.IntVal))
		b.bump(2)
	case "float":
		b.emitLdc(b.cp.InternFloat(float32(lit.FloatVal)))
		b.bump(1)
	case "double":
		b.emitLdc2(b.cp.InternDouble(lit.FloatVal))
		b.bump(2)
	case "string":
		b.emitLdc(b.cp.InternString(lit.StringVal))
		b.bump(1)
	}
}

// emitEmpty mirrors helper.builder's bodyBuilder.emitEmpty (spec §6's
// Empty-value mapping table); kept as a parallel copy rather than a shared
// export because the two builders' receiver types never meet at a common
// interface worth introducing for one switch statement.
func (b *prologueBuilder) emitEmpty(ret string) {
	if ret == "" || ret == "V" {
		return
	}
	switch ret[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		b.emit([]byte{byte(instruction.Iconst0)})
		b.bump(1)
		return
	case 'J':
		b.emit([]byte{byte(instruction.Lconst0)})
		b.bump(2)
		return
	case 'F':
		b.emit([]byte{byte(instruction.Fconst0)})
		b.bump(1)
		return
	case 'D':
		b.emit([]byte{byte(instruction.Dconst0)})
		b.bump(2)
		return
	case '[':
		b.emitEmptyArray(ret)
		return
	}

	className := ret[1 : len(ret)-1]
	switch className {
	case "java/lang/String":
		b.emitLdc(b.cp.InternString(""))
		b.bump(1)
	case "java/util/List", "java/util/Collection", "java/lang/Iterable":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyList", "()Ljava/util/List;")
	case "java/util/Set":
		b.emitStaticNoArgFactory("java/util/Collections", "emptySet", "()Ljava/util/Set;")
	case "java/util/Map":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyMap", "()Ljava/util/Map;")
	case "java/util/Iterator":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyIterator", "()Ljava/util/Iterator;")
	case "java/util/Enumeration":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyEnumeration", "()Ljava/util/Enumeration;")
	case "java/util/Optional":
		b.emitStaticNoArgFactory("java/util/Optional", "empty", "()Ljava/util/Optional;")
	case "java/util/OptionalInt":
		b.emitStaticNoArgFactory("java/util/OptionalInt", "empty", "()Ljava/util/OptionalInt;")
	case "java/util/OptionalLong":
		b.emitStaticNoArgFactory("java/util/OptionalLong", "empty", "()Ljava/util/OptionalLong;")
	case "java/util/OptionalDouble":
		b.emitStaticNoArgFactory("java/util/OptionalDouble", "empty", "()Ljava/util/OptionalDouble;")
	default:
		// Any other reference type: attempt a fresh instance via its
		// public no-argument constructor (spec §6 Empty-value table);
		// a type with no such constructor fails at class-verification
		// time the same way an explicit invokespecial of a missing
		// <init> would, which is an acceptable outcome for a reference
		// type the policy author never expected Empty to map here.
		classIdx := b.cp.InternClass(className)
		b.emit([]byte{byte(instruction.New), byte(classIdx >> 8), byte(classIdx)})
		b.emit([]byte{byte(instruction.Dup)})
		b.bump(2)
		ctorRef := b.cp.InternMethodref(className, "<init>", "()V")
		b.emit([]byte{byte(instruction.Invokespecial), byte(ctorRef >> 8), byte(ctorRef)})
		b.bump(2)
	}
}

func (b *prologueBuilder) emitEmptyArray(ret string) {
	elem := ret[1:]
	if len(elem) == 1 {
		if atype, ok := primitiveArrayType[elem]; ok {
			b.emit([]byte{byte(instruction.Iconst0)})
			b.emit([]byte{byte(instruction.Newarray), atype})
			b.bump(1)
			return
		}
	}
	classIdx := b.cp.InternClass(elem)
	b.emit([]byte{byte(instruction.Iconst0)})
	b.emit([]byte{byte(instruction.Anewarray), byte(classIdx >> 8), byte(classIdx)})
	b.bump(1)
}

var primitiveArrayType = map[string]byte{
	"Z": 4, "C": 5, "F": 6, "D": 7, "B": 8, "S": 9, "I": 10, "J": 11,
}

func (b *prologueBuilder) emitStaticNoArgFactory(cls, name, descriptor string) {
	ref := b.cp.InternMethodref(cls, name, descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(ref >> 8), byte(ref)})
	b.bump(1)
}

// emitForward loads the method's own receiver/parameters and dispatches to
// ref, returning its result directly (spec §3 "Custom").
func (b *prologueBuilder) emitForward(ref policy.MemberRef, ret string) error {
	b.loadArgs(ref)
	methodRef := b.cp.InternMethodref(ref.ClassName, ref.MethodName, ref.Descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(methodRef >> 8), byte(methodRef)})
	b.emit([]byte{byte(instruction.ReturnFor(ret))})
	return nil
}

// emitChecked implements Checked(predicate, inner) at a target entry:
// evaluate the predicate; if true, fall straight through into the
// original method body that immediately follows this spliced prologue (no
// re-issued call needed — unlike a caller-side stub, the prologue sits
// directly in front of the real implementation); otherwise run inner.
func (b *prologueBuilder) emitChecked(a policy.DenyAction, ret string) error {
	b.loadArgs(a.Predicate)
	predRef := b.cp.InternMethodref(a.Predicate.ClassName, a.Predicate.MethodName, a.Predicate.Descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(predRef >> 8), byte(predRef)})
	b.bump(1)

	ifeqPos := len(b.code)
	b.emit([]byte{byte(instruction.Ifeq), 0, 0}) // patched below: branch taken when the predicate is false

	gotoPos := len(b.code)
	b.emit([]byte{byte(instruction.Goto), 0, 0}) // patched below: skips the deny block when the predicate is true

	denyPos := len(b.code)
	delta := denyPos - ifeqPos
	b.code[ifeqPos+1] = byte(delta >> 8)
	b.code[ifeqPos+2] = byte(delta)
	b.frameJoins = append(b.frameJoins, denyPos)

	inner := policy.Standard
	if a.Inner != nil {
		inner = *a.Inner
	}
	if err := b.emitAction(inner, ret); err != nil {
		return err
	}

	afterDenyPos := len(b.code)
	gotoDelta := afterDenyPos - gotoPos
	b.code[gotoPos+1] = byte(gotoDelta >> 8)
	b.code[gotoPos+2] = byte(gotoDelta)
	return nil
}
