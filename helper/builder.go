package helper

import (
	"sort"

	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
	"github.com/cojen/boxtin/planner"
	"github.com/cojen/boxtin/policy"
)

// securityExceptionClass is the platform's security-exception type, thrown
// by the Standard deny action (spec §3 "DenyAction", §7.3).
const securityExceptionClass = "java/lang/SecurityException"

// Class is one CustomActions class under construction for a single caller
// (spec §4.6). Stubs are added via Stub and the final bytes produced by
// Emit.
type Class struct {
	InternalName string
	// callerClass is the internal name of the class this CustomActions
	// class's stubs were generated on behalf of — the real referent for
	// a Custom/Checked MemberRef's caller-class sentinel (spec §4.4,
	// "it is passed the caller's class reference"). Registry.ClassFor
	// keeps one Class per caller, so this is fixed for the whole Class.
	callerClass string
	catalog     policy.Catalog
	cp          *classfile.ConstantPool
	thisClass   uint16
	superClass  uint16
	methods     []classfile.Method
	byHash      map[string]stubInfo
}

type stubInfo struct {
	name       string
	descriptor string
}

// NewClass starts a CustomActions class named internalName (already made
// unique by the Registry), generating stubs on behalf of callerClass.
func NewClass(internalName, callerClass string, catalog policy.Catalog) *Class {
	cp := classfile.NewConstantPool()
	return &Class{
		InternalName: internalName,
		callerClass:  callerClass,
		catalog:      catalog,
		cp:           cp,
		thisClass:    cp.InternClass(internalName),
		superClass:   cp.InternClass("java/lang/Object"),
		byHash:       make(map[string]stubInfo),
	}
}

// ConstantPool exposes the class's pool so the rewriter can intern a
// Methodref against a stub once it has been added.
func (c *Class) ConstantPool() *classfile.ConstantPool { return c.cp }

// Stub returns the (name, descriptor) of the static method implementing
// key, synthesizing it on first request and reusing it on every subsequent
// request with the same shape (spec §4.5 "two call sites needing the
// identical stub share one").
func (c *Class) Stub(key planner.StubKey) (name, descriptor string, err error) {
	hash := stubHash(key)
	if info, ok := c.byHash[hash]; ok {
		return info.name, info.descriptor, nil
	}

	name = stubName(key)
	params, ret := stubSignature(key)
	descriptor = classfile.JoinDescriptor(params, ret)

	code, maxStack, maxLocals, frameJoins, err := c.buildBody(key, params, ret)
	if err != nil {
		return "", "", err
	}

	nameIdx := c.cp.InternUtf8(name)
	descIdx := c.cp.InternUtf8(descriptor)
	c.methods = append(c.methods, classfile.Method{
		AccessFlags: 0x0009, // ACC_PUBLIC | ACC_STATIC
		NameIndex:   nameIdx,
		DescIndex:   descIdx,
		Code: &classfile.CodeAttribute{
			MaxStack:  maxStack,
			MaxLocals: maxLocals,
			Code:      code,
			StackMap:  c.buildStackMap(params, frameJoins),
		},
	})
	c.byHash[hash] = stubInfo{name: name, descriptor: descriptor}
	return name, descriptor, nil
}

// buildStackMap synthesizes the StackMapTable a stub's body needs whenever
// it contains a branch (a Checked action's ifeq): the stub's static
// parameters are the only locals, and every join offset is the ifeq's
// deny-branch target, so each is a full_frame with that fixed locals list
// and an empty stack (spec §8 "Stack-map validity" — the platform verifier
// requires a frame at any point not reached by fall-through, and the
// generated class's MajorVersion is high enough that this is mandatory, not
// advisory).
func (c *Class) buildStackMap(params []string, frameJoins []int) []classfile.StackMapFrame {
	if len(frameJoins) == 0 {
		return nil
	}
	sort.Ints(frameJoins)

	localsCount := 0
	var localsData []byte
	for _, p := range params {
		localsData = classfile.AppendLocalVerificationType(c.cp, localsData, p)
		localsCount++
	}

	frames := make([]classfile.StackMapFrame, len(frameJoins))
	prevAbs := -1
	for i, off := range frameJoins {
		delta := off - prevAbs - 1
		frames[i] = classfile.BuildFullFrame(delta, localsCount, localsData)
		prevAbs = off
	}
	return frames
}

// stubSignature computes the stub's own parameter/return descriptors from
// the denied member's shape (spec §4.6 "signature matches the denied member
// plus receiver and/or caller-class as prefix parameters").
func stubSignature(key planner.StubKey) (params []string, ret string) {
	memberParams, memberRet := classfile.SplitDescriptor(key.MemberDescriptor)
	if key.IsConstructor {
		ret = "L" + key.TargetClass + ";"
	} else {
		ret = memberRet
	}
	if key.TakesReceiver {
		params = append(params, "L"+key.TargetClass+";")
	}
	params = append(params, memberParams...)
	return params, ret
}

// Emit serializes the accumulated stubs into a class file.
func (c *Class) Emit() ([]byte, error) {
	pc := &classfile.ParsedClass{
		MinorVersion: 0,
		MajorVersion: classfile.MaxSupportedMajor,
		AccessFlags:  0x0021, // ACC_PUBLIC | ACC_SUPER
		ConstantPool: c.cp,
		ThisClass:    c.thisClass,
		SuperClass:   c.superClass,
		Methods:      c.methods,
	}
	return classfile.Redefine(pc)
}

// buildBody synthesizes the stub's bytecode for key's action, with params
// laid out starting at local-variable index 0 (static method, no implicit
// this). The returned offsets are branch targets the body introduced
// internally (a Checked action's deny branch, possibly nested) that need
// their own StackMapTable frame.
func (c *Class) buildBody(key planner.StubKey, params []string, ret string) ([]byte, uint16, uint16, []int, error) {
	b := newBodyBuilder(c.cp, c.callerClass, params)
	if err := b.emitAction(key, key.Action, ret); err != nil {
		return nil, 0, 0, nil, err
	}
	return b.code, b.maxStack, b.maxLocals, b.frameJoins, nil
}

type bodyBuilder struct {
	cp          *classfile.ConstantPool
	code        []byte
	maxStack    uint16
	maxLocals   uint16
	params      []string
	callerClass string
	// frameJoins collects offsets, within code, of branch targets the
	// body introduces (a Checked action's deny branch); buildBody
	// returns these so Stub can attach a StackMapTable.
	frameJoins []int
}

func newBodyBuilder(cp *classfile.ConstantPool, callerClass string, params []string) *bodyBuilder {
	return &bodyBuilder{cp: cp, callerClass: callerClass, params: params, maxLocals: uint16(classfile.ParamSlots(params))}
}

func (b *bodyBuilder) emit(bytes []byte)   { b.code = append(b.code, bytes...) }
func (b *bodyBuilder) bumpStack(n uint16)  { if n > b.maxStack { b.maxStack = n } }

// loadParam emits the load for the i'th stub parameter (0-based), returning
// its slot width.
func (b *bodyBuilder) loadParam(i int) int {
	localIndex := classfile.ParamSlots(b.params[:i])
	b.emit(instruction.LoadLocal(b.params[i], localIndex))
	return classfile.SlotWidth(b.params[i])
}

func (b *bodyBuilder) loadAllParams() {
	depth := 0
	for i := range b.params {
		depth += b.loadParam(i)
		b.bumpStack(uint16(depth))
	}
}

// emitAction appends the bytecode implementing a (possibly nested) DenyAction
// and leaves exactly one value of type ret (or no value, if ret is void) on
// the stack before returning from the method.
func (b *bodyBuilder) emitAction(key planner.StubKey, a policy.DenyAction, ret string) error {
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
		return b.emitChecked(key, a, ret)
	}
	return nil
}

// emitThrow appends `new cls; dup; [ldc msg]; invokespecial cls.<init>; athrow`.
func (b *bodyBuilder) emitThrow(cls string, msg *string) error {
	classIdx := b.cp.InternClass(cls)
	b.emit([]byte{byte(instruction.New), byte(classIdx >> 8), byte(classIdx)})
	b.emit([]byte{byte(instruction.Dup)})
	b.bumpStack(2)

	ctorDescriptor := "()V"
	if msg != nil {
		strIdx := b.cp.InternString(*msg)
		b.emitLdc(strIdx)
		b.bumpStack(3)
		ctorDescriptor = "(Ljava/lang/String;)V"
	}
	ctorRef := b.cp.InternMethodref(cls, "<init>", ctorDescriptor)
	b.emit([]byte{byte(instruction.Invokespecial), byte(ctorRef >> 8), byte(ctorRef)})
	b.emit([]byte{byte(instruction.Athrow)})
	return nil
}

func (b *bodyBuilder) emitLdc(cpIndex uint16) {
	if cpIndex <= 0xFF {
		b.emit([]byte{byte(instruction.Ldc), byte(cpIndex)})
	} else {
		b.emit([]byte{byte(instruction.LdcW), byte(cpIndex >> 8), byte(cpIndex)})
	}
}

func (b *bodyBuilder) emitLdc2(cpIndex uint16) {
	b.emit([]byte{byte(instruction.Ldc2W), byte(cpIndex >> 8), byte(cpIndex)})
}

// emitLiteral pushes a policy.Literal value matching ret's category.
func (b *bodyBuilder) emitLiteral(lit policy.Literal, ret string) {
	switch lit.Kind {
	case "boolean":
		if lit.BoolVal {
			b.emit([]byte{byte(instruction.Iconst1)})
		} else {
			b.emit([]byte{byte(instruction.Iconst0)})
		}
		b.bumpStack(1)
	case "int", "char":
		idx := b.cp.InternInteger(int32(lit.IntVal))
		b.emitLdc(idx)
		b.bumpStack(1)
	case "long":
		idx := b.cp.InternLong(lit.IntVal)
		b.emitLdc2(idx)
		b.bumpStack(2)
	case "float":
		idx := b.cp.InternFloat(float32(lit.FloatVal))
		b.emitLdc(idx)
		b.bumpStack(1)
	case "double":
		idx := b.cp.InternDouble(lit.FloatVal)
		b.emitLdc2(idx)
		b.bumpStack(2)
	case "string":
		idx := b.cp.InternString(lit.StringVal)
		b.emitLdc(idx)
		b.bumpStack(1)
	}
}

// emitEmpty pushes the type-appropriate empty value for ret, per spec §6's
// Empty-value mapping table.
func (b *bodyBuilder) emitEmpty(ret string) {
	if ret == "" || ret == "V" {
		return
	}
	switch ret[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		b.emit([]byte{byte(instruction.Iconst0)})
		b.bumpStack(1)
		return
	case 'J':
		b.emit([]byte{byte(instruction.Lconst0)})
		b.bumpStack(2)
		return
	case 'F':
		b.emit([]byte{byte(instruction.Fconst0)})
		b.bumpStack(1)
		return
	case 'D':
		b.emit([]byte{byte(instruction.Dconst0)})
		b.bumpStack(2)
		return
	case '[':
		b.emitEmptyArray(ret)
		return
	}

	className := ret[1 : len(ret)-1]
	switch className {
	case "java/lang/String":
		idx := b.cp.InternString("")
		b.emitLdc(idx)
		b.bumpStack(1)
		return
	case "java/util/List", "java/util/Collection", "java/lang/Iterable":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyList", "()Ljava/util/List;")
		return
	case "java/util/Set":
		b.emitStaticNoArgFactory("java/util/Collections", "emptySet", "()Ljava/util/Set;")
		return
	case "java/util/Map":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyMap", "()Ljava/util/Map;")
		return
	case "java/util/Iterator":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyIterator", "()Ljava/util/Iterator;")
		return
	case "java/util/Enumeration":
		b.emitStaticNoArgFactory("java/util/Collections", "emptyEnumeration", "()Ljava/util/Enumeration;")
		return
	case "java/util/Optional":
		b.emitStaticNoArgFactory("java/util/Optional", "empty", "()Ljava/util/Optional;")
		return
	case "java/util/OptionalInt":
		b.emitStaticNoArgFactory("java/util/OptionalInt", "empty", "()Ljava/util/OptionalInt;")
		return
	case "java/util/OptionalLong":
		b.emitStaticNoArgFactory("java/util/OptionalLong", "empty", "()Ljava/util/OptionalLong;")
		return
	case "java/util/OptionalDouble":
		b.emitStaticNoArgFactory("java/util/OptionalDouble", "empty", "()Ljava/util/OptionalDouble;")
		return
	}

	// Any other reference type: attempt a fresh instance via its public
	// no-argument constructor (spec §6 Empty-value table). A type with no
	// such constructor fails at class-verification time the same way an
	// explicit invokespecial of a missing <init> would.
	classIdx := b.cp.InternClass(className)
	b.emit([]byte{byte(instruction.New), byte(classIdx >> 8), byte(classIdx)})
	b.emit([]byte{byte(instruction.Dup)})
	b.bumpStack(2)
	ctorRef := b.cp.InternMethodref(className, "<init>", "()V")
	b.emit([]byte{byte(instruction.Invokespecial), byte(ctorRef >> 8), byte(ctorRef)})
	b.bumpStack(2)
}

func (b *bodyBuilder) emitEmptyArray(ret string) {
	elem := ret[1:]
	if len(elem) == 1 {
		atype, ok := primitiveArrayType[elem]
		if ok {
			b.emit([]byte{byte(instruction.Iconst0)})
			b.emit([]byte{byte(instruction.Newarray), atype})
			b.bumpStack(1)
			return
		}
	}
	classIdx := b.cp.InternClass(elem)
	b.emit([]byte{byte(instruction.Iconst0)})
	b.emit([]byte{byte(instruction.Anewarray), byte(classIdx >> 8), byte(classIdx)})
	b.bumpStack(1)
}

var primitiveArrayType = map[string]byte{
	"Z": 4, "C": 5, "F": 6, "D": 7, "B": 8, "S": 9, "I": 10, "J": 11,
}

func (b *bodyBuilder) emitStaticNoArgFactory(cls, name, descriptor string) {
	ref := b.cp.InternMethodref(cls, name, descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(ref >> 8), byte(ref)})
	b.bumpStack(1)
}

// emitForward loads every stub parameter and dispatches to ref, returning
// its result directly (spec §3 "Custom").
func (b *bodyBuilder) emitForward(ref policy.MemberRef, ret string) error {
	b.emitRefArgs(ref)
	methodRef := b.cp.InternMethodref(ref.ClassName, ref.MethodName, ref.Descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(methodRef >> 8), byte(methodRef)})
	b.emit([]byte{byte(instruction.ReturnFor(ret))})
	return nil
}

// emitRefArgs loads the stub's own parameters in order, optionally prefixed
// by the caller-class sentinel that Custom/Checked MemberRefs may declare
// (spec §4.4). TakesCallerClass is realized as a `ldc <callerClass>.class`
// push naming the class this stub was generated on behalf of.
func (b *bodyBuilder) emitRefArgs(ref policy.MemberRef) {
	depth := 0
	if ref.TakesCallerClass {
		clsIdx := b.cp.InternClass(b.callerClass)
		b.emitLdc(clsIdx)
		depth++
		b.bumpStack(uint16(depth))
	}
	b.loadAllParams()
}

// emitChecked implements Checked(predicate, inner): invoke the predicate; if
// it returns true, re-issue the original call and return its result;
// otherwise fall through to inner's action.
func (b *bodyBuilder) emitChecked(key planner.StubKey, a policy.DenyAction, ret string) error {
	if key.IsConstructor {
		// Constructors have no "call the original and return its result"
		// path to gate (see emitOriginalCall); a Checked constructor
		// always takes the inner action. See DESIGN.md.
		if a.Inner == nil {
			return b.emitAction(key, policy.Standard, ret)
		}
		return b.emitAction(key, *a.Inner, ret)
	}

	b.emitRefArgs(a.Predicate)
	predRef := b.cp.InternMethodref(a.Predicate.ClassName, a.Predicate.MethodName, a.Predicate.Descriptor)
	b.emit([]byte{byte(instruction.Invokestatic), byte(predRef >> 8), byte(predRef)})
	b.bumpStack(1)

	// ifeq <denyBranch>: placeholder offset patched below once the
	// allowed-branch length is known.
	ifeqPos := len(b.code)
	b.emit([]byte{byte(instruction.Ifeq), 0, 0})

	if err := b.emitOriginalCall(key, ret); err != nil {
		return err
	}
	b.emit([]byte{byte(instruction.ReturnFor(ret))})

	denyBranchOffset := len(b.code)
	delta := denyBranchOffset - ifeqPos
	b.code[ifeqPos+1] = byte(delta >> 8)
	b.code[ifeqPos+2] = byte(delta)
	b.frameJoins = append(b.frameJoins, denyBranchOffset)

	if a.Inner == nil {
		return b.emitAction(key, policy.Standard, ret)
	}
	return b.emitAction(key, *a.Inner, ret)
}

// emitOriginalCall re-issues the call the stub replaced, using the stub's
// own parameters as the arguments (and, if TakesReceiver, its first
// parameter as the receiver).
func (b *bodyBuilder) emitOriginalCall(key planner.StubKey, ret string) error {
	memberParams, _ := classfile.SplitDescriptor(key.MemberDescriptor)
	depth := 0
	paramIdx := 0
	if key.TakesReceiver {
		depth += b.loadParam(0)
		paramIdx = 1
	}
	for range memberParams {
		depth += b.loadParam(paramIdx)
		paramIdx++
	}
	b.bumpStack(uint16(depth))

	methodRef := b.cp.InternMethodref(key.TargetClass, key.MemberName, key.MemberDescriptor)
	switch key.OriginalOpcode {
	case instruction.Invokestatic:
		b.emit([]byte{byte(instruction.Invokestatic), byte(methodRef >> 8), byte(methodRef)})
	case instruction.Invokespecial:
		b.emit([]byte{byte(instruction.Invokespecial), byte(methodRef >> 8), byte(methodRef)})
	case instruction.Invokeinterface:
		argSlots := classfile.ParamSlots(memberParams) + 1
		bytes, _ := instruction.EncodeInvoke(instruction.Invokeinterface, methodRef, uint8(argSlots))
		b.emit(bytes)
	default:
		b.emit([]byte{byte(instruction.Invokevirtual), byte(methodRef >> 8), byte(methodRef)})
	}
	return nil
}
