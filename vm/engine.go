package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"
)

// DefaultMaxDepth bounds the synchronous call stack.
const DefaultMaxDepth = 1024

// Outcome is the result of running a method: either a returned value
// (HasValue false for void methods) or a thrown reference that unwound
// the whole call stack.
type Outcome struct {
	Value    Value
	HasValue bool
	Thrown   *Value
}

// Engine executes published method bodies. One engine serves one
// registry; fields are configured between NewEngine and the first call
// and must not change while calls are in flight.
type Engine struct {
	reg *Registry

	// Console receives builtin console output. Defaults to os.Stdout.
	Console io.Writer

	// Input feeds System.Console.ReadLine. Defaults to os.Stdin.
	Input io.Reader

	// MaxDepth bounds the synchronous call stack; exceeding it raises a
	// stack-overflow fault.
	MaxDepth int

	// DivideAsThrow makes integer division by zero throw a
	// System.DivideByZeroException instead of raising a fault.
	DivideAsThrow bool

	// TraceWriter, when set, receives one line per executed instruction.
	TraceWriter io.Writer

	log commonlog.Logger
}

// NewEngine creates an engine over a published registry.
func NewEngine(reg *Registry) (*Engine, error) {
	if !reg.Published() {
		return nil, fmt.Errorf("engine: registry is not published")
	}
	return &Engine{
		reg:      reg,
		Console:  os.Stdout,
		Input:    os.Stdin,
		MaxDepth: DefaultMaxDepth,
		log:      commonlog.GetLogger("oir.vm"),
	}, nil
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.reg }

// Call resolves sig statically and runs it with args. The returned
// Outcome carries either the return value or an uncaught thrown
// reference; errors are dispatch failures and faults.
func (e *Engine) Call(ctx context.Context, sig Signature, args ...Value) (Outcome, error) {
	m, err := e.ResolveStatic(sig)
	if err != nil {
		return Outcome{}, err
	}
	return e.run(ctx, m, args, 0)
}

// CallVirtual resolves sig against the receiver's dynamic class and
// runs the selected override. The receiver is passed as the implicit
// first argument.
func (e *Engine) CallVirtual(ctx context.Context, sig Signature, receiver Value, args ...Value) (Outcome, error) {
	m, err := e.ResolveVirtual(sig, receiver)
	if err != nil {
		return Outcome{}, err
	}
	full := make([]Value, 0, len(args)+1)
	full = append(full, receiver)
	full = append(full, args...)
	return e.run(ctx, m, full, 0)
}

// CallMethod runs an already-resolved descriptor.
func (e *Engine) CallMethod(ctx context.Context, m *MethodDescriptor, args ...Value) (Outcome, error) {
	return e.run(ctx, m, args, 0)
}

// run enters one frame: it validates the arguments against the
// descriptor, then executes the lowered body (or the host function).
// Cancellation and the depth limit are checked here, at call
// boundaries, not per instruction.
func (e *Engine) run(ctx context.Context, m *MethodDescriptor, args []Value, depth int) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if depth >= e.MaxDepth {
		return Outcome{}, &Fault{
			Kind:   FaultStackOverflow,
			Method: m.sig.String(),
			Msg:    fmt.Sprintf("depth limit %d", e.MaxDepth),
		}
	}

	if len(args) != len(m.Params) {
		return Outcome{}, &Fault{
			Kind:   FaultArity,
			Method: m.sig.String(),
			Msg:    fmt.Sprintf("have %d arguments, want %d", len(args), len(m.Params)),
		}
	}
	for i, p := range m.Params {
		if args[i].Kind() != p.Type.Kind {
			return Outcome{}, &Fault{
				Kind:   FaultType,
				Method: m.sig.String(),
				Msg:    fmt.Sprintf("argument %q is %s, want %s", p.Name, args[i].Kind(), p.Type.Kind),
			}
		}
	}

	e.log.Debugf("call %s (depth %d)", m.sig, depth)

	if m.Host != nil {
		v, err := m.Host(e, args)
		if err != nil {
			return Outcome{}, err
		}
		if m.Return.IsVoid() {
			return Outcome{}, nil
		}
		return Outcome{Value: v, HasValue: true}, nil
	}

	f := newFrame(m, args)
	return e.exec(ctx, f, depth)
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Frame is one activation record: the method, its evaluation stack, the
// named argument and local slots, and the program counter.
type Frame struct {
	method *MethodDescriptor
	stack  []Value
	args   map[string]Value
	locals map[string]Value
	pc     int
}

func newFrame(m *MethodDescriptor, args []Value) *Frame {
	f := &Frame{
		method: m,
		args:   make(map[string]Value, len(args)),
		locals: make(map[string]Value, len(m.Body.Locals)),
	}
	for i, p := range m.Params {
		f.args[p.Name] = args[i]
	}
	for _, p := range m.Body.Locals {
		f.locals[p.Name] = ZeroValue(p.Type.Kind)
	}
	return f
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() (Value, error) {
	if len(f.stack) == 0 {
		return Value{}, f.fault(FaultFrameInvariant, "stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *Frame) fault(kind FaultKind, format string, a ...interface{}) *Fault {
	return &Fault{
		Kind:   kind,
		Method: f.method.sig.String(),
		PC:     f.pc,
		Msg:    fmt.Sprintf(format, a...),
	}
}

// ---------------------------------------------------------------------------
// Instruction dispatch
// ---------------------------------------------------------------------------

// exec runs the frame's lowered body to completion. It returns when a
// ret executes, a throw starts unwinding, or a fault or dispatch error
// aborts the run.
func (e *Engine) exec(ctx context.Context, f *Frame, depth int) (Outcome, error) {
	instrs := f.method.Body.Instrs
	for f.pc >= 0 && f.pc < len(instrs) {
		in := instrs[f.pc]
		if e.TraceWriter != nil {
			fmt.Fprintf(e.TraceWriter, "%*s%04d  %s\n", depth*2, "", f.pc, in)
		}
		next := f.pc + 1

		switch in.Op {
		case OpNop:
			// nothing

		case OpPop:
			if _, err := f.pop(); err != nil {
				return Outcome{}, err
			}

		case OpDup:
			v, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			f.push(v)
			f.push(v)

		case OpLdcI4:
			f.push(FromInt32(int32(in.Int)))
		case OpLdcI8:
			f.push(FromInt64(in.Int))
		case OpLdcR4:
			f.push(FromFloat32(float32(in.Float)))
		case OpLdcR8:
			f.push(FromFloat64(in.Float))
		case OpLdcB0:
			f.push(FromBool(false))
		case OpLdcB1:
			f.push(FromBool(true))
		case OpLdcC:
			f.push(FromChar(in.Ch))
		case OpLdstr:
			f.push(FromString(in.Str))
		case OpLdnull:
			f.push(Null())

		case OpLdloc:
			v, ok := f.locals[in.Sym]
			if !ok {
				return Outcome{}, f.fault(FaultFrameInvariant, "no local %q", in.Sym)
			}
			f.push(v)

		case OpLdarg:
			v, ok := f.args[in.Sym]
			if !ok {
				return Outcome{}, f.fault(FaultFrameInvariant, "no argument %q", in.Sym)
			}
			f.push(v)

		case OpStloc:
			if err := e.store(f, f.locals, in.Sym, "local"); err != nil {
				return Outcome{}, err
			}

		case OpStarg:
			if err := e.store(f, f.args, in.Sym, "argument"); err != nil {
				return Outcome{}, err
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpRem:
			out, thrown, err := e.arith(f, in.Op)
			if err != nil {
				return Outcome{}, err
			}
			if thrown != nil {
				return Outcome{Thrown: thrown}, nil
			}
			f.push(out)

		case OpNeg:
			v, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			out, err := negate(f, v)
			if err != nil {
				return Outcome{}, err
			}
			f.push(out)

		case OpConv:
			v, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			target := MakeTypeRef(in.Type)
			out, err := convert(f, v, target.Kind)
			if err != nil {
				return Outcome{}, err
			}
			f.push(out)

		case OpCeq, OpCne, OpCgt, OpCge, OpClt, OpCle:
			b, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			a, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			res, err := compare(f, in.Op, a, b)
			if err != nil {
				return Outcome{}, err
			}
			f.push(FromBool(res))

		case OpCall, OpCallvirt:
			out, done, err := e.execCall(ctx, f, in, depth)
			if err != nil {
				return Outcome{}, err
			}
			if done {
				// Callee threw; keep unwinding.
				return out, nil
			}

		case OpNewobj:
			c := e.reg.Class(in.Type)
			if c == nil {
				return Outcome{}, f.fault(FaultType, "newobj: unknown type %q", in.Type)
			}
			f.push(FromObject(&Object{Class: c, Fields: make(map[string]Value)}))

		case OpRet:
			return e.execRet(f)

		case OpThrow:
			v, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			if v.Kind() != KindObject {
				return Outcome{}, f.fault(FaultType, "throw: operand is %s, want a reference", v.Kind())
			}
			if v.IsNull() {
				return Outcome{}, &NullReferenceError{Method: f.method.sig.String(), PC: f.pc}
			}
			return Outcome{Thrown: &v}, nil

		case OpBr:
			next = in.Target

		case OpBrtrue, OpBrfalse:
			v, err := f.pop()
			if err != nil {
				return Outcome{}, err
			}
			if v.Kind() != KindBool {
				return Outcome{}, f.fault(FaultType, "%s: condition is %s, want bool", in.Op, v.Kind())
			}
			if v.Bool() == (in.Op == OpBrtrue) {
				next = in.Target
			}

		default:
			return Outcome{}, f.fault(FaultFrameInvariant, "unknown opcode %#02x", uint8(in.Op))
		}

		f.pc = next
	}

	return Outcome{}, f.fault(FaultFrameInvariant, "execution ran past the end of the body")
}

// store pops a value into a named slot, enforcing kind stability: a slot
// keeps its declared kind for the frame's whole lifetime.
func (e *Engine) store(f *Frame, slots map[string]Value, name, what string) error {
	cur, ok := slots[name]
	if !ok {
		return f.fault(FaultFrameInvariant, "no %s %q", what, name)
	}
	v, err := f.pop()
	if err != nil {
		return err
	}
	if v.Kind() != cur.Kind() {
		return f.fault(FaultType, "cannot store %s into %s %s %q", v.Kind(), cur.Kind(), what, name)
	}
	slots[name] = v
	return nil
}

// execRet checks the frame contract at return: an empty stack for void
// methods, exactly the return value otherwise.
func (e *Engine) execRet(f *Frame) (Outcome, error) {
	ret := f.method.Return
	if ret.IsVoid() {
		if len(f.stack) != 0 {
			return Outcome{}, f.fault(FaultFrameInvariant, "stack depth %d at return from void method", len(f.stack))
		}
		return Outcome{}, nil
	}
	if len(f.stack) != 1 {
		return Outcome{}, f.fault(FaultFrameInvariant, "stack depth %d at return, want 1", len(f.stack))
	}
	v, _ := f.pop()
	if v.Kind() != ret.Kind {
		return Outcome{}, f.fault(FaultType, "returning %s from %s method", v.Kind(), ret.Kind)
	}
	return Outcome{Value: v, HasValue: true}, nil
}

// execCall pops the callee's arguments (receiver first for callvirt),
// resolves the target and runs it synchronously. done is true when the
// callee threw and out carries the unwinding reference; otherwise the
// return value (if any) has been pushed.
func (e *Engine) execCall(ctx context.Context, f *Frame, in Instruction, depth int) (out Outcome, done bool, err error) {
	if in.Sig == nil {
		return Outcome{}, false, f.fault(FaultFrameInvariant, "%s without a signature operand", in.Op)
	}
	sig := *in.Sig

	// Arguments were pushed left to right, so they pop off in reverse.
	args := make([]Value, len(sig.Params))
	for i := len(args) - 1; i >= 0; i-- {
		v, perr := f.pop()
		if perr != nil {
			return Outcome{}, false, perr
		}
		args[i] = v
	}

	var m *MethodDescriptor
	if in.Op == OpCallvirt {
		recv, perr := f.pop()
		if perr != nil {
			return Outcome{}, false, perr
		}
		if recv.Kind() != KindObject {
			return Outcome{}, false, f.fault(FaultType, "callvirt receiver is %s, want a reference", recv.Kind())
		}
		if recv.IsNull() {
			return Outcome{}, false, &NullReferenceError{Method: f.method.sig.String(), PC: f.pc, Sig: sig}
		}
		m, err = e.ResolveVirtual(sig, recv)
		if err != nil {
			return Outcome{}, false, err
		}
		args = append([]Value{recv}, args...)
	} else {
		m, err = e.ResolveStatic(sig)
		if err != nil {
			return Outcome{}, false, err
		}
	}

	res, err := e.run(ctx, m, args, depth+1)
	if err != nil {
		return Outcome{}, false, err
	}
	if res.Thrown != nil {
		return res, true, nil
	}
	if res.HasValue {
		f.push(res.Value)
	}
	return Outcome{}, false, nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// arith pops two operands and applies op. Operands must share a numeric
// kind; the result keeps that kind, with integer results truncated to
// the kind's width. Integer division by zero raises a fault, or throws
// System.DivideByZeroException under the DivideAsThrow policy.
func (e *Engine) arith(f *Frame, op Opcode) (Value, *Value, error) {
	b, err := f.pop()
	if err != nil {
		return Value{}, nil, err
	}
	a, err := f.pop()
	if err != nil {
		return Value{}, nil, err
	}
	if a.Kind() != b.Kind() {
		return Value{}, nil, f.fault(FaultType, "%s: operand kinds differ (%s vs %s)", op, a.Kind(), b.Kind())
	}
	k := a.Kind()

	switch {
	case k.IsFloat():
		// IEEE-754 semantics throughout; division by zero yields an
		// infinity or NaN, never a fault.
		x, y := a.Float64(), b.Float64()
		var r float64
		switch op {
		case OpAdd:
			r = x + y
		case OpSub:
			r = x - y
		case OpMul:
			r = x * y
		case OpDiv:
			r = x / y
		case OpRem:
			r = math.Mod(x, y)
		}
		if k == KindFloat32 {
			return FromFloat32(float32(r)), nil, nil
		}
		return FromFloat64(r), nil, nil

	case k.IsInteger():
		if (op == OpDiv || op == OpRem) && b.Uint64() == 0 {
			if e.DivideAsThrow {
				thrown := FromObject(&Object{
					Class:  e.reg.Class("System.DivideByZeroException"),
					Fields: map[string]Value{"Message": FromString("integer divide by zero")},
				})
				return Value{}, &thrown, nil
			}
			return Value{}, nil, f.fault(FaultDivideByZero, "%s", op)
		}
		if k.IsUnsigned() {
			x, y := a.Uint64(), b.Uint64()
			var r uint64
			switch op {
			case OpAdd:
				r = x + y
			case OpSub:
				r = x - y
			case OpMul:
				r = x * y
			case OpDiv:
				r = x / y
			case OpRem:
				r = x % y
			}
			return FromIntKind(k, int64(r)), nil, nil
		}
		x, y := signExtend(k, a.Uint64()), signExtend(k, b.Uint64())
		var r int64
		switch op {
		case OpAdd:
			r = x + y
		case OpSub:
			r = x - y
		case OpMul:
			r = x * y
		case OpDiv:
			r = x / y
		case OpRem:
			r = x % y
		}
		return FromIntKind(k, r), nil, nil

	default:
		return Value{}, nil, f.fault(FaultType, "%s: operands must be numeric, have %s", op, k)
	}
}

func negate(f *Frame, v Value) (Value, error) {
	k := v.Kind()
	switch {
	case k.IsFloat():
		if k == KindFloat32 {
			return FromFloat32(-float32(v.Float64())), nil
		}
		return FromFloat64(-v.Float64()), nil
	case k.IsInteger():
		return FromIntKind(k, -signExtend(k, v.Uint64())), nil
	default:
		return Value{}, f.fault(FaultType, "neg: operand must be numeric, have %s", k)
	}
}

// signExtend reinterprets the low bits of raw as a signed integer of
// kind k's width.
func signExtend(k Kind, raw uint64) int64 {
	switch k {
	case KindInt8:
		return int64(int8(raw))
	case KindInt16:
		return int64(int16(raw))
	case KindInt32:
		return int64(int32(raw))
	default:
		return int64(raw)
	}
}

// convert changes a numeric or char value to another numeric or char
// kind: integer widths truncate, float to integer truncates toward
// zero, chars convert through their code point.
func convert(f *Frame, v Value, target Kind) (Value, error) {
	src := v.Kind()
	if !target.IsNumeric() && target != KindChar {
		return Value{}, f.fault(FaultType, "conv: target %s is not numeric", target)
	}
	if !src.IsNumeric() && src != KindChar {
		return Value{}, f.fault(FaultType, "conv: operand is %s, want numeric or char", src)
	}

	var asInt int64
	var asFloat float64
	switch {
	case src.IsFloat():
		asFloat = v.Float64()
		asInt = int64(asFloat)
	case src == KindChar:
		asInt = int64(v.Char())
		asFloat = float64(asInt)
	case src.IsUnsigned():
		asInt = int64(v.Uint64())
		asFloat = float64(v.Uint64())
	default:
		asInt = signExtend(src, v.Uint64())
		asFloat = float64(asInt)
	}

	switch {
	case target == KindFloat32:
		return FromFloat32(float32(asFloat)), nil
	case target == KindFloat64:
		return FromFloat64(asFloat), nil
	case target == KindChar:
		return FromChar(rune(uint32(asInt))), nil
	default:
		return FromIntKind(target, asInt), nil
	}
}

// compare applies a comparison to two same-kind values. Equality is
// defined for every kind; ordering only for numerics, chars and
// strings.
func compare(f *Frame, op Opcode, a, b Value) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, f.fault(FaultType, "%s: operand kinds differ (%s vs %s)", op, a.Kind(), b.Kind())
	}
	switch op {
	case OpCeq:
		return a.Equal(b), nil
	case OpCne:
		return !a.Equal(b), nil
	}

	k := a.Kind()
	var cmp int
	switch {
	case k.IsFloat():
		x, y := a.Float64(), b.Float64()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case k.IsUnsigned():
		x, y := a.Uint64(), b.Uint64()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case k.IsSigned():
		x, y := signExtend(k, a.Uint64()), signExtend(k, b.Uint64())
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case k == KindChar:
		x, y := a.Char(), b.Char()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	case k == KindString:
		x, y := a.Str(), b.Str()
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		return false, f.fault(FaultType, "%s: %s values are not ordered", op, k)
	}

	switch op {
	case OpCgt:
		return cmp > 0, nil
	case OpCge:
		return cmp >= 0, nil
	case OpClt:
		return cmp < 0, nil
	case OpCle:
		return cmp <= 0, nil
	}
	return false, f.fault(FaultFrameInvariant, "%s is not a comparison", op)
}
