package vm

import "fmt"

// ---------------------------------------------------------------------------
// Control-flow lowering
// ---------------------------------------------------------------------------
// Lowering turns a structured body into a flat instruction list with
// index-addressed jumps. It carries a symbolic typed stack and verifies
// that every path reaching a merge point agrees on depth and per-slot
// kind, so the engine can assume a statically known stack shape at every
// program point.

// Label is a forward-patchable index into the instruction list under
// construction. Jumps emitted before the label is marked record their
// positions and are patched when Mark resolves it.
type Label struct {
	resolved bool
	index    int
	refs     []int
}

// loopContext records the jump targets an enclosing while loop exposes
// to break and continue.
type loopContext struct {
	breakTo    *Label
	continueTo *Label
}

// Lowerer lowers one method body. It is single-use.
type Lowerer struct {
	reg    *Registry
	method *MethodDescriptor

	out   []Instruction
	loops []loopContext

	args   map[string]TypeRef
	locals map[string]TypeRef

	// Symbolic verifier state: the stack's kinds at the current point,
	// whether the point is reachable, and the agreed shape at each label.
	stack     []Kind
	reachable bool
	expect    map[*Label][]Kind
}

// Lower flattens a structured method body into a jump-addressed
// instruction list, or fails with a *LoweringError. locals are the
// method's declared local variables; argument declarations come from the
// descriptor itself.
func Lower(reg *Registry, m *MethodDescriptor, locals []Param, body []Node) (*LoweredBody, error) {
	l := &Lowerer{
		reg:       reg,
		method:    m,
		args:      make(map[string]TypeRef, len(m.Params)),
		locals:    make(map[string]TypeRef, len(locals)),
		reachable: true,
		expect:    make(map[*Label][]Kind),
	}

	for _, p := range m.Params {
		if _, dup := l.args[p.Name]; dup {
			return nil, l.fail(Position{}, "duplicate parameter %q", p.Name)
		}
		l.args[p.Name] = p.Type
	}
	for _, p := range locals {
		if _, dup := l.locals[p.Name]; dup {
			return nil, l.fail(Position{}, "duplicate local %q", p.Name)
		}
		if _, shadows := l.args[p.Name]; shadows {
			return nil, l.fail(Position{}, "local %q shadows an argument", p.Name)
		}
		l.locals[p.Name] = p.Type
	}

	if err := l.lowerNodes(body); err != nil {
		return nil, err
	}

	// Implicit return at the end of a void body; a value-returning body
	// must not fall off the end.
	if l.reachable {
		if !l.method.Return.IsVoid() {
			return nil, l.fail(Position{}, "control reaches end of value-returning method")
		}
		if err := l.emit(Instruction{Op: OpRet}); err != nil {
			return nil, err
		}
	}

	// Every jump must have been patched to a real index.
	for i, in := range l.out {
		if in.Op.IsJump() && (in.Target < 0 || in.Target > len(l.out)) {
			return nil, l.fail(in.Pos, "unresolved label reference at %d", i)
		}
	}

	return &LoweredBody{Instrs: l.out, Locals: locals}, nil
}

func (l *Lowerer) fail(pos Position, format string, args ...interface{}) *LoweringError {
	return &LoweringError{
		Method: l.method.Signature().String(),
		Pos:    pos,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// ---------------------------------------------------------------------------
// Node lowering
// ---------------------------------------------------------------------------

func (l *Lowerer) lowerNodes(nodes []Node) error {
	for _, n := range nodes {
		if err := l.lowerNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) lowerNode(node Node) error {
	switch n := node.(type) {
	case *InstrNode:
		if n.Instr.Op.IsJump() {
			return l.fail(n.Instr.Pos, "jump opcode %s in structured body", n.Instr.Op)
		}
		return l.emit(n.Instr)

	case *IfNode:
		return l.lowerIf(n)

	case *WhileNode:
		return l.lowerWhile(n)

	case *BreakNode:
		if len(l.loops) == 0 {
			return l.fail(n.Pos, "break outside loop")
		}
		if !l.reachable {
			return nil
		}
		return l.emitJump(OpBr, l.loops[len(l.loops)-1].breakTo, n.Pos)

	case *ContinueNode:
		if len(l.loops) == 0 {
			return l.fail(n.Pos, "continue outside loop")
		}
		if !l.reachable {
			return nil
		}
		return l.emitJump(OpBr, l.loops[len(l.loops)-1].continueTo, n.Pos)

	default:
		return l.fail(node.NodePos(), "unknown structured node %T", node)
	}
}

func (l *Lowerer) lowerIf(n *IfNode) error {
	if !l.reachable {
		return nil
	}
	if n.Cond != nil {
		if err := l.lowerCond(n.Cond); err != nil {
			return err
		}
	}

	if n.Else == nil {
		after := &Label{}
		if err := l.emitJump(OpBrfalse, after, n.Pos); err != nil {
			return err
		}
		if err := l.lowerNodes(n.Then); err != nil {
			return err
		}
		return l.mark(after, n.Pos)
	}

	elseLabel := &Label{}
	after := &Label{}
	if err := l.emitJump(OpBrfalse, elseLabel, n.Pos); err != nil {
		return err
	}
	if err := l.lowerNodes(n.Then); err != nil {
		return err
	}
	if err := l.emitJump(OpBr, after, n.Pos); err != nil {
		return err
	}
	if err := l.mark(elseLabel, n.Pos); err != nil {
		return err
	}
	if err := l.lowerNodes(n.Else); err != nil {
		return err
	}
	return l.mark(after, n.Pos)
}

func (l *Lowerer) lowerWhile(n *WhileNode) error {
	if !l.reachable {
		return nil
	}
	condLabel := &Label{}
	exitLabel := &Label{}

	if err := l.mark(condLabel, n.Pos); err != nil {
		return err
	}
	if n.Cond != nil {
		if err := l.lowerCond(n.Cond); err != nil {
			return err
		}
		if err := l.emitJump(OpBrfalse, exitLabel, n.Pos); err != nil {
			return err
		}
	}

	l.loops = append(l.loops, loopContext{breakTo: exitLabel, continueTo: condLabel})
	err := l.lowerNodes(n.Body)
	l.loops = l.loops[:len(l.loops)-1]
	if err != nil {
		return err
	}

	if err := l.emitJump(OpBr, condLabel, n.Pos); err != nil {
		return err
	}
	return l.mark(exitLabel, n.Pos)
}

// lowerCond emits the operand loads and the comparison, leaving a bool
// on the symbolic stack.
func (l *Lowerer) lowerCond(c *Cond) error {
	if err := l.lowerOperand(c.Left); err != nil {
		return err
	}
	if err := l.lowerOperand(c.Right); err != nil {
		return err
	}
	if !c.Compare.IsComparison() {
		return l.fail(c.Pos, "condition operator %s is not a comparison", c.Compare)
	}
	return l.emit(Instruction{Op: c.Compare, Pos: c.Pos})
}

func (l *Lowerer) lowerOperand(o Operand) error {
	switch {
	case o.Lit != nil:
		in := *o.Lit
		in.Pos = o.Pos
		return l.emit(in)
	case o.Name != "":
		op := OpLdloc
		if _, isArg := l.args[o.Name]; isArg {
			op = OpLdarg
		}
		return l.emit(Instruction{Op: op, Sym: o.Name, Pos: o.Pos})
	default:
		return l.fail(o.Pos, "empty comparison operand")
	}
}

// ---------------------------------------------------------------------------
// Emission and label bookkeeping
// ---------------------------------------------------------------------------

// emit verifies the instruction's typed stack effect and appends it.
// Instructions at unreachable points (after throw, break, continue or an
// unconditional jump) are dropped rather than mis-lowered.
func (l *Lowerer) emit(in Instruction) error {
	if !l.reachable {
		return nil
	}
	if err := l.effect(&in); err != nil {
		return err
	}
	l.out = append(l.out, in)
	return nil
}

// emitJump appends a jump to label, patching later if the label is still
// unresolved, and records the stack shape the label must agree on.
func (l *Lowerer) emitJump(op Opcode, label *Label, pos Position) error {
	if !l.reachable {
		return nil
	}
	if op == OpBrtrue || op == OpBrfalse {
		k, err := l.pop(pos)
		if err != nil {
			return err
		}
		if k != KindBool {
			return l.fail(pos, "branch condition must be bool, have %s", k)
		}
	}

	idx := len(l.out)
	l.out = append(l.out, Instruction{Op: op, Target: -1, Pos: pos})
	if label.resolved {
		l.out[idx].Target = label.index
	} else {
		label.refs = append(label.refs, idx)
	}

	if err := l.agree(label, pos); err != nil {
		return err
	}
	if op == OpBr {
		l.reachable = false
	}
	return nil
}

// mark resolves label at the current index, patches pending jumps, and
// merges the verifier state: a reachable fallthrough must agree with
// every jump to the label; an unreachable one adopts the jumps' shape.
func (l *Lowerer) mark(label *Label, pos Position) error {
	label.resolved = true
	label.index = len(l.out)
	for _, ref := range label.refs {
		l.out[ref].Target = label.index
	}
	label.refs = nil

	if l.reachable {
		return l.agree(label, pos)
	}
	if exp, ok := l.expect[label]; ok {
		l.stack = append(l.stack[:0], exp...)
		l.reachable = true
	}
	return nil
}

// agree verifies, or records on first contact, the stack shape at label.
func (l *Lowerer) agree(label *Label, pos Position) error {
	exp, seen := l.expect[label]
	if !seen {
		snap := make([]Kind, len(l.stack))
		copy(snap, l.stack)
		l.expect[label] = snap
		return nil
	}
	if len(exp) != len(l.stack) {
		return l.fail(pos, "unbalanced branches: stack depth %d vs %d at merge point", len(l.stack), len(exp))
	}
	for i := range exp {
		if exp[i] != l.stack[i] {
			return l.fail(pos, "unbalanced branches: slot %d is %s on one path, %s on another", i, l.stack[i], exp[i])
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Symbolic typed-stack effects
// ---------------------------------------------------------------------------

func (l *Lowerer) push(k Kind) {
	l.stack = append(l.stack, k)
}

func (l *Lowerer) pop(pos Position) (Kind, error) {
	if len(l.stack) == 0 {
		return KindVoid, l.fail(pos, "stack underflow")
	}
	k := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return k, nil
}

// effect applies in's stack/storage effect to the symbolic stack. It is
// also where undeclared-name and operand-kind errors surface.
func (l *Lowerer) effect(in *Instruction) error {
	pos := in.Pos
	switch in.Op {
	case OpNop:
		return nil

	case OpPop:
		_, err := l.pop(pos)
		return err

	case OpDup:
		if len(l.stack) == 0 {
			return l.fail(pos, "stack underflow")
		}
		l.push(l.stack[len(l.stack)-1])
		return nil

	case OpLdcI4:
		l.push(KindInt32)
	case OpLdcI8:
		l.push(KindInt64)
	case OpLdcR4:
		l.push(KindFloat32)
	case OpLdcR8:
		l.push(KindFloat64)
	case OpLdcB0, OpLdcB1:
		l.push(KindBool)
	case OpLdcC:
		l.push(KindChar)
	case OpLdstr:
		l.push(KindString)
	case OpLdnull:
		l.push(KindObject)

	case OpLdloc:
		t, ok := l.locals[in.Sym]
		if !ok {
			return l.fail(pos, "undeclared local %q", in.Sym)
		}
		l.push(t.Kind)

	case OpLdarg:
		t, ok := l.args[in.Sym]
		if !ok {
			return l.fail(pos, "undeclared argument %q", in.Sym)
		}
		l.push(t.Kind)

	case OpStloc:
		t, ok := l.locals[in.Sym]
		if !ok {
			return l.fail(pos, "undeclared local %q", in.Sym)
		}
		k, err := l.pop(pos)
		if err != nil {
			return err
		}
		if k != t.Kind {
			return l.fail(pos, "stloc %s: cannot store %s into %s slot", in.Sym, k, t.Kind)
		}

	case OpStarg:
		t, ok := l.args[in.Sym]
		if !ok {
			return l.fail(pos, "undeclared argument %q", in.Sym)
		}
		k, err := l.pop(pos)
		if err != nil {
			return err
		}
		if k != t.Kind {
			return l.fail(pos, "starg %s: cannot store %s into %s slot", in.Sym, k, t.Kind)
		}

	case OpAdd, OpSub, OpMul, OpDiv, OpRem:
		b, err := l.pop(pos)
		if err != nil {
			return err
		}
		a, err := l.pop(pos)
		if err != nil {
			return err
		}
		if a != b {
			return l.fail(pos, "%s: operand kinds differ (%s vs %s)", in.Op, a, b)
		}
		if !a.IsNumeric() {
			return l.fail(pos, "%s: operands must be numeric, have %s", in.Op, a)
		}
		l.push(a)

	case OpNeg:
		a, err := l.pop(pos)
		if err != nil {
			return err
		}
		if !a.IsNumeric() {
			return l.fail(pos, "neg: operand must be numeric, have %s", a)
		}
		l.push(a)

	case OpConv:
		target := MakeTypeRef(in.Type)
		if !target.Kind.IsNumeric() && target.Kind != KindChar {
			return l.fail(pos, "conv: target type %s is not numeric", in.Type)
		}
		a, err := l.pop(pos)
		if err != nil {
			return err
		}
		if !a.IsNumeric() && a != KindChar {
			return l.fail(pos, "conv: operand must be numeric or char, have %s", a)
		}
		l.push(target.Kind)

	case OpCeq, OpCne, OpCgt, OpCge, OpClt, OpCle:
		b, err := l.pop(pos)
		if err != nil {
			return err
		}
		a, err := l.pop(pos)
		if err != nil {
			return err
		}
		if a != b {
			return l.fail(pos, "%s: operand kinds differ (%s vs %s)", in.Op, a, b)
		}
		if in.Op != OpCeq && in.Op != OpCne {
			if !a.IsNumeric() && a != KindChar && a != KindString {
				return l.fail(pos, "%s: operands are not ordered (%s)", in.Op, a)
			}
		}
		l.push(KindBool)

	case OpCall:
		return l.effectCall(in, false)

	case OpCallvirt:
		return l.effectCall(in, true)

	case OpNewobj:
		name := CanonicalTypeName(in.Type)
		if l.reg.Class(name) == nil {
			return l.fail(pos, "newobj: unknown type %q", in.Type)
		}
		l.push(KindObject)

	case OpRet:
		ret := l.method.Return
		if ret.IsVoid() {
			if len(l.stack) != 0 {
				return l.fail(pos, "ret: stack depth %d at return from void method", len(l.stack))
			}
		} else {
			if len(l.stack) != 1 {
				return l.fail(pos, "ret: stack depth %d, want exactly the %s return value", len(l.stack), ret.Kind)
			}
			if l.stack[0] != ret.Kind {
				return l.fail(pos, "ret: returning %s from %s method", l.stack[0], ret.Kind)
			}
			l.stack = l.stack[:0]
		}
		l.reachable = false

	case OpThrow:
		k, err := l.pop(pos)
		if err != nil {
			return err
		}
		if k != KindObject {
			return l.fail(pos, "throw: operand must be a reference, have %s", k)
		}
		l.reachable = false

	default:
		return l.fail(pos, "unknown opcode %s", in.Op)
	}
	return nil
}

// effectCall pops the callee's arguments (and receiver, for callvirt)
// and pushes its return value.
func (l *Lowerer) effectCall(in *Instruction, virtual bool) error {
	pos := in.Pos
	if in.Sig == nil {
		return l.fail(pos, "%s without a signature operand", in.Op)
	}
	sig := *in.Sig
	for i := len(sig.Params) - 1; i >= 0; i-- {
		want, _ := KindOfType(sig.Params[i])
		k, err := l.pop(pos)
		if err != nil {
			return err
		}
		if k != want {
			return l.fail(pos, "%s %s: argument %d is %s, want %s", in.Op, sig, i, k, want)
		}
	}
	if virtual {
		recv, err := l.pop(pos)
		if err != nil {
			return err
		}
		if recv != KindObject {
			return l.fail(pos, "callvirt %s: receiver must be a reference, have %s", sig, recv)
		}
	}
	ret := MakeTypeRef(sig.Return)
	if !ret.IsVoid() {
		l.push(ret.Kind)
	}
	return nil
}
