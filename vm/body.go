package vm

// ---------------------------------------------------------------------------
// Structured method bodies
// ---------------------------------------------------------------------------
// The parser produces a tree of these nodes; lowering consumes it. Jump
// opcodes never appear here — they exist only in the lowered form.

// Node is one element of a structured method body.
type Node interface {
	NodePos() Position
}

// InstrNode wraps a single linear instruction.
type InstrNode struct {
	Instr Instruction
}

func (n *InstrNode) NodePos() Position { return n.Instr.Pos }

// Operand is one side of a comparison header: a named local/argument
// reference, or a literal load instruction.
type Operand struct {
	Name string       // local or argument name, when Lit is nil
	Lit  *Instruction // a constant-load instruction otherwise
	Pos  Position
}

// Cond is the comparison header of an if or while node, e.g. `i < 10`.
// It lowers to the two operand loads followed by the comparison, leaving
// a boolean on the stack.
type Cond struct {
	Left    Operand
	Right   Operand
	Compare Opcode // one of ceq..cle
	Pos     Position
}

// IfNode is a conditional with an optional else branch. A nil Cond means
// `if (stack)`: the boolean is already on top of the evaluation stack
// and is consumed by the lowered branch.
type IfNode struct {
	Pos  Position
	Cond *Cond
	Then []Node
	Else []Node // nil when there is no else branch
}

func (n *IfNode) NodePos() Position { return n.Pos }

// WhileNode is a pre-tested loop. A nil Cond means `while (true)`: no
// condition test is emitted and only a break leaves the loop.
type WhileNode struct {
	Pos  Position
	Cond *Cond
	Body []Node
}

func (n *WhileNode) NodePos() Position { return n.Pos }

// BreakNode jumps to the innermost enclosing loop's exit.
type BreakNode struct {
	Pos Position
}

func (n *BreakNode) NodePos() Position { return n.Pos }

// ContinueNode jumps to the innermost enclosing loop's condition re-test
// point.
type ContinueNode struct {
	Pos Position
}

func (n *ContinueNode) NodePos() Position { return n.Pos }
