package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a location in ObjectIR source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("line %d", p.Line)
}

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single ObjectIR operation.
type Opcode uint8

// Stack housekeeping
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Constant loads
const (
	OpLdcI4  Opcode = 0x10 // push int32 literal
	OpLdcI8  Opcode = 0x11 // push int64 literal
	OpLdcR4  Opcode = 0x12 // push float32 literal
	OpLdcR8  Opcode = 0x13 // push float64 literal
	OpLdcB0  Opcode = 0x14 // push false
	OpLdcB1  Opcode = 0x15 // push true
	OpLdcC   Opcode = 0x16 // push char literal
	OpLdstr  Opcode = 0x17 // push string literal
	OpLdnull Opcode = 0x18 // push null reference
)

// Storage access
const (
	OpLdloc Opcode = 0x20 // push local by name
	OpStloc Opcode = 0x21 // pop into local by name
	OpLdarg Opcode = 0x22 // push argument by name
	OpStarg Opcode = 0x23 // pop into argument by name
)

// Arithmetic and conversion
const (
	OpAdd  Opcode = 0x30 // pop b, a; push a+b
	OpSub  Opcode = 0x31 // pop b, a; push a-b
	OpMul  Opcode = 0x32 // pop b, a; push a*b
	OpDiv  Opcode = 0x33 // pop b, a; push a/b
	OpRem  Opcode = 0x34 // pop b, a; push a%b
	OpNeg  Opcode = 0x35 // pop a; push -a
	OpConv Opcode = 0x36 // pop a; push a converted to the operand type
)

// Comparison (push bool)
const (
	OpCeq Opcode = 0x40 // equal
	OpCne Opcode = 0x41 // not equal
	OpCgt Opcode = 0x42 // greater than
	OpCge Opcode = 0x43 // greater or equal
	OpClt Opcode = 0x44 // less than
	OpCle Opcode = 0x45 // less or equal
)

// Calls and allocation
const (
	OpCall     Opcode = 0x50 // static call by exact signature
	OpCallvirt Opcode = 0x51 // virtual call; receiver below the arguments
	OpNewobj   Opcode = 0x52 // allocate an instance of the operand type
)

// Frame termination
const (
	OpRet   Opcode = 0x60 // return (value for non-void methods)
	OpThrow Opcode = 0x61 // pop a reference and unwind
)

// Jumps. Produced only by lowering; never present in structured source.
const (
	OpBr      Opcode = 0x70 // unconditional jump to Target
	OpBrtrue  Opcode = 0x71 // pop bool, jump if true
	OpBrfalse Opcode = 0x72 // pop bool, jump if false
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode. Pops/Pushes of -1 mean the
// effect depends on the operand (calls, ret).
type OpcodeInfo struct {
	Name   string // source mnemonic
	Pops   int
	Pushes int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"nop", 0, 0},
	OpPop: {"pop", 1, 0},
	OpDup: {"dup", 1, 2},

	OpLdcI4:  {"ldc.i4", 0, 1},
	OpLdcI8:  {"ldc.i8", 0, 1},
	OpLdcR4:  {"ldc.r4", 0, 1},
	OpLdcR8:  {"ldc.r8", 0, 1},
	OpLdcB0:  {"ldc.b.0", 0, 1},
	OpLdcB1:  {"ldc.b.1", 0, 1},
	OpLdcC:   {"ldc.c", 0, 1},
	OpLdstr:  {"ldstr", 0, 1},
	OpLdnull: {"ldnull", 0, 1},

	OpLdloc: {"ldloc", 0, 1},
	OpStloc: {"stloc", 1, 0},
	OpLdarg: {"ldarg", 0, 1},
	OpStarg: {"starg", 1, 0},

	OpAdd:  {"add", 2, 1},
	OpSub:  {"sub", 2, 1},
	OpMul:  {"mul", 2, 1},
	OpDiv:  {"div", 2, 1},
	OpRem:  {"rem", 2, 1},
	OpNeg:  {"neg", 1, 1},
	OpConv: {"conv", 1, 1},

	OpCeq: {"ceq", 2, 1},
	OpCne: {"cne", 2, 1},
	OpCgt: {"cgt", 2, 1},
	OpCge: {"cge", 2, 1},
	OpClt: {"clt", 2, 1},
	OpCle: {"cle", 2, 1},

	OpCall:     {"call", -1, -1},
	OpCallvirt: {"callvirt", -1, -1},
	OpNewobj:   {"newobj", 0, 1},

	OpRet:   {"ret", -1, 0},
	OpThrow: {"throw", 1, 0},

	OpBr:      {"br", 0, 0},
	OpBrtrue:  {"brtrue", 1, 0},
	OpBrfalse: {"brfalse", 1, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown.%02x", uint8(op))}
}

// Name returns the source mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump returns true for br, brtrue and brfalse.
func (op Opcode) IsJump() bool {
	return op == OpBr || op == OpBrtrue || op == OpBrfalse
}

// IsComparison returns true for the ceq..cle family.
func (op Opcode) IsComparison() bool {
	return op >= OpCeq && op <= OpCle
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one operation plus its typed operands. Operands live in
// dedicated fields instead of an encoded byte stream; an instruction is
// identified by its index in the method's flat list, and jump targets are
// such indices. Instructions are immutable once lowering publishes them.
type Instruction struct {
	Op     Opcode
	Sym    string     // local/argument name (ldloc, stloc, ldarg, starg)
	Int    int64      // integer literal (ldc.i4, ldc.i8)
	Float  float64    // float literal (ldc.r4, ldc.r8)
	Str    string     // string literal (ldstr)
	Ch     rune       // char literal (ldc.c)
	Type   string     // type name (conv, newobj)
	Sig    *Signature // call target (call, callvirt)
	Target int        // jump target index (br, brtrue, brfalse)
	Pos    Position
}

// String renders the instruction in source-mnemonic form.
func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.Name())
	switch in.Op {
	case OpLdcI4, OpLdcI8:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(in.Int, 10))
	case OpLdcR4, OpLdcR8:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(in.Float, 'g', -1, 64))
	case OpLdcC:
		fmt.Fprintf(&b, " %q", in.Ch)
	case OpLdstr:
		fmt.Fprintf(&b, " %q", in.Str)
	case OpLdloc, OpStloc, OpLdarg, OpStarg:
		b.WriteByte(' ')
		b.WriteString(in.Sym)
	case OpConv, OpNewobj:
		b.WriteByte(' ')
		b.WriteString(in.Type)
	case OpCall, OpCallvirt:
		if in.Sig != nil {
			b.WriteByte(' ')
			b.WriteString(in.Sig.String())
		}
	case OpBr, OpBrtrue, OpBrfalse:
		fmt.Fprintf(&b, " -> %d", in.Target)
	}
	return b.String()
}
