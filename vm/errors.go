package vm

import "fmt"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------
// Three families, per the error handling design:
//
//   - LoweringError: malformed structured control flow, detected once at
//     lowering time, before any execution.
//   - MethodNotFoundError / NullReferenceError: dispatch failures, fatal
//     to the current call and propagated up the call stack.
//   - Fault: a runtime consistency failure (type/arity mismatch, integer
//     divide by zero, frame-invariant violation, call-depth overflow),
//     fatal to the call stack.
//
// A user-originated thrown reference is NOT an error; it travels in
// Outcome.Thrown and unwinds frames without touching this taxonomy.

// LoweringError reports a malformed structured method body: unbalanced
// branch stack deltas, break/continue outside a loop, references to
// undeclared locals or arguments, or an unresolved jump target.
type LoweringError struct {
	Method string
	Pos    Position
	Msg    string
}

func (e *LoweringError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("lowering %s: %s: %s", e.Method, e.Pos, e.Msg)
	}
	return fmt.Sprintf("lowering %s: %s", e.Method, e.Msg)
}

// MethodNotFoundError reports a signature with no published descriptor.
type MethodNotFoundError struct {
	Sig Signature
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %s", e.Sig)
}

// NullReferenceError reports a virtual call on a null receiver (or a
// throw of the null reference). It is raised before any override walk.
type NullReferenceError struct {
	Method string
	PC     int
	Sig    Signature
}

func (e *NullReferenceError) Error() string {
	if e.Sig.Name != "" {
		return fmt.Sprintf("null reference in %s at %d: callvirt %s", e.Method, e.PC, e.Sig)
	}
	return fmt.Sprintf("null reference in %s at %d", e.Method, e.PC)
}

// FaultKind classifies runtime faults.
type FaultKind int

const (
	FaultType          FaultKind = iota // operand kind mismatch
	FaultArity                          // wrong argument count
	FaultDivideByZero                   // integer division or remainder by zero
	FaultFrameInvariant                 // stack shape violates the frame contract
	FaultStackOverflow                  // call depth limit exceeded
)

var faultNames = map[FaultKind]string{
	FaultType:           "type fault",
	FaultArity:          "arity fault",
	FaultDivideByZero:   "integer divide by zero",
	FaultFrameInvariant: "frame invariant violation",
	FaultStackOverflow:  "call stack overflow",
}

func (k FaultKind) String() string {
	if name, ok := faultNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fault(%d)", int(k))
}

// Fault is a core-raised runtime error, distinct from a user thrown
// value. It carries the offending method and instruction index.
type Fault struct {
	Kind   FaultKind
	Method string
	PC     int
	Msg    string
}

func (f *Fault) Error() string {
	if f.Msg != "" {
		return fmt.Sprintf("%s in %s at %d: %s", f.Kind, f.Method, f.PC, f.Msg)
	}
	return fmt.Sprintf("%s in %s at %d", f.Kind, f.Method, f.PC)
}
