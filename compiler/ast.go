package compiler

import (
	"github.com/objectir/objectir/vm"
)

// ---------------------------------------------------------------------------
// AST for the ObjectIR text format
// ---------------------------------------------------------------------------
// Declarations keep their source shape; method bodies are already the
// structured node trees lowering consumes.

// Module is one `module Name { ... }` declaration.
type Module struct {
	Name    string
	Classes []*ClassDecl
	Pos     vm.Position
}

// ClassDecl is one `class Name [: Super] { ... }` declaration.
type ClassDecl struct {
	Name    string
	Super   string // empty when no superclass is named
	Methods []*MethodDecl
	Pos     vm.Position
}

// MethodDecl is one method declaration with its structured body.
type MethodDecl struct {
	Name     string
	Modifier vm.MethodModifier
	Params   []ParamDecl
	Return   string
	Locals   []ParamDecl
	Body     []vm.Node
	Pos      vm.Position
}

// ParamDecl is a `name: type` parameter or local declaration.
type ParamDecl struct {
	Name string
	Type string
	Pos  vm.Position
}
