package vm

import (
	"io"
	"testing"
)

// Shared helpers for building small published registries in tests.

type testClass struct {
	name  string
	super string
}

type testMethod struct {
	class  string
	name   string
	mod    MethodModifier
	params []Param
	ret    string
	locals []Param
	body   []Node
}

func buildTestRegistry(t *testing.T, classes []testClass, methods []testMethod) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, c := range classes {
		if _, err := reg.DefineClass(c.name, c.super); err != nil {
			t.Fatalf("DefineClass(%s): %v", c.name, err)
		}
	}

	descs := make([]*MethodDescriptor, len(methods))
	// Overrides need their virtual base declared first.
	for pass := 0; pass < 2; pass++ {
		for i, m := range methods {
			if (pass == 1) != (m.mod == ModOverride) {
				continue
			}
			c := reg.Class(m.class)
			if c == nil {
				t.Fatalf("unknown test class %q", m.class)
			}
			d, err := reg.DeclareMethod(c, m.name, m.params, MakeTypeRef(m.ret), m.mod)
			if err != nil {
				t.Fatalf("DeclareMethod(%s.%s): %v", m.class, m.name, err)
			}
			descs[i] = d
		}
	}

	for i, m := range methods {
		body, err := Lower(reg, descs[i], m.locals, m.body)
		if err != nil {
			t.Fatalf("Lower(%s.%s): %v", m.class, m.name, err)
		}
		if err := reg.AttachBody(descs[i], body); err != nil {
			t.Fatalf("AttachBody(%s.%s): %v", m.class, m.name, err)
		}
	}

	if err := reg.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	return reg
}

func newTestEngine(t *testing.T, reg *Registry) *Engine {
	t.Helper()
	e, err := NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.Console = io.Discard
	return e
}

func instr(in Instruction) Node {
	return &InstrNode{Instr: in}
}

func intParam(name string) Param {
	return Param{Name: name, Type: MakeTypeRef("int32")}
}
