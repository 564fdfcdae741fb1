package vm

import (
	"context"
	"errors"
	"testing"
)

// speakBody returns a body that loads s and returns it.
func speakBody(s string) []Node {
	return []Node{
		instr(Instruction{Op: OpLdstr, Str: s}),
		instr(Instruction{Op: OpRet}),
	}
}

func animalRegistry(t *testing.T) *Registry {
	t.Helper()
	return buildTestRegistry(t,
		[]testClass{
			{name: "Animal"},
			{name: "Dog", super: "Animal"},
			{name: "Puppy", super: "Dog"},
			{name: "Cat", super: "Animal"},
		},
		[]testMethod{
			{class: "Animal", name: "Speak", mod: ModVirtual, ret: "string", body: speakBody("...")},
			{class: "Dog", name: "Speak", mod: ModOverride, ret: "string", body: speakBody("Woof")},
		},
	)
}

func TestResolveStaticNotFound(t *testing.T) {
	reg := animalRegistry(t)
	eng := newTestEngine(t, reg)

	_, err := eng.ResolveStatic(MakeSignature("Animal", "Fly", nil, "void"))
	var nf *MethodNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want MethodNotFoundError", err)
	}
}

func TestVirtualDispatchSelectsMostDerived(t *testing.T) {
	reg := animalRegistry(t)
	eng := newTestEngine(t, reg)
	sig := MakeSignature("Animal", "Speak", nil, "string")

	tests := []struct {
		class string
		want  string
	}{
		{"Animal", "..."},
		{"Dog", "Woof"},
		{"Puppy", "Woof"}, // inherits Dog's override through the chain walk
		{"Cat", "..."},    // no override anywhere on its chain
	}
	for _, tc := range tests {
		recv := FromObject(&Object{Class: reg.Class(tc.class), Fields: map[string]Value{}})
		out, err := eng.CallVirtual(context.Background(), sig, recv)
		if err != nil {
			t.Fatalf("CallVirtual on %s: %v", tc.class, err)
		}
		if out.Value.Str() != tc.want {
			t.Errorf("%s.Speak() = %q, want %q", tc.class, out.Value.Str(), tc.want)
		}
	}
}

func TestCallvirtNullReceiver(t *testing.T) {
	reg := buildTestRegistry(t,
		[]testClass{
			{name: "Animal"},
			{name: "Test"},
		},
		[]testMethod{
			{class: "Animal", name: "Speak", mod: ModVirtual, ret: "string", body: speakBody("...")},
			{
				class: "Test", name: "Run", mod: ModStatic, ret: "string",
				body: []Node{
					instr(Instruction{Op: OpLdnull}),
					instr(Instruction{Op: OpCallvirt, Sig: callSig("Animal", "Speak", nil, "string")}),
					instr(Instruction{Op: OpRet}),
				},
			},
		},
	)
	eng := newTestEngine(t, reg)

	_, err := eng.Call(context.Background(), *callSig("Test", "Run", nil, "string"))
	var nre *NullReferenceError
	if !errors.As(err, &nre) {
		t.Fatalf("err = %v, want NullReferenceError", err)
	}
	if nre.Sig.Name != "Speak" {
		t.Errorf("error names %q, want the Speak signature", nre.Sig.Name)
	}
}

func TestCallvirtFromBytecode(t *testing.T) {
	reg := buildTestRegistry(t,
		[]testClass{
			{name: "Animal"},
			{name: "Dog", super: "Animal"},
			{name: "Test"},
		},
		[]testMethod{
			{class: "Animal", name: "Speak", mod: ModVirtual, ret: "string", body: speakBody("...")},
			{class: "Dog", name: "Speak", mod: ModOverride, ret: "string", body: speakBody("Woof")},
			{
				class: "Test", name: "Run", mod: ModStatic, ret: "string",
				body: []Node{
					instr(Instruction{Op: OpNewobj, Type: "Dog"}),
					instr(Instruction{Op: OpCallvirt, Sig: callSig("Animal", "Speak", nil, "string")}),
					instr(Instruction{Op: OpRet}),
				},
			},
		},
	)
	eng := newTestEngine(t, reg)

	out, err := eng.Call(context.Background(), *callSig("Test", "Run", nil, "string"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Value.Str() != "Woof" {
		t.Errorf("Run() = %q, want %q", out.Value.Str(), "Woof")
	}
}

func TestInstanceMethodReceivesThis(t *testing.T) {
	// Name() -> string reads a field off the receiver.
	reg := buildTestRegistry(t,
		[]testClass{{name: "Animal"}},
		[]testMethod{{
			class: "Animal", name: "Nickname", mod: ModVirtual, ret: "string",
			body: []Node{
				instr(Instruction{Op: OpLdarg, Sym: "this"}),
				instr(Instruction{Op: OpPop}),
				instr(Instruction{Op: OpLdstr, Str: "Rex"}),
				instr(Instruction{Op: OpRet}),
			},
		}},
	)
	eng := newTestEngine(t, reg)

	recv := FromObject(&Object{Class: reg.Class("Animal"), Fields: map[string]Value{}})
	out, err := eng.CallVirtual(context.Background(), MakeSignature("Animal", "Nickname", nil, "string"), recv)
	if err != nil {
		t.Fatalf("CallVirtual: %v", err)
	}
	if out.Value.Str() != "Rex" {
		t.Errorf("Nickname() = %q, want %q", out.Value.Str(), "Rex")
	}
}
