package vm

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func builtinEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if err := reg.Publish(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	eng, err := NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var out bytes.Buffer
	eng.Console = &out
	return eng, &out
}

func TestConsoleWriteLine(t *testing.T) {
	eng, out := builtinEngine(t)
	ctx := context.Background()

	tests := []struct {
		param string
		arg   Value
		want  string
	}{
		{"string", FromString("hello"), "hello\n"},
		{"int32", FromInt32(-7), "-7\n"},
		{"int64", FromInt64(1 << 40), "1099511627776\n"},
		{"double", FromFloat64(2.5), "2.5\n"},
		{"bool", FromBool(true), "true\n"},
		{"char", FromChar('x'), "x\n"},
	}
	for _, tc := range tests {
		out.Reset()
		_, err := eng.Call(ctx, MakeSignature("System.Console", "WriteLine", []string{tc.param}, "void"), tc.arg)
		if err != nil {
			t.Fatalf("WriteLine(%s): %v", tc.param, err)
		}
		if out.String() != tc.want {
			t.Errorf("WriteLine(%s) wrote %q, want %q", tc.param, out.String(), tc.want)
		}
	}

	out.Reset()
	if _, err := eng.Call(ctx, MakeSignature("System.Console", "WriteLine", nil, "void")); err != nil {
		t.Fatalf("WriteLine(): %v", err)
	}
	if out.String() != "\n" {
		t.Errorf("WriteLine() wrote %q, want a bare newline", out.String())
	}
}

func TestConsoleWriteDoesNotAppendNewline(t *testing.T) {
	eng, out := builtinEngine(t)

	_, err := eng.Call(context.Background(), MakeSignature("System.Console", "Write", []string{"string"}, "void"), FromString("ab"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != "ab" {
		t.Errorf("Write wrote %q, want %q", out.String(), "ab")
	}
}

func TestConsoleReadLine(t *testing.T) {
	eng, _ := builtinEngine(t)
	eng.Input = strings.NewReader("first line\nsecond\n")

	out, err := eng.Call(context.Background(), MakeSignature("System.Console", "ReadLine", nil, "string"))
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if out.Value.Str() != "first line" {
		t.Errorf("ReadLine = %q, want %q", out.Value.Str(), "first line")
	}
}

func TestStringBuiltins(t *testing.T) {
	eng, _ := builtinEngine(t)
	ctx := context.Background()

	out, err := eng.Call(ctx, MakeSignature("System.String", "Concat", []string{"string", "string"}, "string"),
		FromString("ab"), FromString("cd"))
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if out.Value.Str() != "abcd" {
		t.Errorf("Concat = %q, want %q", out.Value.Str(), "abcd")
	}

	out, err = eng.Call(ctx, MakeSignature("System.String", "Length", []string{"string"}, "int32"), FromString("héllo"))
	if err != nil {
		t.Fatalf("Length: %v", err)
	}
	if int32(out.Value.Int64()) != 5 {
		t.Errorf("Length(héllo) = %d, want 5 (runes, not bytes)", out.Value.Int64())
	}
}

func TestMathBuiltins(t *testing.T) {
	eng, _ := builtinEngine(t)
	ctx := context.Background()

	out, err := eng.Call(ctx, MakeSignature("System.Math", "Abs", []string{"int32"}, "int32"), FromInt32(-5))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if int32(out.Value.Int64()) != 5 {
		t.Errorf("Abs(-5) = %d, want 5", out.Value.Int64())
	}

	out, err = eng.Call(ctx, MakeSignature("System.Math", "Abs", []string{"double"}, "double"), FromFloat64(-2.5))
	if err != nil {
		t.Fatalf("Abs double: %v", err)
	}
	if out.Value.Float64() != 2.5 {
		t.Errorf("Abs(-2.5) = %g, want 2.5", out.Value.Float64())
	}

	out, err = eng.Call(ctx, MakeSignature("System.Math", "Max", []string{"int32", "int32"}, "int32"),
		FromInt32(3), FromInt32(9))
	if err != nil {
		t.Fatalf("Max: %v", err)
	}
	if int32(out.Value.Int64()) != 9 {
		t.Errorf("Max(3, 9) = %d, want 9", out.Value.Int64())
	}

	out, err = eng.Call(ctx, MakeSignature("System.Math", "Min", []string{"int32", "int32"}, "int32"),
		FromInt32(3), FromInt32(9))
	if err != nil {
		t.Fatalf("Min: %v", err)
	}
	if int32(out.Value.Int64()) != 3 {
		t.Errorf("Min(3, 9) = %d, want 3", out.Value.Int64())
	}
}

func TestBuiltinsCallableFromBytecode(t *testing.T) {
	reg := buildTestRegistry(t,
		[]testClass{{name: "Test"}},
		[]testMethod{{
			class: "Test", name: "Run", mod: ModStatic, ret: "void",
			body: []Node{
				instr(Instruction{Op: OpLdstr, Str: "from bytecode"}),
				instr(Instruction{Op: OpCall, Sig: callSig("System.Console", "WriteLine", []string{"string"}, "void")}),
				instr(Instruction{Op: OpRet}),
			},
		}},
	)
	eng, err := NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var out bytes.Buffer
	eng.Console = &out

	if _, err := eng.Call(context.Background(), *callSig("Test", "Run", nil, "void")); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.String() != "from bytecode\n" {
		t.Errorf("console = %q, want %q", out.String(), "from bytecode\n")
	}
}
