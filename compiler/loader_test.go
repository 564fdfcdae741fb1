package compiler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/objectir/objectir/vm"
)

func compileAndRun(t *testing.T, src, class, method string) (vm.Outcome, string) {
	t.Helper()
	reg, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	eng, err := vm.NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var console bytes.Buffer
	eng.Console = &console

	out, err := eng.Call(context.Background(), vm.MakeSignature(class, method, nil, "void"))
	if err != nil {
		t.Fatalf("Call %s.%s: %v", class, method, err)
	}
	return out, console.String()
}

func TestCompileCountingLoop(t *testing.T) {
	src := `
module Demo {
    class Main {
        method Run() -> void {
            local i: int32
            ldc.i4 0
            stloc i
            while (i < 3) {
                ldloc i
                call System.Console.WriteLine(int32) -> void
                ldloc i
                ldc.i4 1
                add
                stloc i
            }
        }
    }
}`
	_, console := compileAndRun(t, src, "Main", "Run")
	if console != "0\n1\n2\n" {
		t.Errorf("console = %q, want %q", console, "0\n1\n2\n")
	}
}

func TestCompileIfElse(t *testing.T) {
	src := `
module Demo {
    class Main {
        method Run() -> void {
            local n: int32
            ldc.i4 7
            stloc n
            if (n > 5) {
                ldstr "big"
                call System.Console.WriteLine(string) -> void
            } else {
                ldstr "small"
                call System.Console.WriteLine(string) -> void
            }
        }
    }
}`
	_, console := compileAndRun(t, src, "Main", "Run")
	if console != "big\n" {
		t.Errorf("console = %q, want %q", console, "big\n")
	}
}

func TestCompileVirtualDispatch(t *testing.T) {
	src := `
module Demo {
    class Animal {
        virtual method Speak() -> string {
            ldstr "..."
            ret
        }
    }
    class Dog : Animal {
        override method Speak() -> string {
            ldstr "Woof"
            ret
        }
    }
    class Main {
        method Run() -> void {
            newobj Dog
            callvirt Animal.Speak() -> string
            call System.Console.WriteLine(string) -> void
        }
    }
}`
	_, console := compileAndRun(t, src, "Main", "Run")
	if console != "Woof\n" {
		t.Errorf("console = %q, want %q", console, "Woof\n")
	}
}

func TestCompileForwardSuperclassReference(t *testing.T) {
	// Dog references Animal before Animal is declared.
	src := `
module Demo {
    class Dog : Animal {
        override method Speak() -> string {
            ldstr "Woof"
            ret
        }
    }
    class Animal {
        virtual method Speak() -> string {
            ldstr "..."
            ret
        }
    }
}`
	reg, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	dog := reg.Class("Dog")
	if dog == nil || dog.Super.Name != "Animal" {
		t.Fatalf("Dog not declared with Animal super")
	}
}

func TestCompileCallAcrossFiles(t *testing.T) {
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if err := l.LoadSource(`
module A {
    class Util {
        method Double(n: int32) -> int32 {
            ldarg n
            ldc.i4 2
            mul
            ret
        }
    }
}`); err != nil {
		t.Fatalf("LoadSource A: %v", err)
	}
	if err := l.LoadSource(`
module B {
    class Main {
        method Run() -> int32 {
            ldc.i4 21
            call Util.Double(int32) -> int32
            ret
        }
    }
}`); err != nil {
		t.Fatalf("LoadSource B: %v", err)
	}
	reg, err := l.Publish()
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	eng, err := vm.NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	out, err := eng.Call(context.Background(), vm.MakeSignature("Main", "Run", nil, "int32"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if int32(out.Value.Int64()) != 42 {
		t.Errorf("Run = %d, want 42", out.Value.Int64())
	}
}

func TestCompileParseErrorSurfaces(t *testing.T) {
	_, err := Compile(`module Demo { class Main { method Run() -> void { frobnicate } } }`)
	if err == nil {
		t.Fatal("Compile succeeded on bad input")
	}
	if !strings.Contains(err.Error(), "unknown mnemonic") {
		t.Errorf("error %q, want unknown mnemonic", err)
	}
}

func TestCompileUnknownSuperclass(t *testing.T) {
	_, err := Compile(`module Demo { class Dog : Ghost { } }`)
	if err == nil {
		t.Fatal("Compile succeeded with unknown superclass")
	}
	if !strings.Contains(err.Error(), "unknown superclass") {
		t.Errorf("error %q, want unknown superclass", err)
	}
}

func TestCompileUnbalancedBranches(t *testing.T) {
	src := `
module Demo {
    class Main {
        method Run() -> void {
            local n: int32
            if (n == 0) {
                ldc.i4 1
            } else {
                nop
            }
            pop
        }
    }
}`
	_, err := Compile(src)
	if err == nil {
		t.Fatal("Compile succeeded with unbalanced branches")
	}
	var le *vm.LoweringError
	if !errors.As(err, &le) {
		t.Fatalf("error %T, want LoweringError", err)
	}
	if !strings.Contains(le.Error(), "unbalanced branches") {
		t.Errorf("error %q, want unbalanced branches", le)
	}
}

func TestCompileOverrideWithoutBase(t *testing.T) {
	src := `
module Demo {
    class Cat {
        override method Speak() -> string {
            ldstr "meow"
            ret
        }
    }
}`
	_, err := Compile(src)
	if err == nil {
		t.Fatal("Compile succeeded with an override lacking a virtual base")
	}
	if !strings.Contains(err.Error(), "no virtual base") {
		t.Errorf("error %q, want no virtual base", err)
	}
}

func TestCompileThrowPropagates(t *testing.T) {
	src := `
module Demo {
    class Main {
        method Boom() -> void {
            newobj System.Exception
            throw
        }
        method Run() -> void {
            call Main.Boom() -> void
        }
    }
}`
	out, _ := compileAndRun(t, src, "Main", "Run")
	if out.Thrown == nil {
		t.Fatal("Run completed, want a thrown exception")
	}
	if got := out.Thrown.Ref().Class.Name; got != "System.Exception" {
		t.Errorf("thrown class = %s, want System.Exception", got)
	}
}
