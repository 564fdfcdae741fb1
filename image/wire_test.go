package image

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/objectir/objectir/compiler"
	"github.com/objectir/objectir/vm"
)

const roundTripSource = `
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
            local i: int32
            ldc.i4 0
            stloc i
            while (i < 2) {
                newobj Dog
                callvirt Animal.Speak() -> string
                call System.Console.WriteLine(string) -> void
                ldloc i
                ldc.i4 1
                add
                stloc i
            }
        }
    }
}`

func compileFixture(t *testing.T) *vm.Registry {
	t.Helper()
	reg, err := compiler.Compile(roundTripSource)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return reg
}

func runMain(t *testing.T, reg *vm.Registry) string {
	t.Helper()
	eng, err := vm.NewEngine(reg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var console bytes.Buffer
	eng.Console = &console
	out, err := eng.Call(context.Background(), vm.MakeSignature("Main", "Run", nil, "void"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Thrown != nil {
		t.Fatalf("Run threw %s", out.Thrown)
	}
	return console.String()
}

func TestImageRoundTrip(t *testing.T) {
	reg := compileFixture(t)
	want := runMain(t, reg)
	if want != "Woof\nWoof\n" {
		t.Fatalf("fixture output = %q, want two Woofs", want)
	}

	img, err := Snapshot(reg)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	restored, err := Restore(decoded)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := runMain(t, restored); got != want {
		t.Errorf("restored output = %q, want %q", got, want)
	}
}

func TestSnapshotSkipsHostMethods(t *testing.T) {
	img, err := Snapshot(compileFixture(t))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, m := range img.Methods {
		if m.Declaring == "System.Console" {
			t.Errorf("image carries host method %s.%s", m.Declaring, m.Name)
		}
	}
	// Dog appears after its superclass.
	animal, dog := -1, -1
	for i, c := range img.Classes {
		switch c.Name {
		case "Animal":
			animal = i
		case "Dog":
			dog = i
		}
	}
	if animal < 0 || dog < 0 || dog < animal {
		t.Errorf("class order Animal=%d Dog=%d, want superclass first", animal, dog)
	}
}

func TestSnapshotRequiresPublished(t *testing.T) {
	if _, err := Snapshot(vm.NewRegistry()); err == nil {
		t.Error("Snapshot of an unpublished registry succeeded")
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	reg := compileFixture(t)
	img, err := Snapshot(reg)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	a, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two encodings of the same image differ")
	}
}

func TestMethodHash(t *testing.T) {
	reg := compileFixture(t)

	var speak, run *vm.MethodDescriptor
	for _, m := range reg.Methods() {
		switch {
		case m.Declaring.Name == "Dog" && m.Name == "Speak":
			speak = m
		case m.Name == "Run":
			run = m
		}
	}
	if speak == nil || run == nil {
		t.Fatal("fixture methods not found")
	}

	h1, err := MethodHash(speak)
	if err != nil {
		t.Fatalf("MethodHash: %v", err)
	}
	h2, err := MethodHash(speak)
	if err != nil {
		t.Fatalf("MethodHash: %v", err)
	}
	if h1 != h2 {
		t.Error("hash of the same method differs between calls")
	}

	other, err := MethodHash(run)
	if err != nil {
		t.Fatalf("MethodHash: %v", err)
	}
	if h1 == other {
		t.Error("distinct methods share a hash")
	}
}

func TestMethodHashRejectsHostMethods(t *testing.T) {
	reg := compileFixture(t)
	for _, m := range reg.Methods() {
		if m.Host == nil {
			continue
		}
		if _, err := MethodHash(m); err == nil {
			t.Errorf("MethodHash(%s) succeeded for a host method", m.Signature())
		}
		return
	}
	t.Fatal("no host method in fixture registry")
}

func TestUnmarshalRejectsWrongVersion(t *testing.T) {
	img, err := Snapshot(compileFixture(t))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	img.Version = WireVersion + 1
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = Unmarshal(data)
	if err == nil {
		t.Fatal("Unmarshal accepted a future wire version")
	}
	if !strings.Contains(err.Error(), "wire version") {
		t.Errorf("error %q, want wire version mention", err)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor at all")); err == nil {
		t.Error("Unmarshal accepted garbage")
	}
}
