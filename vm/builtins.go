package vm

import (
	"bufio"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------
// Host-implemented methods under System.Console, System.String and
// System.Math. They are ordinary static descriptors whose bodies are Go
// functions; dispatch treats them exactly like lowered methods.

type builtinSpec struct {
	declaring string
	name      string
	params    []string
	ret       string
	fn        HostFunc
}

var builtinSpecs = []builtinSpec{
	{"System.Console", "WriteLine", []string{TypeString}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", []string{TypeInt32}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", []string{TypeInt64}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", []string{TypeFloat64}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", []string{TypeBool}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", []string{TypeChar}, TypeVoid, consoleWriteLine},
	{"System.Console", "WriteLine", nil, TypeVoid, consoleWriteLine},

	{"System.Console", "Write", []string{TypeString}, TypeVoid, consoleWrite},
	{"System.Console", "Write", []string{TypeInt32}, TypeVoid, consoleWrite},
	{"System.Console", "Write", []string{TypeInt64}, TypeVoid, consoleWrite},
	{"System.Console", "Write", []string{TypeFloat64}, TypeVoid, consoleWrite},
	{"System.Console", "Write", []string{TypeBool}, TypeVoid, consoleWrite},
	{"System.Console", "Write", []string{TypeChar}, TypeVoid, consoleWrite},

	{"System.Console", "ReadLine", nil, TypeString, consoleReadLine},

	{"System.String", "Concat", []string{TypeString, TypeString}, TypeString, stringConcat},
	{"System.String", "Length", []string{TypeString}, TypeInt32, stringLength},

	{"System.Math", "Abs", []string{TypeInt32}, TypeInt32, mathAbs},
	{"System.Math", "Abs", []string{TypeInt64}, TypeInt64, mathAbs},
	{"System.Math", "Abs", []string{TypeFloat64}, TypeFloat64, mathAbs},
	{"System.Math", "Min", []string{TypeInt32, TypeInt32}, TypeInt32, mathMin},
	{"System.Math", "Max", []string{TypeInt32, TypeInt32}, TypeInt32, mathMax},
}

// RegisterBuiltins declares the builtin host methods on reg. It must run
// before Publish.
func RegisterBuiltins(reg *Registry) error {
	for _, spec := range builtinSpecs {
		c := reg.Class(spec.declaring)
		if c == nil {
			var err error
			c, err = reg.DefineClass(spec.declaring, "")
			if err != nil {
				return fmt.Errorf("builtins: %w", err)
			}
		}
		params := make([]Param, len(spec.params))
		for i, t := range spec.params {
			params[i] = Param{Name: fmt.Sprintf("a%d", i), Type: MakeTypeRef(t)}
		}
		m, err := reg.DeclareMethod(c, spec.name, params, MakeTypeRef(spec.ret), ModStatic)
		if err != nil {
			return fmt.Errorf("builtins: %w", err)
		}
		if err := reg.AttachHost(m, spec.fn); err != nil {
			return fmt.Errorf("builtins: %w", err)
		}
	}
	return nil
}

func consoleWriteLine(e *Engine, args []Value) (Value, error) {
	if len(args) == 0 {
		fmt.Fprintln(e.Console)
		return Value{}, nil
	}
	fmt.Fprintln(e.Console, args[0].String())
	return Value{}, nil
}

func consoleWrite(e *Engine, args []Value) (Value, error) {
	fmt.Fprint(e.Console, args[0].String())
	return Value{}, nil
}

func consoleReadLine(e *Engine, args []Value) (Value, error) {
	r := bufio.NewReader(e.Input)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return FromString(""), nil
	}
	return FromString(strings.TrimRight(line, "\r\n")), nil
}

func stringConcat(e *Engine, args []Value) (Value, error) {
	return FromString(args[0].Str() + args[1].Str()), nil
}

func stringLength(e *Engine, args []Value) (Value, error) {
	return FromInt32(int32(len([]rune(args[0].Str())))), nil
}

func mathAbs(e *Engine, args []Value) (Value, error) {
	v := args[0]
	switch {
	case v.Kind().IsFloat():
		f := v.Float64()
		if f < 0 {
			f = -f
		}
		return FromFloat64(f), nil
	default:
		n := v.Int64()
		if n < 0 {
			n = -n
		}
		return FromIntKind(v.Kind(), n), nil
	}
}

func mathMin(e *Engine, args []Value) (Value, error) {
	a, b := args[0].Int64(), args[1].Int64()
	if a < b {
		return FromInt32(int32(a)), nil
	}
	return FromInt32(int32(b)), nil
}

func mathMax(e *Engine, args []Value) (Value, error) {
	a, b := args[0].Int64(), args[1].Int64()
	if a > b {
		return FromInt32(int32(a)), nil
	}
	return FromInt32(int32(b)), nil
}
