package compiler

import (
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/objectir/objectir/vm"
)

// ---------------------------------------------------------------------------
// Loader: modules in, published registry out
// ---------------------------------------------------------------------------
// Loading is two-phase. Declaration walks every class and method so that
// calls and overrides can reference methods declared later in the text;
// lowering then flattens each body against the fully declared registry
// and publishes it.

// Loader accumulates parsed modules and builds a published registry.
type Loader struct {
	reg     *vm.Registry
	log     commonlog.Logger
	pending []pendingBody
}

type pendingBody struct {
	decl *MethodDecl
	m    *vm.MethodDescriptor
}

// NewLoader creates a loader over a fresh registry with the builtins
// already declared.
func NewLoader() (*Loader, error) {
	reg := vm.NewRegistry()
	if err := vm.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return &Loader{
		reg: reg,
		log: commonlog.GetLogger("oir.compiler"),
	}, nil
}

// LoadSource parses src and declares its modules.
func (l *Loader) LoadSource(src string) error {
	p := NewParser(src)
	modules := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return fmt.Errorf("parse: %s", strings.Join(errs, "; "))
	}
	return l.AddModules(modules)
}

// LoadFile reads and declares one source file.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	if err := l.LoadSource(string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// AddModules declares every class and method in the given modules.
// Bodies are lowered later, by Publish.
func (l *Loader) AddModules(modules []*Module) error {
	var classes []*ClassDecl
	for _, m := range modules {
		l.log.Debugf("declaring module %s", m.Name)
		classes = append(classes, m.Classes...)
	}

	// Classes may name a superclass declared later; retry until the set
	// stops shrinking.
	remaining := classes
	for len(remaining) > 0 {
		var next []*ClassDecl
		for _, c := range remaining {
			if c.Super != "" && l.reg.Class(c.Super) == nil {
				next = append(next, c)
				continue
			}
			if _, err := l.reg.DefineClass(c.Name, c.Super); err != nil {
				return fmt.Errorf("loader: %w", err)
			}
		}
		if len(next) == len(remaining) {
			return fmt.Errorf("loader: class %q: unknown superclass %q", next[0].Name, next[0].Super)
		}
		remaining = next
	}

	// Overrides need their virtual base declared first, so statics and
	// virtuals go in a first pass.
	for _, c := range classes {
		for _, d := range c.Methods {
			if d.Modifier != vm.ModOverride {
				if err := l.declare(c, d); err != nil {
					return err
				}
			}
		}
	}
	for _, c := range classes {
		for _, d := range c.Methods {
			if d.Modifier == vm.ModOverride {
				if err := l.declare(c, d); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *Loader) declare(c *ClassDecl, d *MethodDecl) error {
	class := l.reg.Class(c.Name)
	params := make([]vm.Param, len(d.Params))
	for i, p := range d.Params {
		params[i] = vm.Param{Name: p.Name, Type: vm.MakeTypeRef(p.Type)}
	}
	m, err := l.reg.DeclareMethod(class, d.Name, params, vm.MakeTypeRef(d.Return), d.Modifier)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	l.log.Debugf("declared %s", m)
	l.pending = append(l.pending, pendingBody{decl: d, m: m})
	return nil
}

// Publish lowers every pending body and freezes the registry.
func (l *Loader) Publish() (*vm.Registry, error) {
	for _, pb := range l.pending {
		locals := make([]vm.Param, len(pb.decl.Locals))
		for i, p := range pb.decl.Locals {
			locals[i] = vm.Param{Name: p.Name, Type: vm.MakeTypeRef(p.Type)}
		}
		body, err := vm.Lower(l.reg, pb.m, locals, pb.decl.Body)
		if err != nil {
			return nil, err
		}
		if err := l.reg.AttachBody(pb.m, body); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
		l.log.Debugf("lowered %s (%d instructions)", pb.m, len(body.Instrs))
	}
	l.pending = nil
	if err := l.reg.Publish(); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	return l.reg, nil
}

// Compile is the one-shot path: source text to a published registry.
func Compile(src string) (*vm.Registry, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	if err := l.LoadSource(src); err != nil {
		return nil, err
	}
	return l.Publish()
}
