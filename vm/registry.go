package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Signatures
// ---------------------------------------------------------------------------

// Signature identifies a method call site: declaring type, name, ordered
// parameter types and return type. Type names are canonicalized by
// MakeSignature so that "int32" and "System.Int32" key identically.
type Signature struct {
	DeclaringType string
	Name          string
	Params        []string
	Return        string
}

// MakeSignature builds a signature with canonicalized type names.
func MakeSignature(declaring, name string, params []string, ret string) Signature {
	canon := make([]string, len(params))
	for i, p := range params {
		canon[i] = CanonicalTypeName(p)
	}
	return Signature{
		DeclaringType: declaring,
		Name:          name,
		Params:        canon,
		Return:        CanonicalTypeName(ret),
	}
}

// Key returns the exact-match lookup key for the signature.
func (s Signature) Key() string {
	return s.DeclaringType + "." + s.slotKey()
}

// slotKey is the signature without the declaring type; it is what a
// virtual method shares with its overrides across a class hierarchy.
func (s Signature) slotKey() string {
	return s.Name + "(" + strings.Join(s.Params, ",") + ")->" + s.Return
}

func (s Signature) String() string {
	return fmt.Sprintf("%s.%s(%s) -> %s", s.DeclaringType, s.Name, strings.Join(s.Params, ", "), s.Return)
}

// ---------------------------------------------------------------------------
// Method descriptors
// ---------------------------------------------------------------------------

// Param is a named, typed parameter or local declaration.
type Param struct {
	Name string
	Type TypeRef
}

// MethodModifier distinguishes how a method participates in dispatch.
type MethodModifier int

const (
	ModStatic   MethodModifier = iota // no receiver, exact-signature dispatch only
	ModVirtual                        // instance method introducing an override slot
	ModOverride                       // instance method overriding an inherited slot
)

var modifierNames = map[MethodModifier]string{
	ModStatic:   "static",
	ModVirtual:  "virtual",
	ModOverride: "override",
}

func (m MethodModifier) String() string { return modifierNames[m] }

// HostFunc is a builtin method body implemented in Go. Arguments arrive
// already kind-checked against the descriptor's parameters.
type HostFunc func(e *Engine, args []Value) (Value, error)

// LoweredBody is the published, flat form of a method: the jump-addressed
// instruction list plus the declared locals. Immutable after Publish.
type LoweredBody struct {
	Instrs []Instruction
	Locals []Param
}

// MethodDescriptor is the unique, published identity of one method.
// Exactly one of Body and Host is set once the registry is published.
type MethodDescriptor struct {
	Declaring *Class
	Name      string
	Params    []Param // includes the implicit "this" for instance methods
	Return    TypeRef
	Modifier  MethodModifier
	Slot      int // override-table slot; -1 for static methods
	Body      *LoweredBody
	Host      HostFunc

	sig Signature
}

// Signature returns the descriptor's exact call signature. The implicit
// receiver parameter of instance methods is not part of the signature.
func (m *MethodDescriptor) Signature() Signature { return m.sig }

// IsInstance returns true for virtual and override methods.
func (m *MethodDescriptor) IsInstance() bool { return m.Modifier != ModStatic }

func (m *MethodDescriptor) String() string { return m.sig.String() }

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// Class is a registered reference type. Virtual dispatch state lives in
// the local override table: slot id to the override this class declares.
// Inherited slots are found by walking Super, most-derived first.
type Class struct {
	Name  string
	Super *Class

	overrides map[int]*MethodDescriptor
	methods   map[string]*MethodDescriptor // local methods by slot key
}

// Overrides returns this class's local override for slot, if any.
// Parents are not consulted.
func (c *Class) Overrides(slot int) (*MethodDescriptor, bool) {
	m, ok := c.overrides[slot]
	return m, ok
}

// IsSubclassOf reports whether c is other or a descendant of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
	}
	return false
}

func (c *Class) String() string { return c.Name }

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry resolves type names to value kinds and method signatures to
// unique descriptors. It is mutable while a loader populates it and
// frozen by Publish; published registries are safe for concurrent reads
// without locking.
type Registry struct {
	classes   map[string]*Class
	methods   map[string]*MethodDescriptor // by Signature.Key()
	nextSlot  int
	published bool
}

// NewRegistry creates a registry pre-populated with the System.Object
// root class and the builtin exception classes.
func NewRegistry() *Registry {
	r := &Registry{
		classes: make(map[string]*Class),
		methods: make(map[string]*MethodDescriptor),
	}
	object := r.mustDefineClass(TypeObject, nil)
	exception := r.mustDefineClass("System.Exception", object)
	r.mustDefineClass("System.DivideByZeroException", exception)
	r.mustDefineClass("System.NullReferenceException", exception)
	return r
}

func (r *Registry) mustDefineClass(name string, super *Class) *Class {
	c, err := r.defineClass(name, super)
	if err != nil {
		panic(err)
	}
	return c
}

func (r *Registry) defineClass(name string, super *Class) (*Class, error) {
	if _, exists := r.classes[name]; exists {
		return nil, fmt.Errorf("duplicate class %q", name)
	}
	c := &Class{
		Name:      name,
		Super:     super,
		overrides: make(map[int]*MethodDescriptor),
		methods:   make(map[string]*MethodDescriptor),
	}
	r.classes[name] = c
	return c, nil
}

// DefineClass registers a class. superName may be empty, in which case
// the class derives from System.Object.
func (r *Registry) DefineClass(name, superName string) (*Class, error) {
	if err := r.checkMutable(); err != nil {
		return nil, err
	}
	super := r.classes[TypeObject]
	if superName != "" {
		s, ok := r.classes[CanonicalTypeName(superName)]
		if !ok {
			return nil, fmt.Errorf("class %q: unknown superclass %q", name, superName)
		}
		super = s
	}
	return r.defineClass(name, super)
}

// Class returns a registered class by name, or nil.
func (r *Registry) Class(name string) *Class {
	return r.classes[CanonicalTypeName(name)]
}

// DeclareMethod registers a method descriptor. For virtual methods a new
// override slot is allocated on the declaring class; for overrides the
// slot is inherited from the closest ancestor declaring the same
// signature, and its absence is an error. The method body (lowered or
// host) is attached separately.
func (r *Registry) DeclareMethod(declaring *Class, name string, params []Param, ret TypeRef, mod MethodModifier) (*MethodDescriptor, error) {
	if err := r.checkMutable(); err != nil {
		return nil, err
	}

	paramNames := make([]string, len(params))
	for i, p := range params {
		paramNames[i] = p.Type.Name
	}
	sig := MakeSignature(declaring.Name, name, paramNames, ret.Name)
	key := sig.Key()
	if _, exists := r.methods[key]; exists {
		return nil, fmt.Errorf("duplicate method %s", sig)
	}

	m := &MethodDescriptor{
		Declaring: declaring,
		Name:      name,
		Params:    params,
		Return:    ret,
		Modifier:  mod,
		Slot:      -1,
		sig:       sig,
	}
	if m.IsInstance() {
		// Instance methods receive the receiver as an implicit first
		// argument named "this".
		m.Params = append([]Param{{Name: "this", Type: TypeRef{Name: declaring.Name, Kind: KindObject}}}, params...)
	}

	switch mod {
	case ModVirtual:
		m.Slot = r.nextSlot
		r.nextSlot++
	case ModOverride:
		base := r.findSlot(declaring.Super, sig.slotKey())
		if base == nil {
			return nil, fmt.Errorf("method %s: override has no virtual base in superclass chain", sig)
		}
		m.Slot = base.Slot
	}
	if m.Slot >= 0 {
		declaring.overrides[m.Slot] = m
	}
	declaring.methods[sig.slotKey()] = m
	r.methods[key] = m
	return m, nil
}

// findSlot walks the superclass chain for a virtual or override method
// with the given slot key.
func (r *Registry) findSlot(from *Class, slotKey string) *MethodDescriptor {
	for c := from; c != nil; c = c.Super {
		if m, ok := c.methods[slotKey]; ok && m.Slot >= 0 {
			return m
		}
	}
	return nil
}

// AttachBody installs a lowered body on a declared method.
func (r *Registry) AttachBody(m *MethodDescriptor, body *LoweredBody) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if m.Host != nil {
		return fmt.Errorf("method %s: already has a host body", m.sig)
	}
	m.Body = body
	return nil
}

// AttachHost installs a Go builtin body on a declared method.
func (r *Registry) AttachHost(m *MethodDescriptor, fn HostFunc) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if m.Body != nil {
		return fmt.Errorf("method %s: already has a lowered body", m.sig)
	}
	m.Host = fn
	return nil
}

// Publish freezes the registry. Every declared method must carry a body;
// after Publish all mutation entry points fail and readers need no
// locking.
func (r *Registry) Publish() error {
	if r.published {
		return fmt.Errorf("registry already published")
	}
	for _, m := range r.methods {
		if m.Body == nil && m.Host == nil {
			return fmt.Errorf("method %s: declared but never lowered", m.sig)
		}
	}
	r.published = true
	return nil
}

// Published reports whether the registry has been frozen.
func (r *Registry) Published() bool { return r.published }

func (r *Registry) checkMutable() error {
	if r.published {
		return fmt.Errorf("registry is published and immutable")
	}
	return nil
}

// Methods returns all declared descriptors in no particular order.
func (r *Registry) Methods() []*MethodDescriptor {
	out := make([]*MethodDescriptor, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	return out
}

// Classes returns all registered classes in no particular order.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, c)
	}
	return out
}
