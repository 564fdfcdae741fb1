// Package image serializes published registries: a canonical CBOR wire
// form for whole images, content hashes for individual methods, and a
// sqlite-backed content store keyed by those hashes.
package image

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/objectir/objectir/vm"
)

// WireVersion is bumped on any incompatible wire change.
const WireVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ---------------------------------------------------------------------------
// Wire structs
// ---------------------------------------------------------------------------
// Canonical encoding keeps the byte form deterministic, so images and
// method hashes are reproducible across hosts.

// Image is the serialized form of a published registry. Host-implemented
// builtins are not carried; decoding re-registers them.
type Image struct {
	Version int          `cbor:"1,keyasint"`
	Classes []WireClass  `cbor:"2,keyasint"`
	Methods []WireMethod `cbor:"3,keyasint"`
}

// WireClass records one class and its superclass edge.
type WireClass struct {
	Name  string `cbor:"1,keyasint"`
	Super string `cbor:"2,keyasint,omitempty"`
}

// WireMethod records one declared method and its lowered body.
type WireMethod struct {
	Declaring string      `cbor:"1,keyasint"`
	Name      string      `cbor:"2,keyasint"`
	Modifier  int         `cbor:"3,keyasint"`
	Params    []WireParam `cbor:"4,keyasint,omitempty"`
	Return    string      `cbor:"5,keyasint"`
	Locals    []WireParam `cbor:"6,keyasint,omitempty"`
	Instrs    []WireInstr `cbor:"7,keyasint,omitempty"`
}

// WireParam is a named parameter or local declaration.
type WireParam struct {
	Name string `cbor:"1,keyasint"`
	Type string `cbor:"2,keyasint"`
}

// WireInstr is one lowered instruction. Unused operand fields encode as
// absent; jump targets are instruction indices.
type WireInstr struct {
	Op     uint8    `cbor:"1,keyasint"`
	Sym    string   `cbor:"2,keyasint,omitempty"`
	Int    int64    `cbor:"3,keyasint,omitempty"`
	Float  float64  `cbor:"4,keyasint,omitempty"`
	Str    string   `cbor:"5,keyasint,omitempty"`
	Ch     int32    `cbor:"6,keyasint,omitempty"`
	Type   string   `cbor:"7,keyasint,omitempty"`
	Sig    *WireSig `cbor:"8,keyasint,omitempty"`
	Target int      `cbor:"9,keyasint,omitempty"`
	Line   int      `cbor:"10,keyasint,omitempty"`
}

// WireSig is a call-site signature.
type WireSig struct {
	Declaring string   `cbor:"1,keyasint"`
	Name      string   `cbor:"2,keyasint"`
	Params    []string `cbor:"3,keyasint,omitempty"`
	Return    string   `cbor:"4,keyasint"`
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Snapshot converts a published registry into its wire form.
func Snapshot(reg *vm.Registry) (*Image, error) {
	if !reg.Published() {
		return nil, fmt.Errorf("image: registry is not published")
	}
	img := &Image{Version: WireVersion}

	for _, c := range sortedClasses(reg) {
		wc := WireClass{Name: c.Name}
		if c.Super != nil {
			wc.Super = c.Super.Name
		}
		img.Classes = append(img.Classes, wc)
	}
	for _, m := range sortedMethods(reg) {
		if m.Host != nil {
			// Builtins are re-registered at decode time.
			continue
		}
		img.Methods = append(img.Methods, snapshotMethod(m))
	}
	return img, nil
}

func snapshotMethod(m *vm.MethodDescriptor) WireMethod {
	wm := WireMethod{
		Declaring: m.Declaring.Name,
		Name:      m.Name,
		Modifier:  int(m.Modifier),
		Return:    m.Return.Name,
	}
	params := m.Params
	if m.IsInstance() {
		// The implicit receiver is reconstructed at declaration time.
		params = params[1:]
	}
	for _, p := range params {
		wm.Params = append(wm.Params, WireParam{Name: p.Name, Type: p.Type.Name})
	}
	for _, p := range m.Body.Locals {
		wm.Locals = append(wm.Locals, WireParam{Name: p.Name, Type: p.Type.Name})
	}
	for _, in := range m.Body.Instrs {
		wi := WireInstr{
			Op:     uint8(in.Op),
			Sym:    in.Sym,
			Int:    in.Int,
			Float:  in.Float,
			Str:    in.Str,
			Ch:     int32(in.Ch),
			Type:   in.Type,
			Target: in.Target,
			Line:   in.Pos.Line,
		}
		if in.Sig != nil {
			wi.Sig = &WireSig{
				Declaring: in.Sig.DeclaringType,
				Name:      in.Sig.Name,
				Params:    in.Sig.Params,
				Return:    in.Sig.Return,
			}
		}
		wm.Instrs = append(wm.Instrs, wi)
	}
	return wm
}

// Marshal serializes an image to canonical CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an image from CBOR bytes.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != WireVersion {
		return nil, fmt.Errorf("image: wire version %d, want %d", img.Version, WireVersion)
	}
	return &img, nil
}

// MarshalMethod serializes one method to canonical CBOR bytes; it is the
// preimage for MethodHash.
func MarshalMethod(m *vm.MethodDescriptor) ([]byte, error) {
	if m.Host != nil {
		return nil, fmt.Errorf("image: %s is host-implemented", m.Signature())
	}
	return cborEncMode.Marshal(snapshotMethod(m))
}

// MethodHash returns the content hash of a method's canonical encoding.
func MethodHash(m *vm.MethodDescriptor) ([32]byte, error) {
	data, err := MarshalMethod(m)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Restore rebuilds a published registry from an image: builtins first,
// then the image's classes and methods.
func Restore(img *Image) (*vm.Registry, error) {
	reg := vm.NewRegistry()
	if err := vm.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}

	// Classes are ordered parents-first by Snapshot; pre-registered
	// System classes appear in the image too and are skipped.
	for _, wc := range img.Classes {
		if reg.Class(wc.Name) != nil {
			continue
		}
		if _, err := reg.DefineClass(wc.Name, wc.Super); err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
	}

	type pending struct {
		wm   WireMethod
		decl *vm.MethodDescriptor
	}
	var bodies []pending

	// Overrides after their virtual bases, mirroring the loader.
	for pass := 0; pass < 2; pass++ {
		for _, wm := range img.Methods {
			isOverride := vm.MethodModifier(wm.Modifier) == vm.ModOverride
			if (pass == 1) != isOverride {
				continue
			}
			c := reg.Class(wm.Declaring)
			if c == nil {
				return nil, fmt.Errorf("image: method %s.%s: unknown class", wm.Declaring, wm.Name)
			}
			params := make([]vm.Param, len(wm.Params))
			for i, p := range wm.Params {
				params[i] = vm.Param{Name: p.Name, Type: vm.MakeTypeRef(p.Type)}
			}
			m, err := reg.DeclareMethod(c, wm.Name, params, vm.MakeTypeRef(wm.Return), vm.MethodModifier(wm.Modifier))
			if err != nil {
				return nil, fmt.Errorf("image: %w", err)
			}
			bodies = append(bodies, pending{wm: wm, decl: m})
		}
	}

	for _, pb := range bodies {
		body := &vm.LoweredBody{}
		for _, p := range pb.wm.Locals {
			body.Locals = append(body.Locals, vm.Param{Name: p.Name, Type: vm.MakeTypeRef(p.Type)})
		}
		for _, wi := range pb.wm.Instrs {
			in := vm.Instruction{
				Op:     vm.Opcode(wi.Op),
				Sym:    wi.Sym,
				Int:    wi.Int,
				Float:  wi.Float,
				Str:    wi.Str,
				Ch:     rune(wi.Ch),
				Type:   wi.Type,
				Target: wi.Target,
				Pos:    vm.Position{Line: wi.Line},
			}
			if wi.Sig != nil {
				sig := vm.MakeSignature(wi.Sig.Declaring, wi.Sig.Name, wi.Sig.Params, wi.Sig.Return)
				in.Sig = &sig
			}
			body.Instrs = append(body.Instrs, in)
		}
		if err := reg.AttachBody(pb.decl, body); err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
	}

	if err := reg.Publish(); err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	return reg, nil
}
