package image

import (
	"encoding/json"
	"fmt"

	"github.com/objectir/objectir/vm"
)

// ---------------------------------------------------------------------------
// JSON export
// ---------------------------------------------------------------------------
// A readable interchange form of the lowered program, for tooling that
// does not speak CBOR. Export only; images load from the wire form.

type jsonMethod struct {
	Signature string   `json:"signature"`
	Modifier  string   `json:"modifier"`
	Locals    []string `json:"locals,omitempty"`
	Instrs    []string `json:"instructions"`
}

type jsonClass struct {
	Name    string       `json:"name"`
	Super   string       `json:"super,omitempty"`
	Methods []jsonMethod `json:"methods,omitempty"`
}

type jsonImage struct {
	Classes []jsonClass `json:"classes"`
}

// ExportJSON renders a published registry's lowered methods as indented
// JSON, instructions in their source-mnemonic spelling.
func ExportJSON(reg *vm.Registry) ([]byte, error) {
	if !reg.Published() {
		return nil, fmt.Errorf("image: registry is not published")
	}

	byClass := make(map[string][]jsonMethod)
	for _, m := range sortedMethods(reg) {
		if m.Host != nil {
			continue
		}
		jm := jsonMethod{
			Signature: m.Signature().String(),
			Modifier:  m.Modifier.String(),
		}
		for _, p := range m.Body.Locals {
			jm.Locals = append(jm.Locals, fmt.Sprintf("%s: %s", p.Name, p.Type))
		}
		for _, in := range m.Body.Instrs {
			jm.Instrs = append(jm.Instrs, in.String())
		}
		byClass[m.Declaring.Name] = append(byClass[m.Declaring.Name], jm)
	}

	var out jsonImage
	for _, c := range sortedClasses(reg) {
		methods := byClass[c.Name]
		if len(methods) == 0 {
			continue
		}
		jc := jsonClass{Name: c.Name, Methods: methods}
		if c.Super != nil {
			jc.Super = c.Super.Name
		}
		out.Classes = append(out.Classes, jc)
	}

	return json.MarshalIndent(&out, "", "  ")
}
