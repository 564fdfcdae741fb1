package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders a method's lowered body as a numbered listing.
// Host methods render a single marker line.
func Disassemble(m *MethodDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.Modifier, m.sig)
	if m.Host != nil {
		b.WriteString("  <host>\n")
		return b.String()
	}
	for _, p := range m.Body.Locals {
		fmt.Fprintf(&b, "  local %s: %s\n", p.Name, p.Type)
	}
	b.WriteString(DisassembleBody(m.Body))
	return b.String()
}

// DisassembleBody renders just the instruction listing, one
// index-prefixed line per instruction.
func DisassembleBody(body *LoweredBody) string {
	var b strings.Builder
	for i, in := range body.Instrs {
		fmt.Fprintf(&b, "  %04d  %s\n", i, in)
	}
	return b.String()
}
