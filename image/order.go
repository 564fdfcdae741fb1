package image

import (
	"sort"

	"github.com/objectir/objectir/vm"
)

// sortedClasses orders classes parents-first, then by name, so that a
// restore can define them in one forward pass and the canonical
// encoding is stable.
func sortedClasses(reg *vm.Registry) []*vm.Class {
	classes := reg.Classes()
	depth := func(c *vm.Class) int {
		d := 0
		for k := c.Super; k != nil; k = k.Super {
			d++
		}
		return d
	}
	sort.Slice(classes, func(i, j int) bool {
		di, dj := depth(classes[i]), depth(classes[j])
		if di != dj {
			return di < dj
		}
		return classes[i].Name < classes[j].Name
	})
	return classes
}

// sortedMethods orders methods by signature key.
func sortedMethods(reg *vm.Registry) []*vm.MethodDescriptor {
	methods := reg.Methods()
	sort.Slice(methods, func(i, j int) bool {
		return methods[i].Signature().Key() < methods[j].Signature().Key()
	})
	return methods
}
