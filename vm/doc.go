// Package vm implements the ObjectIR execution core: a typed, stack-based
// intermediate-representation virtual machine.
//
// The package is organized around four components:
//
//   - Registry (registry.go): resolves type names to value kinds and method
//     signatures to unique MethodDescriptors, including override-slot
//     membership for virtual methods. Immutable after Publish.
//   - Lowering (lower.go): flattens a structured method body (sequences,
//     if/else, while, break, continue, throw) into a flat, jump-addressed
//     instruction list, verifying stack depth and per-slot kinds at every
//     branch and merge point.
//   - Engine (engine.go): interprets a lowered method against a per-frame
//     evaluation stack, local/argument slots and a program counter. Calls
//     run the callee's frame synchronously; thrown references unwind
//     through an explicit Outcome variant, never through Go panics.
//   - Dispatch (dispatch.go): static resolution by exact signature, and
//     virtual resolution by override-slot walk from the receiver's runtime
//     class upward.
//
// Published registries and lowered instruction lists are read-only, so any
// number of independent call stacks may interpret them from concurrent
// goroutines without locking.
package vm
