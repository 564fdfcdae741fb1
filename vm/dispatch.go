package vm

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// ResolveStatic finds the unique descriptor for an exact signature.
func (e *Engine) ResolveStatic(sig Signature) (*MethodDescriptor, error) {
	sig = MakeSignature(sig.DeclaringType, sig.Name, sig.Params, sig.Return)
	m, ok := e.reg.methods[sig.Key()]
	if !ok {
		return nil, &MethodNotFoundError{Sig: sig}
	}
	return m, nil
}

// ResolveVirtual selects the method a callvirt on receiver runs. The
// statically named method supplies the override slot; the walk starts
// at the receiver's dynamic class and climbs the superclass chain,
// taking the first override it meets. Methods without a slot (statics
// named through callvirt) resolve exactly.
func (e *Engine) ResolveVirtual(sig Signature, receiver Value) (*MethodDescriptor, error) {
	static, err := e.ResolveStatic(sig)
	if err != nil {
		return nil, err
	}
	if static.Slot < 0 {
		return static, nil
	}

	ref := receiver.Ref()
	if ref == nil {
		return nil, &NullReferenceError{Sig: static.sig}
	}
	for c := ref.Class; c != nil; c = c.Super {
		if m, ok := c.Overrides(static.Slot); ok {
			return m, nil
		}
	}
	// The receiver's chain never reaches the declaring class. The static
	// target is still a valid body for the slot.
	return static, nil
}
