package nucleus

// Grant adds c to v's capability set. Idempotent: granting a capability v
// already holds succeeds without effect.
func (s *SystemState) Grant(v VMID, c Capability) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	s.grantCapability(v, c)
	return nil
}

// Revoke removes c from v's capability set. Idempotent: revoking a
// capability v does not hold succeeds without effect.
func (s *SystemState) Revoke(v VMID, c Capability) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	s.revokeCapability(v, c)
	return nil
}

// Require returns an error unless v holds c. This is the gate every other
// capability-checked operation in this package calls before proceeding.
func (s *SystemState) Require(v VMID, c Capability) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, c) {
		return errCapability(v, c)
	}
	return nil
}

// Check reports whether v holds c, without erroring when v is unknown.
func (s *SystemState) Check(v VMID, c Capability) bool {
	return s.hasCapability(v, c)
}

// GetAll returns every capability v currently holds.
func (s *SystemState) GetAll(v VMID) ([]Capability, error) {
	if !s.exists(v) {
		return nil, errVMNotFound(v)
	}
	set := s.caps[v]
	out := make([]Capability, 0, len(set))
	for _, c := range AllCapabilities {
		if _, ok := set[c]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Transfer grants c to dst and, if move is true, revokes it from src. src
// must hold c before the transfer — Transfer conveys a capability src
// already has, it never fabricates one. Both VMs must exist, and the
// transfer always grants before it revokes, so a failure partway through
// never leaves neither VM holding c.
func (s *SystemState) Transfer(src, dst VMID, c Capability, move bool) error {
	if !s.exists(src) {
		return errVMNotFound(src)
	}
	if !s.exists(dst) {
		return errVMNotFound(dst)
	}
	if !s.hasCapability(src, c) {
		return errCapability(src, c)
	}
	s.grantCapability(dst, c)
	if move {
		s.revokeCapability(src, c)
	}
	return nil
}
