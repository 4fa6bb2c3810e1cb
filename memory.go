package nucleus

// Map installs a new guest-physical memory region for v. It requires
// CapMapMemory and enforces the non-interference invariant: the new
// region's guest range must not overlap any existing region belonging to
// v, and its host-backing range must not overlap any region belonging to
// any VM.
func (s *SystemState) Map(v VMID, guestBase GPA, length, hostBacking uint64, perm Protection) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, CapMapMemory) {
		return errCapability(v, CapMapMemory)
	}
	if length == 0 {
		return errMemory(v, "region length must be non-zero")
	}

	region := MemoryRegion{
		VMID:        v,
		GuestBase:   guestBase,
		Length:      length,
		HostBacking: hostBacking,
		Protection:  perm,
	}

	for _, existing := range s.mem[v] {
		if region.overlapsGuest(existing) {
			return errMemory(v, "guest range overlaps an existing region of this VM")
		}
	}
	// Deliberately not skipping other == v: this also rejects a VM
	// aliasing its own host backing across two regions. spec.md leaves
	// same-VM backing aliasing implementation-defined; this nucleus
	// takes the stricter reading rather than special-casing it.
	for other, regions := range s.mem {
		for _, existing := range regions {
			if region.overlapsBacking(existing) {
				return errMemory(v, "host backing range overlaps a region owned by "+other.String())
			}
		}
	}

	s.mem[v] = append(s.mem[v], region)
	return nil
}

// Unmap removes the region of v spanning [guestBase, guestBase+length). It
// requires CapMapMemory and requires an exact match of both base and length
// against an existing region; partial unmaps are out of scope and fail with
// MemoryError, as does a base with no region at all.
func (s *SystemState) Unmap(v VMID, guestBase GPA, length uint64) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	if !s.hasCapability(v, CapMapMemory) {
		return errCapability(v, CapMapMemory)
	}

	regions := s.mem[v]
	for i, r := range regions {
		if r.GuestBase == guestBase {
			if r.Length != length {
				return errMemory(v, "unmap length does not exactly match the mapped region; partial unmaps are unsupported")
			}
			s.mem[v] = append(regions[:i], regions[i+1:]...)
			return nil
		}
	}
	return errMemory(v, "no region mapped at the given guest base")
}

// Regions returns every memory region currently owned by v.
func (s *SystemState) Regions(v VMID) ([]MemoryRegion, error) {
	if !s.exists(v) {
		return nil, errVMNotFound(v)
	}
	out := make([]MemoryRegion, len(s.mem[v]))
	copy(out, s.mem[v])
	return out, nil
}

// ReleaseAll removes every memory region owned by v, leaving v mapped to
// no guest-physical address space. It requires no capability: it is the
// cleanup counterpart to Destroy and to a VM voluntarily relinquishing
// its memory before re-initialization.
func (s *SystemState) ReleaseAll(v VMID) error {
	if !s.exists(v) {
		return errVMNotFound(v)
	}
	delete(s.mem, v)
	return nil
}
