package registry

import "sync/atomic"

// atomicSnapshot gives registry reads a lock-free path: the writer actor
// installs a full replacement map on every mutation (copy-on-write),
// readers load the current pointer with no synchronization beyond the
// atomic itself.
type atomicSnapshot struct {
	v atomic.Value
}

func (s *atomicSnapshot) store(m map[string]TenantRecord) {
	s.v.Store(m)
}

func (s *atomicSnapshot) load() map[string]TenantRecord {
	m, _ := s.v.Load().(map[string]TenantRecord)
	return m
}
