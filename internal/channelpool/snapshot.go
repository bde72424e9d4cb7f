package channelpool

import "sync/atomic"

// atomicSnapshot mirrors internal/registry's copy-on-write snapshot:
// Pool's writer side installs a full replacement map on every mutation,
// Get/Lookup read the current pointer with no lock.
type atomicSnapshot struct {
	v atomic.Value
}

func (s *atomicSnapshot) store(m map[string]ChannelEntry) {
	s.v.Store(m)
}

func (s *atomicSnapshot) load() map[string]ChannelEntry {
	m, _ := s.v.Load().(map[string]ChannelEntry)
	return m
}
