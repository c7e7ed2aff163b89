package transport

import (
	"sort"
	"sync"
)

// peerSet tracks open links.
type peerSet struct {
	mu    sync.Mutex
	peers map[string]struct{}
}

func newPeerSet() *peerSet {
	return &peerSet{peers: make(map[string]struct{})}
}

// add reports whether p was newly added.
func (s *peerSet) add(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[p]; ok {
		return false
	}
	s.peers[p] = struct{}{}
	return true
}

// remove reports whether p was present.
func (s *peerSet) remove(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[p]; !ok {
		return false
	}
	delete(s.peers, p)
	return true
}

func (s *peerSet) has(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.peers[p]
	return ok
}

func (s *peerSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// drain removes and returns every peer.
func (s *peerSet) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.peers))
	for p := range s.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	s.peers = make(map[string]struct{})
	return out
}
