package repository

import (
	"sync"
	"time"
)

// SignatureStore tracks transaction signatures that already produced a
// completion report, so a re-subscribe after a reconnect does not forward
// the same payment twice.
type SignatureStore interface {
	Seen(signature string) bool
	MarkForwarded(signature string)
}

// InMemorySignatureStore is a time-windowed set. Entries expire after the
// TTL and are pruned on insert, which bounds the map by the event rate
// within one window. Transient by design: the fulfillment service remains
// the durable deduplication point via the signature-as-reference field.
type InMemorySignatureStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewInMemorySignatureStore(ttl time.Duration) *InMemorySignatureStore {
	return &InMemorySignatureStore{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *InMemorySignatureStore) Seen(signature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[signature]
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		delete(s.entries, signature)
		return false
	}
	return true
}

func (s *InMemorySignatureStore) MarkForwarded(signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for sig, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, sig)
		}
	}
	s.entries[signature] = now.Add(s.ttl)
}
