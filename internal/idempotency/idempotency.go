package idempotency

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

const Header = "Idempotency-Key"

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 128

var ErrInProgress = errors.New("a request with this idempotency key is still in progress")

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Store remembers which order a client request key produced.
//
// Reserve claims key. When the key already completed it returns the stored result and reserved
// is false; when another request holds the key it returns ErrInProgress. A reserved key must be
// finished with Complete or Release.
type Store interface {
	Reserve(ctx context.Context, key string) (result string, reserved bool, err error)
	Complete(ctx context.Context, key, result string) error
	Release(ctx context.Context, key string) error
}

type entry struct {
	result    string
	done      bool
	expiresAt time.Time
}

// MemoryStore keeps keys in process. Entries expire after ttl.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Reserve(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		if !e.done {
			return "", false, ErrInProgress
		}
		return e.result, false, nil
	}
	s.entries[key] = entry{expiresAt: now.Add(s.ttl)}
	s.sweep(now)
	return "", true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{result: result, done: true, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
