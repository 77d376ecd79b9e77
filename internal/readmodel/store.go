package readmodel

import (
	"sort"
	"sync"
)

// Store holds the projected views in memory. It also remembers the last event version applied
// per aggregate so redelivered events can be skipped.
type Store struct {
	mu       sync.RWMutex
	stock    map[string]*StockLevel
	orders   map[string]*OrderView
	versions map[string]int
}

func NewStore() *Store {
	return &Store{
		stock:    make(map[string]*StockLevel),
		orders:   make(map[string]*OrderView),
		versions: make(map[string]int),
	}
}

func (s *Store) Stock(productID string) (*StockLevel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.stock[productID]
	if !ok {
		return nil, false
	}
	cp := *sl
	return &cp, true
}

func (s *Store) PutStock(sl *StockLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sl
	s.stock[sl.ProductID] = &cp
}

// LowStock returns every product currently under its minimum, by product id.
func (s *Store) LowStock() []*StockLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*StockLevel, 0)
	for _, sl := range s.stock {
		if sl.LowStock {
			cp := *sl
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result
}

func (s *Store) Order(id string) (*OrderView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (s *Store) PutOrder(o *OrderView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

// Advance records version as applied for aggregateID. It returns false when the version
// was already applied.
func (s *Store) Advance(aggregateID string, version int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > 0 && version <= s.versions[aggregateID] {
		return false
	}
	s.versions[aggregateID] = version
	return true
}

func (s *Store) Version(aggregateID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[aggregateID]
}
