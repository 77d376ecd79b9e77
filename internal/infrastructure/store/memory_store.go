package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/customer"
	"github.com/example/pos-ledger/internal/domain/inventory"
	"github.com/example/pos-ledger/internal/domain/order"
	"github.com/example/pos-ledger/internal/domain/product"
	"github.com/example/pos-ledger/internal/domain/user"
)

var errNotLocked = errors.New("row not locked in this transaction")

// MemoryStore keeps everything in process. Transactions stage their writes and publish them on
// commit; row locks are per key and block until the holder's transaction ends.
type MemoryStore struct {
	mu        sync.RWMutex
	products  map[string]*product.Product
	customers map[string]*customer.Customer
	users     map[string]*user.User
	orders    map[string]*order.Order
	numbers   map[string]string // order number -> order id
	movements []*inventory.Movement
	sequences map[string]int
	events    []Event
	sent      map[string]bool

	locks *keyedLocks
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]*product.Product),
		customers: make(map[string]*customer.Customer),
		users:     make(map[string]*user.User),
		orders:    make(map[string]*order.Order),
		numbers:   make(map[string]string),
		sequences: make(map[string]int),
		sent:      make(map[string]bool),
		locks:     newKeyedLocks(),
	}
}

// PutProduct, PutCustomer and PutUser load catalog and directory data, which this module
// does not manage itself.
func (s *MemoryStore) PutProduct(p *product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p.Clone()
}

func (s *MemoryStore) PutCustomer(c *customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.customers[c.ID] = &cp
}

func (s *MemoryStore) PutUser(u *user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:        s,
		heldSet:  make(map[string]bool),
		products: make(map[string]*product.Product),
		orders:   make(map[string]*order.Order),
		inserted: make(map[string]string),
		seqs:     make(map[string]int),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.numbers[number]
	if !ok {
		return nil, apperr.NotFound("order", number)
	}
	return s.orders[id].Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if filter.Match(o) {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OrderDate.Equal(result[j].OrderDate) {
			return result[i].OrderDate.After(result[j].OrderDate)
		}
		return result[i].Number > result[j].Number
	})
	return paginate(result, filter.Page), nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product", id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) GetMovement(ctx context.Context, id string) (*inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.movements {
		if m.ID == id {
			return m.Clone(), nil
		}
	}
	return nil, apperr.NotFound("movement", id)
}

func (s *MemoryStore) ListMovements(ctx context.Context, filter MovementFilter) ([]*inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*inventory.Movement, 0)
	for _, m := range s.movements {
		if filter.Match(m) {
			result = append(result, m.Clone())
		}
	}
	return paginate(result, filter.Page), nil
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user", email)
}

func (s *MemoryStore) PendingEvents(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]Event, 0)
	for _, e := range s.events {
		if s.sent[e.ID] {
			continue
		}
		pending = append(pending, e)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *MemoryStore) MarkEventSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

// memTx implements Tx over MemoryStore.
type memTx struct {
	s       *MemoryStore
	held    []string
	heldSet map[string]bool

	products  map[string]*product.Product
	movements []*inventory.Movement
	orders    map[string]*order.Order
	inserted  map[string]string // number -> id, orders created in this tx
	seqs      map[string]int
	events    []Event
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.heldSet[key] {
		return nil
	}
	if err := tx.s.locks.acquire(ctx, key); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	tx.held = append(tx.held, key)
	tx.heldSet[key] = true
	return nil
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.s.locks.release(tx.held[i])
	}
	tx.held = nil
	tx.heldSet = map[string]bool{}
}

func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for number := range tx.inserted {
		if _, taken := s.numbers[number]; taken {
			return &apperr.ConflictError{Resource: "order_number", Key: number}
		}
	}

	for id, p := range tx.products {
		s.products[id] = p
	}
	s.movements = append(s.movements, tx.movements...)
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for number, id := range tx.inserted {
		s.numbers[number] = id
	}
	for day, seq := range tx.seqs {
		s.sequences[day] = seq
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (tx *memTx) GetUser(ctx context.Context, id string) (*user.User, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	u, ok := tx.s.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (tx *memTx) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	c, ok := tx.s.customers[id]
	if !ok {
		return nil, apperr.NotFound("customer", id)
	}
	cp := *c
	return &cp, nil
}

func (tx *memTx) LockProduct(ctx context.Context, id string) (*product.Product, error) {
	if err := tx.lock(ctx, "product:"+id); err != nil {
		return nil, err
	}
	if p, ok := tx.products[id]; ok {
		return p.Clone(), nil
	}
	p, err := tx.s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (tx *memTx) SaveProductStock(ctx context.Context, p *product.Product) error {
	if !tx.heldSet["product:"+p.ID] {
		return fmt.Errorf("save product %s: %w", p.ID, errNotLocked)
	}
	tx.products[p.ID] = p.Clone()
	return nil
}

func (tx *memTx) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	tx.movements = append(tx.movements, m.Clone())
	return nil
}

func (tx *memTx) NextOrderSequence(ctx context.Context, day string) (int, error) {
	if err := tx.lock(ctx, "seq:"+day); err != nil {
		return 0, err
	}
	seq, ok := tx.seqs[day]
	if !ok {
		tx.s.mu.RLock()
		seq = tx.s.sequences[day]
		tx.s.mu.RUnlock()
	}
	seq++
	tx.seqs[day] = seq
	return seq, nil
}

func (tx *memTx) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	if _, ok := tx.inserted[number]; ok {
		return true, nil
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	_, ok := tx.s.numbers[number]
	return ok, nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o *order.Order) error {
	exists, err := tx.OrderNumberExists(ctx, o.Number)
	if err != nil {
		return err
	}
	if exists {
		return &apperr.ConflictError{Resource: "order_number", Key: o.Number}
	}
	tx.orders[o.ID] = o.Clone()
	tx.inserted[o.Number] = o.ID
	// new rows are locked by their creator
	tx.heldSet["order:"+o.ID] = true
	return nil
}

func (tx *memTx) LockOrder(ctx context.Context, id string) (*order.Order, error) {
	if err := tx.lock(ctx, "order:"+id); err != nil {
		return nil, err
	}
	if o, ok := tx.orders[id]; ok {
		return o.Clone(), nil
	}
	return tx.s.GetOrder(ctx, id)
}

func (tx *memTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	if !tx.heldSet["order:"+o.ID] {
		return fmt.Errorf("update order %s: %w", o.ID, errNotLocked)
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memTx) AppendEvent(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error) {
	version := 0
	tx.s.mu.RLock()
	for _, e := range tx.s.events {
		if e.AggregateID == aggregateID {
			version++
		}
	}
	tx.s.mu.RUnlock()
	for _, e := range tx.events {
		if e.AggregateID == aggregateID {
			version++
		}
	}

	event, err := newEvent(aggregateID, aggregateType, eventType, data, version+1)
	if err != nil {
		return nil, err
	}
	tx.events = append(tx.events, *event)
	return event, nil
}

// keyedLocks hands out one context-aware mutex per key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(substr))
}
