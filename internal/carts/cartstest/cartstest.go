// Package cartstest provides an in-memory carts.Store for tests.
package cartstest

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/go-food-orders/internal/carts"
	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/ariefcatur/go-food-orders/internal/orders/ordertest"
)

// MemStore keeps one cart per user. WithUserLock restores the user's cart
// when fn fails, like a rolled back transaction.
type MemStore struct {
	mu     sync.Mutex
	carts  map[string]*carts.Cart
	locks  map[string]*sync.Mutex
	orders *ordertest.MemStore
}

func NewMemStore(orderStore *ordertest.MemStore) *MemStore {
	return &MemStore{carts: map[string]*carts.Cart{}, locks: map[string]*sync.Mutex{}, orders: orderStore}
}

func clone(c *carts.Cart) *carts.Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]carts.Item(nil), c.Items...)
	return &cp
}

func (s *MemStore) WithUserLock(_ context.Context, userID string, fn func(tx carts.Tx) error) error {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	snapshot := clone(s.carts[userID])
	s.mu.Unlock()

	if err := fn(&memTx{s: s, userID: userID}); err != nil {
		s.mu.Lock()
		if snapshot == nil {
			delete(s.carts, userID)
		} else {
			s.carts[userID] = snapshot
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemStore) Get(_ context.Context, userID string) (*carts.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return nil, carts.ErrNoCart
	}
	return clone(c), nil
}

// Len is the number of open carts.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

type memTx struct {
	s      *MemStore
	userID string
}

func (t *memTx) ActiveCart(context.Context) (*carts.Cart, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return clone(t.s.carts[t.userID]), nil
}

func (t *memTx) CreateCart(_ context.Context, c *carts.Cart) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.carts[t.userID]; ok {
		return errors.New("duplicate key value violates unique constraint \"carts_user_id_key\"")
	}
	t.s.carts[t.userID] = clone(c)
	return nil
}

func (t *memTx) DeleteCart(_ context.Context, cartID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if c, ok := t.s.carts[t.userID]; ok && c.ID == cartID {
		delete(t.s.carts, t.userID)
	}
	return nil
}

func (t *memTx) SaveItems(_ context.Context, c *carts.Cart) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.carts[t.userID] = clone(c)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *orders.Order, events ...orders.Envelope) error {
	return t.s.orders.Create(ctx, o, events...)
}
