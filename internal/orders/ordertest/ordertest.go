// Package ordertest provides in-memory fakes of the orders ports.
package ordertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
)

// MemStore is an orders.Store that serializes Mutate per order id.
type MemStore struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
	locks  map[string]*sync.Mutex

	// Err, when set, is returned by every call.
	Err    error
	Events []orders.Envelope
}

func NewMemStore() *MemStore {
	return &MemStore{orders: map[string]*orders.Order{}, locks: map[string]*sync.Mutex{}}
}

func (s *MemStore) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemStore) Create(_ context.Context, o *orders.Order, events ...orders.Envelope) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s exists", o.ID)
	}
	s.orders[o.ID] = o.Clone()
	s.Events = append(s.Events, events...)
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*orders.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemStore) ListByUser(_ context.Context, userID string) ([]*orders.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*orders.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) Mutate(_ context.Context, id string, fn func(o *orders.Order) ([]orders.Envelope, error)) (*orders.Order, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	cur, ok := s.orders[id]
	s.mu.Unlock()
	if !ok {
		return nil, orders.ErrNotFound
	}
	o := cur.Clone()
	events, err := fn(o)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		s.mu.Lock()
		s.orders[id] = o.Clone()
		s.Events = append(s.Events, events...)
		s.mu.Unlock()
	}
	return o, nil
}

func (s *MemStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]string, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.Status == orders.StatusPending && o.PaymentRequestedAt != nil && o.PaymentRequestedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Put stores o as-is, bypassing the state machine.
func (s *MemStore) Put(o *orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o.Clone()
}

// EventsOf returns the event types recorded for one order, in commit order.
func (s *MemStore) EventsOf(orderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.Events {
		if e.CorrelationID == orderID {
			out = append(out, e.EventType)
		}
	}
	return out
}

// FakeGateway issues one deterministic session per (order, attempt).
type FakeGateway struct {
	mu       sync.Mutex
	Statuses map[string]orders.PaymentStatus // by session token
	Calls    int
	Expired  []string // tokens passed to ExpireSession

	CreateErr error
	QueryErr  error
	ExpireErr error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Statuses: map[string]orders.PaymentStatus{}}
}

func (g *FakeGateway) CreateSession(_ context.Context, o *orders.Order, attempt int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls++
	if g.CreateErr != nil {
		return "", g.CreateErr
	}
	tok := fmt.Sprintf("cs_%s_%d", o.ID, attempt)
	if _, ok := g.Statuses[tok]; !ok {
		g.Statuses[tok] = orders.PaymentCreated
	}
	return tok, nil
}

func (g *FakeGateway) QueryStatus(_ context.Context, o *orders.Order) (orders.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.QueryErr != nil {
		return "", g.QueryErr
	}
	st, ok := g.Statuses[o.PaymentToken]
	if !ok {
		return orders.PaymentCreated, nil
	}
	return st, nil
}

// Set records the gateway-side status of a session.
func (g *FakeGateway) ExpireSession(_ context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ExpireErr != nil {
		return g.ExpireErr
	}
	g.Expired = append(g.Expired, token)
	if g.Statuses[token] != orders.PaymentSettled {
		g.Statuses[token] = orders.PaymentExpired
	}
	return nil
}

// ExpiredTokens returns a copy of the tokens expired so far.
func (g *FakeGateway) ExpiredTokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Expired...)
}

func (g *FakeGateway) Set(token string, st orders.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[token] = st
}

// FakeExpiry tracks armed expiry records.
type FakeExpiry struct {
	mu    sync.Mutex
	Armed map[string]time.Duration
	Err   error
}

func NewFakeExpiry() *FakeExpiry { return &FakeExpiry{Armed: map[string]time.Duration{}} }

func (e *FakeExpiry) Arm(_ context.Context, orderID string, ttl time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Armed[orderID] = ttl
	return nil
}

func (e *FakeExpiry) Disarm(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.Armed, orderID)
	return nil
}

func (e *FakeExpiry) IsArmed(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.Armed[orderID]
	return ok
}

// FakeCatalog serves menu items from memory.
type FakeCatalog struct {
	mu    sync.Mutex
	Items map[string]orders.MenuItem
}

func NewFakeCatalog(items ...orders.MenuItem) *FakeCatalog {
	c := &FakeCatalog{Items: map[string]orders.MenuItem{}}
	for _, m := range items {
		c.Items[m.ID] = m
	}
	return c
}

func (c *FakeCatalog) MenuItem(_ context.Context, menuID string) (orders.MenuItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.Items[menuID]
	if !ok {
		return orders.MenuItem{}, fmt.Errorf("%w: %s", orders.ErrPriceUnavailable, menuID)
	}
	return m, nil
}

func (c *FakeCatalog) SetPrice(menuID string, cents int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.Items[menuID]
	m.PriceCents = cents
	c.Items[menuID] = m
}

// NewService wires a Service over fresh fakes.
func NewService(items ...orders.MenuItem) (*orders.Service, *MemStore, *FakeGateway, *FakeExpiry, *FakeCatalog) {
	st, gw, ex, cat := NewMemStore(), NewFakeGateway(), NewFakeExpiry(), NewFakeCatalog(items...)
	svc := &orders.Service{
		Store:       st,
		Expiry:      ex,
		Gateway:     gw,
		Catalog:     cat,
		ServiceName: "order-service",
		Window:      15 * time.Minute,
		SweepGrace:  time.Minute,
	}
	return svc, st, gw, ex, cat
}
