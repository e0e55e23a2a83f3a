package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/outbox"
	"github.com/ariefcatur/go-food-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store. Per-order serialization is a row lock
// (SELECT ... FOR UPDATE) held for the duration of Mutate's transaction.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, restaurant_id, order_type, cart_id, status, total_cents,
	payment_token, payment_attempt, payment_requested_at, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, o *Order, events ...Envelope) error {
	err := postgres.WithTx(ctx, r.DB, func(tx pgx.Tx) error {
		return InsertTx(ctx, tx, o, events...)
	})
	if err != nil && !errors.Is(err, ErrStoreUnavailable) {
		return storeErr("create order", err)
	}
	return err
}

// InsertTx writes a new order, its lines and its events inside tx.
func InsertTx(ctx context.Context, tx pgx.Tx, o *Order, events ...Envelope) error {
	var cartID *string
	if p, ok := o.Payload.(CartPayload); ok && p.CartID != "" {
		cartID = &p.CartID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, restaurant_id, order_type, cart_id, status, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.RestaurantID, string(o.Type()), cartID, string(o.Status), o.TotalCents, o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return storeErr("insert order", err)
	}
	for i, it := range o.Items() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, menu_id, name, qty, price_cents, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i+1, it.MenuID, it.Name, it.Qty, it.PriceCents, it.Note,
		); err != nil {
			return storeErr("insert order item", err)
		}
	}
	return insertEvents(ctx, tx, events)
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []Envelope) error {
	for _, ev := range events {
		if err := outbox.Insert(ctx, tx, ev.EventID, ev.EventType, ev.Topic(), ev.CorrelationID, ev); err != nil {
			return storeErr("insert outbox", err)
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, storeErr("get order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return loadOrder(ctx, tx, id, false)
}

func (r *Repo) Mutate(ctx context.Context, id string, fn func(o *Order) ([]Envelope, error)) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, storeErr("mutate order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := loadOrder(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	events, err := fn(o)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 {
		var token *string
		if o.PaymentToken != "" {
			token = &o.PaymentToken
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, payment_token=$3, payment_attempt=$4, payment_requested_at=$5,
			    updated_at=GREATEST(updated_at, $6)
			WHERE id=$1`,
			o.ID, string(o.Status), token, o.PaymentAttempt, o.PaymentRequestedAt, o.UpdatedAt,
		); err != nil {
			return nil, storeErr("update order", err)
		}
		if err := insertEvents(ctx, tx, events); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit order", err)
	}
	return o, nil
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC LIMIT 100`, userID)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	defer rows.Close()

	var (
		out   []*Order
		heads []orderRow
		ids   []string
	)
	for rows.Next() {
		var h orderRow
		if err := h.scan(rows); err != nil {
			return nil, storeErr("list orders", err)
		}
		heads = append(heads, h)
		ids = append(ids, h.id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list orders", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	items, err := queryItems(ctx, r.DB, `WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, h := range heads {
		out = append(out, h.order(items[h.id]))
	}
	return out, nil
}

func (r *Repo) ListStalePending(ctx context.Context, requestedBefore time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status=$1 AND payment_requested_at < $2
		ORDER BY payment_requested_at LIMIT $3`, string(StatusPending), requestedBefore, limit)
	if err != nil {
		return nil, storeErr("list stale pending", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list stale pending", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type orderRow struct {
	id, userID, restaurantID, orderType, status string
	cartID, token                               *string
	total                                       int64
	attempt                                     int
	requestedAt                                 *time.Time
	createdAt, updatedAt                        time.Time
}

func (h *orderRow) scan(row pgx.Row) error {
	return row.Scan(&h.id, &h.userID, &h.restaurantID, &h.orderType, &h.cartID, &h.status, &h.total,
		&h.token, &h.attempt, &h.requestedAt, &h.createdAt, &h.updatedAt)
}

func (h *orderRow) order(items []Item) *Order {
	o := &Order{
		ID:                 h.id,
		UserID:             h.userID,
		RestaurantID:       h.restaurantID,
		Status:             Status(h.status),
		TotalCents:         h.total,
		PaymentAttempt:     h.attempt,
		PaymentRequestedAt: h.requestedAt,
		CreatedAt:          h.createdAt,
		UpdatedAt:          h.updatedAt,
	}
	if h.token != nil {
		o.PaymentToken = *h.token
	}
	switch {
	case OrderType(h.orderType) == TypeCheckout && len(items) > 0:
		o.Payload = CheckoutPayload{Line: items[0]}
	default:
		p := CartPayload{Items: items}
		if h.cartID != nil {
			p.CartID = *h.cartID
		}
		o.Payload = p
	}
	return o
}

func loadOrder(ctx context.Context, q queryer, id string, forUpdate bool) (*Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var h orderRow
	if err := h.scan(q.QueryRow(ctx, sql, id)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("load order", err)
	}
	items, err := queryItems(ctx, q, `WHERE order_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return h.order(items[id]), nil
}

func queryItems(ctx context.Context, q queryer, where string, arg any) (map[string][]Item, error) {
	rows, err := q.Query(ctx, `SELECT order_id, menu_id, name, qty, price_cents, note FROM order_items `+where+` ORDER BY order_id, line_no`, arg)
	if err != nil {
		return nil, storeErr("load order items", err)
	}
	defer rows.Close()

	out := map[string][]Item{}
	for rows.Next() {
		var orderID string
		var it Item
		if err := rows.Scan(&orderID, &it.MenuID, &it.Name, &it.Qty, &it.PriceCents, &it.Note); err != nil {
			return nil, storeErr("load order items", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("load order items", err)
	}
	return out, nil
}
