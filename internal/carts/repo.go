package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres Store. The per-user lock is a transaction-scoped
// advisory lock, so it is released by commit or rollback.
type Repo struct{ DB *pgxpool.Pool }

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, orders.ErrStoreUnavailable, err)
}

func (r *Repo) WithUserLock(ctx context.Context, userID string, fn func(tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr("begin cart tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "cart:"+userID); err != nil {
		return storeErr("lock cart", err)
	}
	if err := fn(&pgTx{tx: tx, userID: userID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit cart", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := loadCart(ctx, r.DB, userID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNoCart
	}
	return c, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadCart(ctx context.Context, q queryer, userID string) (*Cart, error) {
	c := &Cart{UserID: userID}
	err := q.QueryRow(ctx, `SELECT id, restaurant_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.RestaurantID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("load cart", err)
	}

	rows, err := q.Query(ctx, `SELECT menu_id, quantity, note FROM cart_items WHERE cart_id=$1 ORDER BY line_no`, c.ID)
	if err != nil {
		return nil, storeErr("load cart items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.MenuID, &it.Quantity, &it.Note); err != nil {
			return nil, storeErr("load cart items", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("load cart items", err)
	}
	return c, nil
}

type pgTx struct {
	tx     pgx.Tx
	userID string
}

func (t *pgTx) ActiveCart(ctx context.Context) (*Cart, error) {
	return loadCart(ctx, t.tx, t.userID)
}

func (t *pgTx) CreateCart(ctx context.Context, c *Cart) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO carts(id, user_id, restaurant_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.RestaurantID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return storeErr("create cart", err)
	}
	return nil
}

func (t *pgTx) DeleteCart(ctx context.Context, cartID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return storeErr("delete cart", err)
	}
	return nil
}

// SaveItems replaces the cart's lines with c.Items.
func (t *pgTx) SaveItems(ctx context.Context, c *Cart) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, c.ID); err != nil {
		return storeErr("save cart items", err)
	}
	for i, it := range c.Items {
		if _, err := t.tx.Exec(ctx, `INSERT INTO cart_items(cart_id, line_no, menu_id, quantity, note) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, i+1, it.MenuID, it.Quantity, it.Note); err != nil {
			return storeErr("save cart items", err)
		}
	}
	if _, err := t.tx.Exec(ctx, `UPDATE carts SET updated_at=$2 WHERE id=$1`, c.ID, time.Now().UTC()); err != nil {
		return storeErr("touch cart", err)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *orders.Order, events ...orders.Envelope) error {
	return orders.InsertTx(ctx, t.tx, o, events...)
}
