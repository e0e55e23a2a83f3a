package kitchen

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepo struct{ DB *pgxpool.Pool }

func (r *TicketRepo) Insert(ctx context.Context, t Ticket) (bool, error) {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return false, err
	}
	tag, err := r.DB.Exec(ctx, `
		INSERT INTO kitchen_tickets(order_id, restaurant_id, event_id, items, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`,
		t.OrderID, t.RestaurantID, t.EventID, items, t.ReceivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
