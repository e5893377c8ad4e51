package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/gateway"
	"github.com/noah-isme/paybridge/internal/obs"
)

// DB is the subset of pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres is the order host backed by the orders schema in migrations/.
type Postgres struct {
	DB           DB
	ReceivedBase string
}

const selectOrder = `
SELECT id, order_key, status, total::text, currency,
       billing_first_name, billing_last_name, billing_address_1, billing_address_2,
       billing_city, billing_state, billing_postcode, billing_country,
       billing_email, billing_phone, paid_at, stock_reduced
FROM orders
WHERE id = $1`

// ResolveOrder loads the order with id.
func (p *Postgres) ResolveOrder(ctx context.Context, id int64) (gateway.OrderRecord, error) {
	ctx = obs.WithDBOperation(ctx, "orders.resolve")
	return p.resolve(p.DB.QueryRow(ctx, selectOrder, id))
}

func (p *Postgres) resolve(row pgx.Row) (gateway.OrderRecord, error) {
	var (
		o      gateway.OrderRecord
		total  string
		paidAt *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Key, &o.Status, &total, &o.Currency,
		&o.Billing.FirstName, &o.Billing.LastName, &o.Billing.Address1, &o.Billing.Address2,
		&o.Billing.City, &o.Billing.State, &o.Billing.Postcode, &o.Billing.Country,
		&o.Billing.Email, &o.Billing.Phone, &paidAt, &o.StockReduced,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.OrderRecord{}, gateway.ErrOrderNotFound
	}
	if err != nil {
		return gateway.OrderRecord{}, fmt.Errorf("store: load order: %w", err)
	}
	o.Total, err = decimal.NewFromString(total)
	if err != nil {
		return gateway.OrderRecord{}, fmt.Errorf("store: order %d total %q: %w", o.ID, total, err)
	}
	o.PaidAt = paidAt
	return o, nil
}

// MarkAwaitingPayment moves an unpaid order to pending-payment and records note.
func (p *Postgres) MarkAwaitingPayment(ctx context.Context, order gateway.OrderRecord, note string) error {
	ctx = obs.WithDBOperation(ctx, "orders.mark_awaiting_payment")
	return p.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND paid_at IS NULL AND status NOT IN ($3, $4)`,
			order.ID, gateway.StatusPendingPayment, gateway.StatusProcessing, gateway.StatusCompleted)
		if err != nil {
			return fmt.Errorf("store: mark awaiting payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			if _, err := p.resolve(tx.QueryRow(ctx, selectOrder, order.ID)); err != nil {
				return err
			}
			return gateway.ErrOrderAlreadyPaid
		}
		return addNote(ctx, tx, order.ID, note)
	})
}

// MarkPaidAndProcessing records payment once. Orders that already carry a
// payment are left untouched and report false.
func (p *Postgres) MarkPaidAndProcessing(ctx context.Context, order gateway.OrderRecord, note string) (bool, error) {
	ctx = obs.WithDBOperation(ctx, "orders.mark_paid")
	var changed bool
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE orders SET status = $2, paid_at = now(), updated_at = now()
WHERE id = $1 AND paid_at IS NULL`,
			order.ID, gateway.StatusProcessing)
		if err != nil {
			return fmt.Errorf("store: mark paid: %w", err)
		}
		if changed = tag.RowsAffected() > 0; !changed {
			return nil
		}
		return addNote(ctx, tx, order.ID, note)
	})
	return changed && err == nil, err
}

// ReduceStock decrements managed product stock by the order's quantities.
// The stock_reduced flag guarantees it happens once per order.
func (p *Postgres) ReduceStock(ctx context.Context, order gateway.OrderRecord) (bool, error) {
	ctx = obs.WithDBOperation(ctx, "orders.reduce_stock")
	var changed bool
	err := p.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE orders SET stock_reduced = TRUE, updated_at = now()
WHERE id = $1 AND stock_reduced = FALSE`, order.ID)
		if err != nil {
			return fmt.Errorf("store: flag stock reduced: %w", err)
		}
		if changed = tag.RowsAffected() > 0; !changed {
			return nil
		}
		if _, err := tx.Exec(ctx, `
UPDATE products p
SET stock_quantity = p.stock_quantity - i.qty, updated_at = now()
FROM (
    SELECT product_id, SUM(quantity) AS qty
    FROM order_items
    WHERE order_id = $1 AND product_id IS NOT NULL
    GROUP BY product_id
) i
WHERE p.id = i.product_id AND p.stock_quantity IS NOT NULL`, order.ID); err != nil {
			return fmt.Errorf("store: reduce stock: %w", err)
		}
		return addNote(ctx, tx, order.ID, "Stock levels reduced.")
	})
	return changed && err == nil, err
}

// OrderReceivedURL links to the storefront's order-received page.
func (p *Postgres) OrderReceivedURL(order gateway.OrderRecord) string {
	return ReceivedURL(p.ReceivedBase, order)
}

// InsertPaymentEvent persists an audit event.
func (p *Postgres) InsertPaymentEvent(ctx context.Context, event events.Event) (events.Event, error) {
	ctx = obs.WithDBOperation(ctx, "payment_events.insert")
	_, err := p.DB.Exec(ctx, `
INSERT INTO payment_events (id, topic, order_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Topic, event.OrderID, event.Payload, event.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("store: insert payment event: %w", err)
	}
	return event, nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func addNote(ctx context.Context, tx pgx.Tx, orderID int64, note string) error {
	if note == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`, orderID, note); err != nil {
		return fmt.Errorf("store: add order note: %w", err)
	}
	return nil
}
