// Package gateway hands orders to an external payment processor through a
// signed redirect and settles them when the processor calls back.
package gateway

import "context"

// Host is the commerce platform that owns the orders. The gateway only calls
// into it; every method must be safe for concurrent use across orders.
type Host interface {
	// ResolveOrder loads the live order. A missing order is reported with an
	// error wrapping ErrOrderNotFound.
	ResolveOrder(ctx context.Context, id int64) (OrderRecord, error)
	MarkAwaitingPayment(ctx context.Context, order OrderRecord, note string) error
	// MarkPaidAndProcessing and ReduceStock report whether they changed the
	// order. A step that an earlier call already applied returns false.
	MarkPaidAndProcessing(ctx context.Context, order OrderRecord, note string) (bool, error)
	ReduceStock(ctx context.Context, order OrderRecord) (bool, error)
	OrderReceivedURL(order OrderRecord) string
}
