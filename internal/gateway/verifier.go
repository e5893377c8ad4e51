package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/obs"
)

// Locker serialises settlement of a single order across replicas.
// lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// VerifierConfig wires a Verifier.
type VerifierConfig struct {
	Host    Host
	Secret  string
	Locker  Locker
	LockTTL time.Duration
	Title   string
	Events  Emitter
	Logger  zerolog.Logger
}

// Verifier authenticates processor callbacks and settles paid orders.
type Verifier struct {
	host    Host
	signer  Signer
	locker  Locker
	lockTTL time.Duration
	title   string
	events  Emitter
	logger  zerolog.Logger
}

// VerifiedOrderUpdate pairs an authenticated callback with the live order.
type VerifiedOrderUpdate struct {
	Order    OrderRecord
	Callback CallbackResult
}

// Paid reports whether the processor confirmed payment.
func (u VerifiedOrderUpdate) Paid() bool {
	return u.Callback.Paid()
}

// Outcome describes a settled callback.
type Outcome struct {
	OrderID     int64
	RedirectURL string
	// AlreadyApplied is set when an earlier callback had settled the order.
	AlreadyApplied bool
}

// NewVerifier validates cfg and returns a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Host == nil {
		return nil, errors.New("gateway: host is required")
	}
	signer, err := NewSigner(cfg.Secret)
	if err != nil {
		return nil, err
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = "Custom Payment Gateway"
	}
	return &Verifier{
		host:    cfg.Host,
		signer:  signer,
		locker:  cfg.Locker,
		lockTTL: ttl,
		title:   title,
		events:  cfg.Events,
		logger:  cfg.Logger,
	}, nil
}

// Verify authenticates raw against signature, decodes it and resolves the
// order it names. The callback is returned alongside any error raised after
// decoding.
func (v *Verifier) Verify(ctx context.Context, raw, signature string) (VerifiedOrderUpdate, error) {
	if strings.TrimSpace(raw) == "" || strings.TrimSpace(signature) == "" {
		return VerifiedOrderUpdate{}, ErrMissingFields
	}
	if !v.signer.Verify(raw, signature) {
		return VerifiedOrderUpdate{}, ErrSignatureInvalid
	}
	cb, err := DecodeCallback(raw)
	if err != nil {
		return VerifiedOrderUpdate{}, err
	}
	order, err := v.host.ResolveOrder(ctx, cb.OrderID)
	if err != nil {
		return VerifiedOrderUpdate{Callback: cb}, err
	}
	return VerifiedOrderUpdate{Order: order, Callback: cb}, nil
}

// Process verifies a callback and, when the processor reports paid, settles
// the order once. Repeated callbacks for a settled order succeed without
// touching it again.
func (v *Verifier) Process(ctx context.Context, raw, signature string) (Outcome, error) {
	ctx, span := otel.Tracer("gateway.Verifier").Start(ctx, "Verifier.Process")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.callback.result", result))
		obs.ObserveCallback(result, obs.DurationMillis(time.Since(start)))
	}()

	update, err := v.Verify(ctx, raw, signature)
	if err != nil {
		result = rejectionReason(err)
		v.reject(result, update.Callback.OrderID, err)
		return Outcome{}, err
	}
	orderID := update.Order.ID
	span.SetAttributes(attribute.Int64("order.id", orderID))

	if !update.Paid() {
		result = "not_paid"
		v.logger.Warn().
			Int64("order_id", orderID).
			Str("processor_status", update.Callback.Status).
			Msg("payment_not_completed")
		v.emit(ctx, events.TopicPaymentNotCompleted, orderID, map[string]any{"status": update.Callback.Status})
		return Outcome{OrderID: orderID}, fmt.Errorf("%w: processor status %q", ErrPaymentNotCompleted, update.Callback.Status)
	}

	order, step, err := v.settle(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		v.logger.Error().Err(err).Int64("order_id", orderID).Msg("payment_settlement_failed")
		return Outcome{OrderID: orderID}, err
	}

	outcome := Outcome{
		OrderID:        order.ID,
		RedirectURL:    v.host.OrderReceivedURL(order),
		AlreadyApplied: !step.paid && !step.stock,
	}
	if step.paid {
		v.emit(ctx, events.TopicOrderPaid, order.ID, map[string]any{
			"total":    order.Total.StringFixed(2),
			"currency": order.Currency,
		})
	}
	if outcome.AlreadyApplied {
		result = "duplicate"
		v.logger.Info().Int64("order_id", order.ID).Msg("payment_callback_duplicate")
	} else {
		result = "paid"
		v.logger.Info().Int64("order_id", order.ID).Bool("stock_reduced", step.stock).Msg("payment_callback_paid")
	}
	return outcome, nil
}

// settled records which settlement steps this call applied.
type settled struct {
	paid  bool
	stock bool
}

// settle applies the paid transition and stock reduction under the order
// lock, re-reading the order so concurrent callbacks apply each step once.
// The host's own guards keep the steps single-shot when no locker is wired.
func (v *Verifier) settle(ctx context.Context, orderID int64) (OrderRecord, settled, error) {
	var (
		order OrderRecord
		step  settled
	)
	apply := func(ctx context.Context) error {
		current, err := v.host.ResolveOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !current.IsPaid() {
			changed, err := v.host.MarkPaidAndProcessing(ctx, current, "Payment completed successfully via "+v.title)
			if err != nil {
				return fmt.Errorf("mark paid: %w", err)
			}
			current.Status = StatusProcessing
			step.paid = changed
		}
		if !current.StockReduced {
			changed, err := v.host.ReduceStock(ctx, current)
			if err != nil {
				return fmt.Errorf("reduce stock: %w", err)
			}
			current.StockReduced = true
			step.stock = changed
		}
		order = current
		return nil
	}

	var err error
	if v.locker == nil {
		err = apply(ctx)
	} else {
		err = v.locker.WithLock(ctx, "order:"+strconv.FormatInt(orderID, 10), v.lockTTL, apply)
	}
	return order, step, err
}

// Reject logs and counts a callback refused before it reached Process, such
// as a request body that could not be parsed.
func (v *Verifier) Reject(ctx context.Context, err error) {
	_, span := otel.Tracer("gateway.Verifier").Start(ctx, "Verifier.Reject")
	defer span.End()
	reason := rejectionReason(err)
	span.SetAttributes(attribute.String("payment.callback.result", reason))
	v.reject(reason, 0, err)
	obs.ObserveCallback(reason, 0)
}

// reject logs a refused callback. The signature and payload are never logged.
func (v *Verifier) reject(reason string, orderID int64, err error) {
	evt := v.logger.Warn()
	if reason == "internal_error" {
		evt = v.logger.Error().Err(err)
	}
	if orderID > 0 {
		evt = evt.Int64("order_id", orderID)
	}
	evt.Str("reason", reason).Msg("payment_callback_rejected")
}

func (v *Verifier) emit(ctx context.Context, topic string, orderID int64, payload any) {
	if v.events == nil {
		return
	}
	if _, err := v.events.Emit(ctx, topic, orderID, payload); err != nil {
		v.logger.Warn().Err(err).Str("topic", topic).Int64("order_id", orderID).Msg("payment_event_failed")
	}
}
