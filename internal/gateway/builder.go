package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/obs"
)

// Emitter records handoff events. *events.Bus satisfies it.
type Emitter interface {
	Emit(ctx context.Context, topic string, orderID int64, payload any) (events.Event, error)
}

// BuilderConfig wires a Builder.
type BuilderConfig struct {
	Host        Host
	Secret      string
	ExternalURL string
	ReturnURL   string
	Enabled     bool
	Title       string
	Events      Emitter
	Logger      zerolog.Logger
}

// Builder produces the signed redirect that sends a buyer to the processor.
type Builder struct {
	host      Host
	signer    Signer
	external  *url.URL
	returnURL string
	enabled   bool
	title     string
	events    Emitter
	logger    zerolog.Logger
}

// RedirectTarget is the outcome of a successful handoff.
type RedirectTarget struct {
	OrderID   int64
	URL       string
	Payload   string
	Signature string
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Host == nil {
		return nil, errors.New("gateway: host is required")
	}
	signer, err := NewSigner(cfg.Secret)
	if err != nil {
		return nil, err
	}
	external, err := parseAbsoluteURL(cfg.ExternalURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: external url: %w", err)
	}
	if _, err := parseAbsoluteURL(cfg.ReturnURL); err != nil {
		return nil, fmt.Errorf("gateway: return url: %w", err)
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = "Custom Payment Gateway"
	}
	return &Builder{
		host:      cfg.Host,
		signer:    signer,
		external:  external,
		returnURL: cfg.ReturnURL,
		enabled:   cfg.Enabled,
		title:     title,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}, nil
}

// Build moves the order to awaiting payment and returns the processor URL
// carrying the signed snapshot.
func (b *Builder) Build(ctx context.Context, orderID int64) (RedirectTarget, error) {
	ctx, span := otel.Tracer("gateway.Builder").Start(ctx, "Builder.Build")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.redirect.result", result))
		obs.ObserveRedirect(result)
	}()

	if !b.enabled {
		result = "disabled"
		return RedirectTarget{}, ErrGatewayDisabled
	}
	order, err := b.host.ResolveOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			result = "order_not_found"
			return RedirectTarget{}, err
		}
		span.RecordError(err)
		return RedirectTarget{}, fmt.Errorf("%w: resolve order %d: %w", ErrBuildFailure, orderID, err)
	}
	if err := order.Validate(); err != nil {
		span.RecordError(err)
		return RedirectTarget{}, fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}
	if order.IsPaid() {
		result = "already_paid"
		return RedirectTarget{}, ErrOrderAlreadyPaid
	}

	if err := b.host.MarkAwaitingPayment(ctx, order, "Awaiting payment via "+b.title); err != nil {
		span.RecordError(err)
		return RedirectTarget{}, fmt.Errorf("%w: mark awaiting payment: %w", ErrBuildFailure, err)
	}
	order.Status = StatusPendingPayment

	payload, err := EncodePayload(NewSnapshot(order, b.returnURL))
	if err != nil {
		span.RecordError(err)
		return RedirectTarget{}, fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}
	signature := b.signer.Sign(payload)
	target := RedirectTarget{
		OrderID:   order.ID,
		URL:       b.redirectURL(payload, signature),
		Payload:   payload,
		Signature: signature,
	}

	if b.events != nil {
		if _, err := b.events.Emit(ctx, events.TopicOrderAwaitingPayment, order.ID, map[string]any{
			"total":    order.Total.StringFixed(2),
			"currency": order.Currency,
		}); err != nil {
			b.logger.Warn().Err(err).Int64("order_id", order.ID).Msg("payment_event_failed")
		}
	}
	b.logger.Info().
		Int64("order_id", order.ID).
		Str("total", order.Total.StringFixed(2)).
		Str("currency", order.Currency).
		Msg("payment_redirect_built")
	result = "success"
	return target, nil
}

// redirectURL merges the payload and signature into the processor URL,
// keeping any query the operator configured.
func (b *Builder) redirectURL(payload, signature string) string {
	u := *b.external
	q := u.Query()
	q.Set(PayloadParam, payload)
	q.Set(SignatureParam, signature)
	u.RawQuery = q.Encode()
	return u.String()
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute http(s) url", raw)
	}
	return u, nil
}
