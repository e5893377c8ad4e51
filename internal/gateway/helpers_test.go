package gateway_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/gateway"
)

const (
	testSecret   = "s3cret"
	testExternal = "https://pay.example.net/checkout"
	testReturn   = "https://shop.example.com/process_custom_payment_response"
	testCheckout = "https://shop.example.com/checkout"
)

type fakeHost struct {
	mu       sync.Mutex
	orders   map[int64]gateway.OrderRecord
	notes    []string
	awaiting int
	paid     int
	stock    int

	resolveErr  error
	markPaidErr error
}

func newFakeHost(orders ...gateway.OrderRecord) *fakeHost {
	h := &fakeHost{orders: make(map[int64]gateway.OrderRecord)}
	for _, o := range orders {
		h.orders[o.ID] = o
	}
	return h
}

func (h *fakeHost) ResolveOrder(_ context.Context, id int64) (gateway.OrderRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolveErr != nil {
		return gateway.OrderRecord{}, h.resolveErr
	}
	o, ok := h.orders[id]
	if !ok {
		return gateway.OrderRecord{}, fmt.Errorf("order %d: %w", id, gateway.ErrOrderNotFound)
	}
	return o, nil
}

func (h *fakeHost) MarkAwaitingPayment(_ context.Context, order gateway.OrderRecord, note string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.orders[order.ID]
	o.Status = gateway.StatusPendingPayment
	h.orders[order.ID] = o
	h.notes = append(h.notes, note)
	h.awaiting++
	return nil
}

func (h *fakeHost) MarkPaidAndProcessing(_ context.Context, order gateway.OrderRecord, note string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.markPaidErr != nil {
		return false, h.markPaidErr
	}
	o := h.orders[order.ID]
	if o.PaidAt != nil {
		return false, nil
	}
	now := time.Now()
	o.Status = gateway.StatusProcessing
	o.PaidAt = &now
	h.orders[order.ID] = o
	h.notes = append(h.notes, note)
	h.paid++
	return true, nil
}

func (h *fakeHost) ReduceStock(_ context.Context, order gateway.OrderRecord) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.orders[order.ID]
	if o.StockReduced {
		return false, nil
	}
	o.StockReduced = true
	h.orders[order.ID] = o
	h.stock++
	return true, nil
}

func (h *fakeHost) OrderReceivedURL(order gateway.OrderRecord) string {
	return fmt.Sprintf("https://shop.example.com/checkout/order-received/%d/?key=%s", order.ID, order.Key)
}

func (h *fakeHost) order(id int64) gateway.OrderRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orders[id]
}

func (h *fakeHost) counts() (awaiting, paid, stock int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.awaiting, h.paid, h.stock
}

type mutexLocker struct {
	mu    sync.Mutex
	calls int
	keys  []string
	err   error
}

func (l *mutexLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.keys = append(l.keys, key)
	return fn(ctx)
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEmitter) Emit(_ context.Context, topic string, orderID int64, _ any) (events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	return events.Event{Topic: topic, OrderID: orderID}, nil
}

func (e *recordingEmitter) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.topics...)
}

func sampleOrder(id int64) gateway.OrderRecord {
	return gateway.OrderRecord{
		ID:       id,
		Key:      "wc_order_abc",
		Status:   gateway.StatusPending,
		Total:    decimal.RequireFromString("19.9"),
		Currency: "USD",
		Billing: gateway.Billing{
			FirstName: "Ana",
			LastName:  "Silva",
			Address1:  "1 Main St",
			Address2:  "Apt 2",
			City:      "Lisbon",
			State:     "LX",
			Postcode:  "1000-001",
			Country:   "PT",
			Email:     "ana@example.com",
			Phone:     "+351 555 0100",
		},
	}
}

func newBuilder(t *testing.T, host gateway.Host, emitter gateway.Emitter) *gateway.Builder {
	t.Helper()
	b, err := gateway.NewBuilder(gateway.BuilderConfig{
		Host:        host,
		Secret:      testSecret,
		ExternalURL: testExternal,
		ReturnURL:   testReturn,
		Enabled:     true,
		Events:      emitter,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return b
}

func newVerifier(t *testing.T, host gateway.Host, locker gateway.Locker, emitter gateway.Emitter) *gateway.Verifier {
	t.Helper()
	return newLoggedVerifier(t, host, locker, emitter, zerolog.Nop())
}

func newLoggedVerifier(t *testing.T, host gateway.Host, locker gateway.Locker, emitter gateway.Emitter, logger zerolog.Logger) *gateway.Verifier {
	t.Helper()
	v, err := gateway.NewVerifier(gateway.VerifierConfig{
		Host:   host,
		Secret: testSecret,
		Locker: locker,
		Events: emitter,
		Logger: logger,
	})
	require.NoError(t, err)
	return v
}

// signedCallback encodes body the way the processor does and signs it.
func signedCallback(t *testing.T, secret string, body map[string]any) (string, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	data := base64.StdEncoding.EncodeToString(raw)
	signer, err := gateway.NewSigner(secret)
	require.NoError(t, err)
	return data, signer.Sign(data)
}
