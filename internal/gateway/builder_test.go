package gateway_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/gateway"
)

func TestBuildProducesSignedRedirect(t *testing.T) {
	host := newFakeHost(sampleOrder(42))
	emitter := &recordingEmitter{}
	b := newBuilder(t, host, emitter)

	target, err := b.Build(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), target.OrderID)

	u, err := url.Parse(target.URL)
	require.NoError(t, err)
	require.Equal(t, "pay.example.net", u.Host)
	require.Equal(t, "/checkout", u.Path)
	require.Equal(t, target.Payload, u.Query().Get(gateway.PayloadParam))
	require.Equal(t, target.Signature, u.Query().Get(gateway.SignatureParam))

	signer, err := gateway.NewSigner(testSecret)
	require.NoError(t, err)
	require.True(t, signer.Verify(target.Payload, target.Signature))

	snap, err := gateway.DecodeSnapshot(target.Payload)
	require.NoError(t, err)
	require.Equal(t, int64(42), snap.OrderID)
	require.Equal(t, gateway.StatusPendingPayment, snap.Status)
	require.Equal(t, "19.90", snap.Total)
	require.Equal(t, testReturn, snap.ReturnURL)

	awaiting, paid, stock := host.counts()
	require.Equal(t, 1, awaiting)
	require.Zero(t, paid)
	require.Zero(t, stock)
	require.Equal(t, []string{"Awaiting payment via Custom Payment Gateway"}, host.notes)
	require.Equal(t, gateway.StatusPendingPayment, host.order(42).Status)
	require.Equal(t, []string{events.TopicOrderAwaitingPayment}, emitter.seen())
}

func TestBuildKeepsConfiguredQuery(t *testing.T) {
	host := newFakeHost(sampleOrder(5))
	b, err := gateway.NewBuilder(gateway.BuilderConfig{
		Host:        host,
		Secret:      testSecret,
		ExternalURL: "https://pay.example.net/checkout?merchant=7",
		ReturnURL:   testReturn,
		Enabled:     true,
		Title:       "Acme Pay",
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	target, err := b.Build(context.Background(), 5)
	require.NoError(t, err)
	u, err := url.Parse(target.URL)
	require.NoError(t, err)
	require.Equal(t, "7", u.Query().Get("merchant"))
	require.NotEmpty(t, u.Query().Get(gateway.PayloadParam))
	require.Equal(t, []string{"Awaiting payment via Acme Pay"}, host.notes)
}

func TestBuildFailures(t *testing.T) {
	paidOrder := sampleOrder(2)
	paidOrder.Status = gateway.StatusProcessing
	badCurrency := sampleOrder(3)
	badCurrency.Currency = "XXXX"

	host := newFakeHost(paidOrder, badCurrency)
	b := newBuilder(t, host, nil)

	_, err := b.Build(context.Background(), 99)
	require.ErrorIs(t, err, gateway.ErrOrderNotFound)

	_, err = b.Build(context.Background(), 2)
	require.ErrorIs(t, err, gateway.ErrOrderAlreadyPaid)

	_, err = b.Build(context.Background(), 3)
	require.ErrorIs(t, err, gateway.ErrBuildFailure)

	host.resolveErr = errors.New("connection reset")
	_, err = b.Build(context.Background(), 2)
	require.ErrorIs(t, err, gateway.ErrBuildFailure)

	awaiting, _, _ := host.counts()
	require.Zero(t, awaiting)
}

func TestBuildRejectsInvalidUTF8(t *testing.T) {
	order := sampleOrder(8)
	order.Billing.City = "Lisb\xffon"
	host := newFakeHost(order)
	b := newBuilder(t, host, nil)

	_, err := b.Build(context.Background(), 8)
	require.ErrorIs(t, err, gateway.ErrBuildFailure)
	require.Contains(t, err.Error(), "billing.city")

	awaiting, _, _ := host.counts()
	require.Zero(t, awaiting)

	order.Billing.City = "Lisboa, São Vicente 東京"
	host = newFakeHost(order)
	target, err := newBuilder(t, host, nil).Build(context.Background(), 8)
	require.NoError(t, err)
	snap, err := gateway.DecodeSnapshot(target.Payload)
	require.NoError(t, err)
	require.Equal(t, "Lisboa, São Vicente 東京", snap.BillingCity)
}

func TestBuildDisabledGateway(t *testing.T) {
	host := newFakeHost(sampleOrder(1))
	b, err := gateway.NewBuilder(gateway.BuilderConfig{
		Host:        host,
		Secret:      testSecret,
		ExternalURL: testExternal,
		ReturnURL:   testReturn,
		Enabled:     false,
	})
	require.NoError(t, err)

	_, err = b.Build(context.Background(), 1)
	require.ErrorIs(t, err, gateway.ErrGatewayDisabled)
	awaiting, _, _ := host.counts()
	require.Zero(t, awaiting)
}

func TestNewBuilderValidatesConfig(t *testing.T) {
	host := newFakeHost()
	base := gateway.BuilderConfig{Host: host, Secret: testSecret, ExternalURL: testExternal, ReturnURL: testReturn}

	cfg := base
	cfg.Secret = ""
	_, err := gateway.NewBuilder(cfg)
	require.ErrorIs(t, err, gateway.ErrEmptySecret)

	cfg = base
	cfg.ExternalURL = "pay.example.net/checkout"
	_, err = gateway.NewBuilder(cfg)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "external url"))

	cfg = base
	cfg.ReturnURL = "ftp://shop.example.com/return"
	_, err = gateway.NewBuilder(cfg)
	require.Error(t, err)

	cfg = base
	cfg.Host = nil
	_, err = gateway.NewBuilder(cfg)
	require.Error(t, err)
}
