package store

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/paybridge/internal/events"
	"github.com/noah-isme/paybridge/internal/gateway"
)

// Item is one order line. Lines without a product do not touch stock.
type Item struct {
	ProductID int64
	Quantity  int
}

// Memory is an in-process order host used for local runs and tests.
type Memory struct {
	ReceivedBase string
	Now          func() time.Time

	mu     sync.Mutex
	orders map[int64]gateway.OrderRecord
	items  map[int64][]Item
	stock  map[int64]int
	notes  map[int64][]string
	events []events.Event
}

// NewMemory returns an empty store linking buyers to receivedBase.
func NewMemory(receivedBase string) *Memory {
	return &Memory{
		ReceivedBase: receivedBase,
		orders:       make(map[int64]gateway.OrderRecord),
		items:        make(map[int64][]Item),
		stock:        make(map[int64]int),
		notes:        make(map[int64][]string),
	}
}

// PutOrder inserts or replaces an order and its lines.
func (m *Memory) PutOrder(order gateway.OrderRecord, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	m.items[order.ID] = append([]Item(nil), items...)
}

// SetStock sets the managed stock level of a product.
func (m *Memory) SetStock(productID int64, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = qty
}

// Stock returns the stock level of a managed product.
func (m *Memory) Stock(productID int64) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.stock[productID]
	return qty, ok
}

// Notes returns the notes recorded against an order, oldest first.
func (m *Memory) Notes(orderID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes[orderID]...)
}

// Events returns every persisted payment event.
func (m *Memory) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

// ResolveOrder returns the stored order.
func (m *Memory) ResolveOrder(_ context.Context, id int64) (gateway.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return gateway.OrderRecord{}, gateway.ErrOrderNotFound
	}
	return o, nil
}

// MarkAwaitingPayment moves an unpaid order to pending-payment.
func (m *Memory) MarkAwaitingPayment(_ context.Context, order gateway.OrderRecord, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok {
		return gateway.ErrOrderNotFound
	}
	if o.IsPaid() {
		return gateway.ErrOrderAlreadyPaid
	}
	o.Status = gateway.StatusPendingPayment
	m.orders[o.ID] = o
	m.addNote(o.ID, note)
	return nil
}

// MarkPaidAndProcessing records payment once.
func (m *Memory) MarkPaidAndProcessing(_ context.Context, order gateway.OrderRecord, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok {
		return false, gateway.ErrOrderNotFound
	}
	if o.PaidAt != nil {
		return false, nil
	}
	paidAt := m.now()
	o.PaidAt = &paidAt
	o.Status = gateway.StatusProcessing
	m.orders[o.ID] = o
	m.addNote(o.ID, note)
	return true, nil
}

// ReduceStock decrements managed stock by the order's quantities once.
func (m *Memory) ReduceStock(_ context.Context, order gateway.OrderRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok {
		return false, gateway.ErrOrderNotFound
	}
	if o.StockReduced {
		return false, nil
	}
	for _, item := range m.items[o.ID] {
		if qty, managed := m.stock[item.ProductID]; managed && item.ProductID > 0 {
			m.stock[item.ProductID] = qty - item.Quantity
		}
	}
	o.StockReduced = true
	m.orders[o.ID] = o
	m.addNote(o.ID, "Stock levels reduced.")
	return true, nil
}

// OrderReceivedURL links to the storefront's order-received page.
func (m *Memory) OrderReceivedURL(order gateway.OrderRecord) string {
	return ReceivedURL(m.ReceivedBase, order)
}

// InsertPaymentEvent stores an audit event.
func (m *Memory) InsertPaymentEvent(_ context.Context, event events.Event) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return event, nil
}

func (m *Memory) addNote(orderID int64, note string) {
	if note != "" {
		m.notes[orderID] = append(m.notes[orderID], note)
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}
