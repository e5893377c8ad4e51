package gateway

import "strings"

// OrderSnapshot is the point-in-time copy of an order sent to the processor.
// Field order is the wire order of the JSON payload.
type OrderSnapshot struct {
	OrderID         int64  `json:"order_id"`
	OrderKey        string `json:"order_key"`
	Status          string `json:"status"`
	Total           string `json:"total"`
	Currency        string `json:"currency"`
	BillingEmail    string `json:"billing_email"`
	BillingPhone    string `json:"billing_phone"`
	BillingName     string `json:"billing_name"`
	BillingAddress  string `json:"billing_address"`
	BillingCity     string `json:"billing_city"`
	BillingState    string `json:"billing_state"`
	BillingPostcode string `json:"billing_postcode"`
	BillingCountry  string `json:"billing_country"`
	ReturnURL       string `json:"return_url"`
}

// NewSnapshot copies the fields the processor needs out of order.
func NewSnapshot(order OrderRecord, returnURL string) OrderSnapshot {
	b := order.Billing
	return OrderSnapshot{
		OrderID:         order.ID,
		OrderKey:        order.Key,
		Status:          order.Status,
		Total:           order.Total.StringFixed(2),
		Currency:        order.Currency,
		BillingEmail:    b.Email,
		BillingPhone:    b.Phone,
		BillingName:     joinNonEmpty(b.FirstName, b.LastName),
		BillingAddress:  joinNonEmpty(b.Address1, b.Address2),
		BillingCity:     b.City,
		BillingState:    b.State,
		BillingPostcode: b.Postcode,
		BillingCountry:  b.Country,
		ReturnURL:       returnURL,
	}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
