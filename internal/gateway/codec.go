package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Query and form field names carrying the signed payload.
const (
	PayloadParam   = "data"
	SignatureParam = "signature"
)

// ProcessorStatusPaid is the only processor status that settles an order.
const ProcessorStatusPaid = "paid"

// EncodePayload renders the snapshot as compact JSON in field order and
// returns its standard base64 encoding.
func EncodePayload(s OrderSnapshot) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// DecodeSnapshot is the inverse of EncodePayload.
func DecodeSnapshot(raw string) (OrderSnapshot, error) {
	body, err := decodeBase64(raw)
	if err != nil {
		return OrderSnapshot{}, err
	}
	var s OrderSnapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return OrderSnapshot{}, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	return s, nil
}

// CallbackResult is the decoded body the processor returns.
type CallbackResult struct {
	OrderID  int64
	OrderKey string
	Status   string
}

// Paid reports whether the processor confirmed payment.
func (c CallbackResult) Paid() bool {
	return c.Status == ProcessorStatusPaid
}

type callbackBody struct {
	OrderID  json.Number `json:"order_id"`
	OrderKey string      `json:"order_key"`
	Status   string      `json:"status"`
}

// DecodeCallback decodes the processor payload. Any base64 alphabet the
// processor may use is accepted; the JSON must carry a positive integer
// order_id.
func DecodeCallback(raw string) (CallbackResult, error) {
	body, err := decodeBase64(raw)
	if err != nil {
		return CallbackResult{}, err
	}
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if cb.OrderID == "" {
		return CallbackResult{}, fmt.Errorf("%w: order_id missing", ErrPayloadMalformed)
	}
	id, err := cb.OrderID.Int64()
	if err != nil || id <= 0 {
		return CallbackResult{}, fmt.Errorf("%w: order_id %q is not a positive integer", ErrPayloadMalformed, cb.OrderID.String())
	}
	return CallbackResult{OrderID: id, OrderKey: cb.OrderKey, Status: cb.Status}, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrPayloadMalformed)
	}
	var errs []error
	for _, enc := range base64Encodings {
		body, err := enc.DecodeString(raw)
		if err == nil {
			return body, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: base64: %v", ErrPayloadMalformed, errors.Join(errs...))
}
