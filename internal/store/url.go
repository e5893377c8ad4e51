// Package store implements the order host the payment gateway settles
// against, backed by PostgreSQL or by memory.
package store

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/paybridge/internal/gateway"
)

// ReceivedURL builds the order-received page link for order under base, in
// the "<base>/<id>/?key=<order key>" form storefronts expect.
func ReceivedURL(base string, order gateway.OrderRecord) string {
	q := url.Values{}
	q.Set("key", order.Key)
	return strings.TrimRight(base, "/") + "/" + strconv.FormatInt(order.ID, 10) + "/?" + q.Encode()
}
