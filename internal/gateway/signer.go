package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret is returned when a signer is built without a key.
var ErrEmptySecret = errors.New("gateway: secret key is empty")

// Signer computes and checks HMAC-SHA256 signatures over the encoded payload
// text exactly as it travels on the wire.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for the shared secret.
func NewSigner(secret string) (Signer, error) {
	if secret == "" {
		return Signer{}, ErrEmptySecret
	}
	return Signer{key: []byte(secret)}, nil
}

// Sign returns the lowercase hex HMAC of payload.
func (s Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with the expected value in constant time.
func (s Signer) Verify(payload, signature string) bool {
	if len(s.key) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(payload)), []byte(signature))
}
