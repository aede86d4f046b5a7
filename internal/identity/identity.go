package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// Hasher derives stable pseudonymous user ids from raw identifiers such as
// phone numbers.
type Hasher struct {
	secret []byte
}

// NewHasher fails with ErrConfiguration when secret is empty.
func NewHasher(secret string) (*Hasher, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: SECRET_KEY is not set", framework.ErrConfiguration)
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// UserID returns hex(HMAC-SHA256(secret, raw)).
func (h *Hasher) UserID(raw string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
