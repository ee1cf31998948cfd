package redis

import "strings"

// Every key lives under the sf: namespace so the storefront can share a
// Redis instance. Empty segments are dropped.
const namespace = "sf"

const (
	segIdempotency = "idempotency"
	segRateLimit   = "rate_limit"
	segCounter     = "counter"
	segSession     = "shopper_session"
	segPending     = "pending_order"
	segLock        = "lock"
)

func key(segments ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string { return key(segIdempotency, scope, id) }

func (c *Client) RateLimitKey(scope string) string { return key(segRateLimit, scope) }

func (c *Client) CounterKey(name string) string { return key(segCounter, name) }

// ShopperSessionKey holds the marker for an anonymous cart session token.
func (c *Client) ShopperSessionKey(token string) string { return key(segSession, token) }

// PendingOrderKey remembers which order an identity is currently paying for.
func (c *Client) PendingOrderKey(identity string) string { return key(segPending, identity) }

func (c *Client) LockKey(name string) string { return key(segLock, name) }
