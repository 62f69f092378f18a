package redis

import "strings"

const defaultNamespace = "sf"

// keyspace prefixes every key so environments can share one Redis.
type keyspace string

func (k keyspace) key(kind string, parts ...string) string {
	ns := strings.TrimSpace(string(k))
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IdempotencyKey names the replay record of one client key within scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys.key("idempotency", scope, id)
}

// RateLimitKey names the counter of one rate window scope.
func (c *Client) RateLimitKey(scope string) string {
	return c.keys.key("rate_limit", scope)
}

// LockKey names a cron lease.
func (c *Client) LockKey(name string) string {
	return c.keys.key("lock", name)
}
