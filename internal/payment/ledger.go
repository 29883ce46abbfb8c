package payment

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Ledger records captured payments that already produced a grant.
type Ledger interface {
	Claim(ctx context.Context, paymentID string) (bool, error)
	Release(ctx context.Context, paymentID string) error
}

// RedisLedger implements Ledger using Redis SETNX semantics.
type RedisLedger struct {
	Client redis.Cmdable
	TTL    time.Duration
}

// LedgerKey returns the Redis key used for paymentID.
func LedgerKey(paymentID string) string {
	return "pay:captured:" + paymentID
}

// Claim marks paymentID as handled. It returns false when another delivery already claimed it.
func (l RedisLedger) Claim(ctx context.Context, paymentID string) (bool, error) {
	if l.Client == nil {
		return true, nil
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return l.Client.SetNX(ctx, LedgerKey(paymentID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release removes the claim so a retried delivery is processed again.
func (l RedisLedger) Release(ctx context.Context, paymentID string) error {
	if l.Client == nil {
		return nil
	}
	return l.Client.Del(ctx, LedgerKey(paymentID)).Err()
}
