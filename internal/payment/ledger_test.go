package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paywall-webhook/internal/payment"
)

func TestRedisLedgerClaimRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ledger := payment.RedisLedger{Client: rdb, TTL: time.Minute}
	ctx := context.Background()

	ok, err := ledger.Claim(ctx, "pay_1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.Claim(ctx, "pay_1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, time.Minute, mr.TTL(payment.LedgerKey("pay_1")))

	require.NoError(t, ledger.Release(ctx, "pay_1"))
	ok, err = ledger.Claim(ctx, "pay_1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = ledger.Claim(ctx, "pay_1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLedgerWithoutClientAlwaysClaims(t *testing.T) {
	ledger := payment.RedisLedger{}
	ok, err := ledger.Claim(context.Background(), "pay_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ledger.Release(context.Background(), "pay_1"))
}
