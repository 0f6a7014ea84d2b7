package payments

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
	"time"
)

// runStoreContract exercises the Store semantics every backend must share.
func runStoreContract(t *testing.T, s Store, idPrefix string) {
	ctx := context.Background()
	id := func(n int) string { return fmt.Sprintf("%s-%d", idPrefix, n) }

	t.Run("create get roundtrip", func(t *testing.T) {
		p := newStoredPayment(id(1))
		p.Amount = decimal.RequireFromString("1234.5678")
		p.PayerName = "Alice"
		p.Account = "acct-1"
		require.NoError(t, s.Create(ctx, p))
		assert.ErrorIs(t, s.Create(ctx, newStoredPayment(id(1))), ErrAlreadyExists)

		got, err := s.Get(ctx, id(1))
		require.NoError(t, err)
		assert.True(t, p.Amount.Equal(got.Amount))
		assert.Equal(t, "Alice", got.PayerName)
		assert.Equal(t, "acct-1", got.Account)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, "v", got.Metadata["k"])
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("compare and swap", func(t *testing.T) {
		a, err := s.Get(ctx, id(1))
		require.NoError(t, err)
		b, err := s.Get(ctx, id(1))
		require.NoError(t, err)

		a.Status = StatusProcessing
		a.UpdatedAt = a.UpdatedAt.Add(time.Second)
		require.NoError(t, s.Update(ctx, a))
		assert.Equal(t, b.Version+1, a.Version)

		b.PayerName = "stale"
		assert.ErrorIs(t, s.Update(ctx, b), ErrVersionConflict)

		got, err := s.Get(ctx, id(1))
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, "Alice", got.PayerName)
		assert.Equal(t, a.Version, got.Version)
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := s.Get(ctx, id(404))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Update(ctx, newStoredPayment(id(404))), ErrNotFound)
		assert.NoError(t, s.Delete(ctx, id(404)))
	})

	t.Run("list order and delete", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, newStoredPayment(id(3))))
		require.NoError(t, s.Create(ctx, newStoredPayment(id(2))))

		list, err := s.List(ctx)
		require.NoError(t, err)
		var got []string
		for _, p := range list {
			got = append(got, p.ID)
		}
		assert.Equal(t, []string{id(1), id(3), id(2)}, got)

		for _, n := range []int{1, 2, 3} {
			require.NoError(t, s.Delete(ctx, id(n)))
			require.NoError(t, s.Delete(ctx, id(n)))
		}
		list, err = s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestStoreContract_Memory(t *testing.T) {
	runStoreContract(t, NewMemoryStore(), "mem")
}

func TestStoreContract_Postgres(t *testing.T) {
	url := os.Getenv("PAYGATE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("PAYGATE_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPgStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE payments, payment_transitions")
	require.NoError(t, err)

	runStoreContract(t, s, "pg")

	now := time.Now().UTC()
	require.NoError(t, s.WriteTransitions(ctx, []Transition{
		{PaymentID: "pg-1", To: StatusPending, OccurredAt: now},
		{PaymentID: "pg-1", From: StatusPending, To: StatusProcessing, OccurredAt: now},
	}))
	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM payment_transitions WHERE payment_id = 'pg-1'").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestStoreContract_Redis(t *testing.T) {
	url := os.Getenv("PAYGATE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("PAYGATE_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("paygate-test-%d:", time.Now().UnixNano())
	s := NewRedisStore(client, prefix)
	runStoreContract(t, s, "rd")

	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newStoredPayment("rd-idx")))
	assert.ErrorIs(t, s.Create(ctx, newStoredPayment("rd-idx")), ErrAlreadyExists)

	score, err := client.ZScore(ctx, s.indexKey(), "rd-idx").Result()
	require.NoError(t, err)
	assert.Positive(t, score)
	n, err := client.ZCard(ctx, s.indexKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	seq, err := client.Get(ctx, s.seqKey()).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(score), seq)
}
