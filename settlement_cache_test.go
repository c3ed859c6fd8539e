package x402

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-foundation/x402exact/types"
)

func TestSettlementCache_CheckAndMark_Cached(t *testing.T) {
	cache := NewSettlementCache(5 * time.Minute)
	key := "0xpayer-0xnonce"
	response := types.NewSuccessSettlementResponse("0x123", "eip155:84532", "0xabc")

	status, result := cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
	assert.Nil(t, result)

	cache.Complete(key, response)

	status, result = cache.CheckAndMark(key)
	assert.Equal(t, StatusCached, status)
	require.NotNil(t, result)
	assert.Equal(t, "0x123", result.Transaction)
}

func TestSettlementCache_InFlight(t *testing.T) {
	cache := NewSettlementCache(time.Minute)
	key := "k"

	status, _ := cache.CheckAndMark(key)
	require.Equal(t, StatusNotFound, status)

	status, _ = cache.CheckAndMark(key)
	assert.Equal(t, StatusInFlight, status)
}

func TestSettlementCache_FailAllowsRetry(t *testing.T) {
	cache := NewSettlementCache(time.Minute)
	key := "k"

	status, _ := cache.CheckAndMark(key)
	require.Equal(t, StatusNotFound, status)
	cache.Fail(key)

	status, _ = cache.CheckAndMark(key)
	assert.Equal(t, StatusNotFound, status)
}

func TestSettlementCache_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewSettlementCache(time.Minute)
	cache.now = func() time.Time { return now }

	status, _ := cache.CheckAndMark("k")
	require.Equal(t, StatusNotFound, status)
	cache.Complete("k", types.NewSuccessSettlementResponse("0x1", "eip155:84532", "0xabc"))

	now = now.Add(2 * time.Minute)
	status, _ = cache.CheckAndMark("k")
	assert.Equal(t, StatusNotFound, status)
	assert.Empty(t, cache.results)
}

func TestSettlementCache_ConcurrentCheckAndMark(t *testing.T) {
	cache := NewSettlementCache(time.Minute)

	var proceeded int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if status, _ := cache.CheckAndMark("same"); status == StatusNotFound {
				atomic.AddInt32(&proceeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), proceeded)
}
