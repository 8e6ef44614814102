package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDrawInOrder(t *testing.T) {
	src := NewMemorySource()
	src.Load("roblox-800", "first", "second")

	res, err := src.Draw(context.Background(), "roblox-800")
	require.NoError(t, err)
	assert.Equal(t, "first", res.Code)

	res2, err := src.Draw(context.Background(), "roblox-800")
	require.NoError(t, err)
	assert.Equal(t, "second", res2.Code)

	_, err = src.Draw(context.Background(), "roblox-800")
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestMemoryConcurrentDrawsNeverCollide(t *testing.T) {
	src := NewMemorySource()
	const n = 40
	for i := 0; i < n; i++ {
		src.Load("steam-10", "code-"+string(rune('a'+i%26))+string(rune('0'+i/26)))
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := src.Draw(context.Background(), "steam-10")
			if err != nil {
				t.Errorf("draw: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[res.Code] {
				t.Errorf("code %s drawn twice", res.Code)
			}
			seen[res.Code] = true
		}()
	}
	wg.Wait()

	_, err := src.Draw(context.Background(), "steam-10")
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestMemoryReleaseReturnsCodeToFront(t *testing.T) {
	src := NewMemorySource()
	src.Load("roblox-10", "only")

	res, err := src.Draw(context.Background(), "roblox-10")
	require.NoError(t, err)
	require.NoError(t, src.Release(context.Background(), res))

	again, err := src.Draw(context.Background(), "roblox-10")
	require.NoError(t, err)
	assert.Equal(t, "only", again.Code)
}

func TestMemoryMarkDelivered(t *testing.T) {
	src := NewMemorySource()
	src.Load("roblox-10", "c1")

	res, err := src.Draw(context.Background(), "roblox-10")
	require.NoError(t, err)
	require.NoError(t, src.MarkDelivered(context.Background(), res, "2000001"))

	orderID, ok := src.DeliveredTo("c1")
	require.True(t, ok)
	assert.Equal(t, "2000001", orderID)

	// Delivering the same reservation twice fails.
	assert.Error(t, src.MarkDelivered(context.Background(), res, "2000002"))
}

func TestMemoryCounts(t *testing.T) {
	src := NewMemorySource()
	src.Load("roblox-800", "a", "b")
	src.Load("steam-5", "c")

	counts, err := src.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts["roblox-800"])
	assert.Equal(t, 1, counts["steam-5"])
}
