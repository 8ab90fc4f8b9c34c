package registry_test

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/swarmfire/internal/registry"
)

func TestAddIsIdempotent(t *testing.T) {
	r := registry.New()

	assert.True(t, r.Add("u1"))
	assert.False(t, r.Add("u1"))
	assert.False(t, r.Add(""))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []string{"u1"}, r.Snapshot())
	assert.True(t, r.Contains("u1"))
	assert.False(t, r.Contains("u2"))
}

func TestZeroValueUsable(t *testing.T) {
	var r registry.Registry
	assert.True(t, r.Add("u1"))
	assert.Equal(t, 1, r.Len())
}

func TestSnapshotIsCopy(t *testing.T) {
	r := registry.New()
	r.Add("u1")

	snap := r.Snapshot()
	snap[0] = "mutated"

	assert.Equal(t, []string{"u1"}, r.Snapshot())
}

func TestPickOtherThanOnlySelf(t *testing.T) {
	r := registry.New()
	r.Add("u1")

	_, ok := r.PickOtherThan("u1", map[string]struct{}{}, rand.New(rand.NewSource(1)))
	assert.False(t, ok)
}

func TestPickOtherThanEmptyRegistry(t *testing.T) {
	r := registry.New()
	_, ok := r.PickOtherThan("u1", nil, rand.New(rand.NewSource(1)))
	assert.False(t, ok)
}

func TestPickOtherThanSkipsSelfAndFriends(t *testing.T) {
	r := registry.New()
	r.Add("u1")
	r.Add("u2")
	r.Add("u3")

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		id, ok := r.PickOtherThan("u1", map[string]struct{}{"u2": {}}, rnd)
		require.True(t, ok)
		require.Equal(t, "u3", id)
	}
}

func TestPickOtherThanAllExcluded(t *testing.T) {
	r := registry.New()
	r.Add("u1")
	r.Add("u2")

	_, ok := r.PickOtherThan("u1", map[string]struct{}{"u2": {}}, rand.New(rand.NewSource(1)))
	assert.False(t, ok)
}

func TestPickOtherThanCoversAllCandidates(t *testing.T) {
	r := registry.New()
	for i := 0; i < 5; i++ {
		r.Add(fmt.Sprintf("u%d", i))
	}

	seen := make(map[string]int)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 4000; i++ {
		id, ok := r.PickOtherThan("u0", nil, rnd)
		require.True(t, ok)
		require.NotEqual(t, "u0", id)
		seen[id]++
	}

	require.Len(t, seen, 4)
	for id, n := range seen {
		assert.InDelta(t, 1000, n, 150, "candidate %s picked %d times", id, n)
	}
}

func TestConcurrentAddAndPick(t *testing.T) {
	r := registry.New()
	const writers, perWriter = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				r.Add(id)
				r.Add(id)
				if picked, ok := r.PickOtherThan(id, nil, rnd); ok && picked == id {
					t.Errorf("picked self %s", id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, r.Len())
	seen := make(map[string]bool)
	for _, id := range r.Snapshot() {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
