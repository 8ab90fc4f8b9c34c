package catalog_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/swarmfire/internal/catalog"
)

func noop(context.Context, *catalog.Session) error { return nil }

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		tasks []catalog.TaskSpec
	}{
		{"empty", nil},
		{"zero weight", []catalog.TaskSpec{{Name: "a", Weight: 0, Handler: noop}}},
		{"negative weight", []catalog.TaskSpec{{Name: "a", Weight: -1, Handler: noop}}},
		{"missing name", []catalog.TaskSpec{{Name: " ", Weight: 1, Handler: noop}}},
		{"missing handler", []catalog.TaskSpec{{Name: "a", Weight: 1}}},
		{"duplicate", []catalog.TaskSpec{{Name: "a", Weight: 1, Handler: noop}, {Name: "a", Weight: 2, Handler: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.New(tt.tasks...)
			assert.Error(t, err)
		})
	}

	_, err := catalog.New()
	assert.True(t, errors.Is(err, catalog.ErrNoTasks))
}

func TestSelectSingleTask(t *testing.T) {
	c, err := catalog.New(catalog.TaskSpec{Name: "only", Weight: 3, Handler: noop})
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		assert.Equal(t, "only", c.Select(rnd).Name)
	}
}

func TestSelectProportions(t *testing.T) {
	c, err := catalog.New(
		catalog.TaskSpec{Name: "A", Weight: 10, Handler: noop},
		catalog.TaskSpec{Name: "B", Weight: 5, Handler: noop},
		catalog.TaskSpec{Name: "C", Weight: 1, Handler: noop},
	)
	require.NoError(t, err)
	require.Equal(t, 16, c.TotalWeight())

	counts := make(map[string]int)
	rnd := rand.New(rand.NewSource(20240601))
	for i := 0; i < 16000; i++ {
		counts[c.Select(rnd).Name]++
	}

	for name, want := range map[string]int{"A": 10000, "B": 5000, "C": 1000} {
		assert.InEpsilon(t, want, counts[name], 0.10, "task %s selected %d times", name, counts[name])
	}
}

func TestSelectChiSquared(t *testing.T) {
	c := catalog.Social()
	weights := c.Weights()
	total := float64(c.TotalWeight())

	const draws = 20000
	counts := make(map[string]int)
	rnd := rand.New(rand.NewSource(99))
	for i := 0; i < draws; i++ {
		counts[c.Select(rnd).Name]++
	}

	var chi2 float64
	for name, w := range weights {
		expected := draws * float64(w) / total
		diff := float64(counts[name]) - expected
		chi2 += diff * diff / expected
	}

	// Critical value for 8 degrees of freedom at p = 0.001.
	const critical = 26.12
	require.Len(t, weights, 9)
	assert.Less(t, chi2, critical, "chi-squared %.2f exceeds %.2f; counts=%v", chi2, critical, counts)
	assert.False(t, math.IsNaN(chi2))
}

func TestBuiltinCatalogs(t *testing.T) {
	social := catalog.Social()
	assert.Equal(t, "social", social.Name())
	assert.True(t, social.RequiresProfile())
	assert.Equal(t, map[string]int{
		catalog.TaskPostStatus:     10,
		catalog.TaskGetOwnPosts:    5,
		catalog.TaskGetUserPosts:   3,
		catalog.TaskGetFeed:        5,
		catalog.TaskGetOwnProfile:  1,
		catalog.TaskGetUserProfile: 2,
		catalog.TaskListFriends:    2,
		catalog.TaskAddFriend:      2,
		catalog.TaskRemoveFriend:   1,
	}, social.Weights())

	basic := catalog.Basic()
	assert.Equal(t, "basic", basic.Name())
	assert.False(t, basic.RequiresProfile())
	assert.Equal(t, map[string]int{
		catalog.TaskGetFeed:       3,
		catalog.TaskGetOwnProfile: 1,
		catalog.TaskListFriends:   1,
	}, basic.Weights())
}

func TestLookup(t *testing.T) {
	c, err := catalog.Lookup(" Social ", nil)
	require.NoError(t, err)
	assert.Equal(t, "social", c.Name())

	_, err = catalog.Lookup("nope", nil)
	assert.True(t, errors.Is(err, catalog.ErrUnknownCatalog))

	assert.Equal(t, []string{"basic", "social"}, catalog.Names())
}

func TestWithWeights(t *testing.T) {
	c, err := catalog.Lookup("social", map[string]int{
		catalog.TaskPostStatus:   1,
		catalog.TaskRemoveFriend: 0,
	})
	require.NoError(t, err)

	weights := c.Weights()
	assert.Equal(t, 1, weights[catalog.TaskPostStatus])
	_, present := weights[catalog.TaskRemoveFriend]
	assert.False(t, present, "zero weight removes the task")
	assert.True(t, c.RequiresProfile())
	assert.Equal(t, "social", c.Name())

	// Original catalog is untouched.
	assert.Equal(t, 10, catalog.Social().Weights()[catalog.TaskPostStatus])

	_, err = catalog.Lookup("social", map[string]int{"unknown": 1})
	assert.True(t, errors.Is(err, catalog.ErrUnknownTask))

	_, err = catalog.Lookup("basic", map[string]int{catalog.TaskGetFeed: -2})
	assert.Error(t, err)

	_, err = catalog.Lookup("basic", map[string]int{
		catalog.TaskGetFeed:       0,
		catalog.TaskGetOwnProfile: 0,
		catalog.TaskListFriends:   0,
	})
	assert.True(t, errors.Is(err, catalog.ErrNoTasks))
}
