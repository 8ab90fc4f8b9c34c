// Package catalog defines the weighted tasks a virtual user runs while active
// and the scheduler that picks among them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Handler performs one task for the session's user. Outcomes of API calls
// are recorded by the API itself; a returned error is informational only.
type Handler func(ctx context.Context, s *Session) error

// TaskSpec is one entry of a catalog.
type TaskSpec struct {
	Name    string
	Weight  int
	Handler Handler
}

// Catalog is an immutable weighted task table. Select is safe for concurrent
// use as long as each caller owns its random source.
type Catalog struct {
	name string
	// RequiresProfile makes agents create and confirm a profile before
	// entering the active loop.
	requiresProfile bool
	tasks           []TaskSpec
	cumulative      []int
	total           int
}

var (
	// ErrNoTasks is returned when a catalog would be empty.
	ErrNoTasks = errors.New("catalog has no tasks")
	// ErrUnknownCatalog is returned by Lookup for an unregistered name.
	ErrUnknownCatalog = errors.New("unknown catalog")
	// ErrUnknownTask is returned when a weight override names no task.
	ErrUnknownTask = errors.New("unknown task")
)

// New validates tasks and builds the cumulative weight table.
func New(tasks ...TaskSpec) (*Catalog, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	seen := make(map[string]struct{}, len(tasks))
	c := &Catalog{
		tasks:      make([]TaskSpec, len(tasks)),
		cumulative: make([]int, len(tasks)),
	}
	for i, task := range tasks {
		name := strings.TrimSpace(task.Name)
		if name == "" {
			return nil, fmt.Errorf("task %d: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("task %q: duplicate name", name)
		}
		seen[name] = struct{}{}
		if task.Weight < 1 {
			return nil, fmt.Errorf("task %q: weight must be >= 1, got %d", name, task.Weight)
		}
		if task.Handler == nil {
			return nil, fmt.Errorf("task %q: handler is required", name)
		}
		task.Name = name
		c.total += task.Weight
		c.tasks[i] = task
		c.cumulative[i] = c.total
	}
	return c, nil
}

// Select draws a task with probability weight/total.
func (c *Catalog) Select(rnd *rand.Rand) TaskSpec {
	if len(c.tasks) == 1 {
		return c.tasks[0]
	}
	n := rnd.Intn(c.total)
	idx := sort.Search(len(c.cumulative), func(i int) bool {
		return c.cumulative[i] > n
	})
	return c.tasks[idx]
}

// Name returns the catalog's registered name, if any.
func (c *Catalog) Name() string { return c.name }

// RequiresProfile reports whether agents must create a profile first.
func (c *Catalog) RequiresProfile() bool { return c.requiresProfile }

// TotalWeight returns the sum of all task weights.
func (c *Catalog) TotalWeight() int { return c.total }

// Tasks returns a copy of the task table.
func (c *Catalog) Tasks() []TaskSpec {
	return append([]TaskSpec(nil), c.tasks...)
}

// Weights returns task weights keyed by name.
func (c *Catalog) Weights() map[string]int {
	out := make(map[string]int, len(c.tasks))
	for _, t := range c.tasks {
		out[t.Name] = t.Weight
	}
	return out
}

// WithWeights returns a new catalog with weights replaced by overrides.
// A zero override removes the task; negative weights and unknown names are errors.
func (c *Catalog) WithWeights(overrides map[string]int) (*Catalog, error) {
	if len(overrides) == 0 {
		return c, nil
	}
	known := c.Weights()
	for name, weight := range overrides {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w %q in catalog %q", ErrUnknownTask, name, c.name)
		}
		if weight < 0 {
			return nil, fmt.Errorf("task %q: weight must be >= 0, got %d", name, weight)
		}
	}

	tasks := make([]TaskSpec, 0, len(c.tasks))
	for _, t := range c.tasks {
		if w, ok := overrides[t.Name]; ok {
			if w == 0 {
				continue
			}
			t.Weight = w
		}
		tasks = append(tasks, t)
	}
	next, err := New(tasks...)
	if err != nil {
		return nil, err
	}
	next.name = c.name
	next.requiresProfile = c.requiresProfile
	return next, nil
}

var builders = map[string]func() *Catalog{
	"social": Social,
	"basic":  Basic,
}

// Names lists the registered catalog names.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named catalog with weight overrides applied.
func Lookup(name string, overrides map[string]int) (*Catalog, error) {
	build, ok := builders[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownCatalog, name, strings.Join(Names(), ", "))
	}
	return build().WithWeights(overrides)
}

func mustNamed(name string, requiresProfile bool, tasks ...TaskSpec) *Catalog {
	c, err := New(tasks...)
	if err != nil {
		panic(fmt.Sprintf("catalog %s: %v", name, err))
	}
	c.name = name
	c.requiresProfile = requiresProfile
	return c
}
