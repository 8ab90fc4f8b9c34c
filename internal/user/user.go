// Package user models a single simulated account: its credentials, session
// token, server-assigned identifier, local relation set and lifecycle state.
package user

import (
	"math/rand"
	"sort"
	"sync/atomic"
)

// Credentials identify an account on the target API.
type Credentials struct {
	Email    string
	Password string
	Username string
}

// VirtualUser is owned by exactly one agent. Only the state is safe to read
// from other goroutines.
type VirtualUser struct {
	Index       int
	Credentials Credentials
	// Token is the bearer token; empty until login succeeds.
	Token string
	// ID is the server-assigned identifier; empty until the profile is confirmed.
	ID string

	friends map[string]struct{}
	state   atomic.Int32
}

// New creates a user in StateInit.
func New(index int) *VirtualUser {
	return &VirtualUser{
		Index:   index,
		friends: make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (u *VirtualUser) State() State {
	return State(u.state.Load())
}

// Transition moves the user to next, or returns ErrIllegalTransition.
func (u *VirtualUser) Transition(next State) error {
	for {
		cur := u.State()
		if !CanTransition(cur, next) {
			return transitionError(cur, next)
		}
		if u.state.CompareAndSwap(int32(cur), int32(next)) {
			return nil
		}
	}
}

// Authenticated reports whether a session token is held.
func (u *VirtualUser) Authenticated() bool {
	return u.Token != ""
}

// SetFriends replaces the relation set wholesale.
func (u *VirtualUser) SetFriends(ids []string) {
	u.friends = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		u.friends[id] = struct{}{}
	}
}

// AddFriend inserts id into the relation set.
func (u *VirtualUser) AddFriend(id string) {
	if id == "" {
		return
	}
	if u.friends == nil {
		u.friends = make(map[string]struct{})
	}
	u.friends[id] = struct{}{}
}

// RemoveFriend deletes id from the relation set.
func (u *VirtualUser) RemoveFriend(id string) {
	delete(u.friends, id)
}

// HasFriend reports whether id is in the relation set.
func (u *VirtualUser) HasFriend(id string) bool {
	_, ok := u.friends[id]
	return ok
}

// FriendSet exposes the relation set for exclusion lookups. Callers must not mutate it.
func (u *VirtualUser) FriendSet() map[string]struct{} {
	return u.friends
}

// Friends returns the relation set sorted.
func (u *VirtualUser) Friends() []string {
	out := make([]string, 0, len(u.friends))
	for id := range u.friends {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RandomFriend picks a uniformly random member of the relation set.
func (u *VirtualUser) RandomFriend(rnd *rand.Rand) (string, bool) {
	if len(u.friends) == 0 {
		return "", false
	}
	friends := u.Friends()
	return friends[rnd.Intn(len(friends))], true
}

// Target returns a random friend, falling back to the user's own ID.
func (u *VirtualUser) Target(rnd *rand.Rand) (string, bool) {
	if id, ok := u.RandomFriend(rnd); ok {
		return id, true
	}
	return u.ID, u.ID != ""
}
