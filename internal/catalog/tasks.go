package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/swarmfire/internal/extractor"
	"github.com/torosent/swarmfire/internal/httpclient"
	"github.com/torosent/swarmfire/internal/metrics"
)

// API routes used by the task handlers.
const (
	PathFeed      = "/api/feed"
	PathOwnPosts  = "/api/posts/me"
	PathPosts     = "/api/posts/"
	PathProfileMe = "/api/profile/me"
	PathProfile   = "/api/profile/"
	PathFriends   = "/api/friends"
)

// Task names.
const (
	TaskPostStatus     = "post_status"
	TaskGetOwnPosts    = "get_own_posts"
	TaskGetUserPosts   = "get_user_posts"
	TaskGetFeed        = "get_feed"
	TaskGetOwnProfile  = "get_own_profile"
	TaskGetUserProfile = "get_user_profile"
	TaskListFriends    = "list_friends"
	TaskAddFriend      = "add_friend"
	TaskRemoveFriend   = "remove_friend"
)

// FriendRequest is the body of add and remove friend calls.
type FriendRequest struct {
	FriendUUID string `json:"friend_uuid"`
}

// PostRequest is the body of a status post.
type PostRequest struct {
	Content string `json:"content"`
}

// Social is the full catalog: posts, feed, profiles and friend maintenance.
func Social() *Catalog {
	return mustNamed("social", true,
		TaskSpec{Name: TaskPostStatus, Weight: 10, Handler: PostStatus},
		TaskSpec{Name: TaskGetOwnPosts, Weight: 5, Handler: Get(PathOwnPosts)},
		TaskSpec{Name: TaskGetUserPosts, Weight: 3, Handler: GetForTarget(PathPosts)},
		TaskSpec{Name: TaskGetFeed, Weight: 5, Handler: Get(PathFeed)},
		TaskSpec{Name: TaskGetOwnProfile, Weight: 1, Handler: Get(PathProfileMe)},
		TaskSpec{Name: TaskGetUserProfile, Weight: 2, Handler: GetForTarget(PathProfile)},
		TaskSpec{Name: TaskListFriends, Weight: 2, Handler: ListFriends},
		TaskSpec{Name: TaskAddFriend, Weight: 2, Handler: AddFriend},
		TaskSpec{Name: TaskRemoveFriend, Weight: 1, Handler: RemoveFriend},
	)
}

// Basic browses the feed, own profile and friends without creating a profile.
func Basic() *Catalog {
	return mustNamed("basic", false,
		TaskSpec{Name: TaskGetFeed, Weight: 3, Handler: Get(PathFeed)},
		TaskSpec{Name: TaskGetOwnProfile, Weight: 1, Handler: Get(PathProfileMe)},
		TaskSpec{Name: TaskListFriends, Weight: 1, Handler: ListFriends},
	)
}

// Get returns a handler issuing a plain GET to path.
func Get(path string) Handler {
	return func(ctx context.Context, s *Session) error {
		_, err := s.API.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: path})
		return err
	}
}

// GetForTarget returns a handler that GETs prefix+id for a random friend,
// falling back to the user's own id. Without any known id the task is skipped.
func GetForTarget(prefix string) Handler {
	return func(ctx context.Context, s *Session) error {
		label := prefix + metrics.UserIDPlaceholder
		target, ok := s.User.Target(s.Rand)
		if !ok {
			s.Skip(http.MethodGet, label)
			return nil
		}
		_, err := s.API.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: prefix + target, Label: label})
		return err
	}
}

// PostStatus publishes a status update.
func PostStatus(ctx context.Context, s *Session) error {
	body := PostRequest{Content: fmt.Sprintf("swarmfire post at %s", time.Now().Format(time.RFC3339Nano))}
	_, err := s.API.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: PathOwnPosts, Body: body})
	return err
}

// ListFriends refreshes the local relation set from the server. A null,
// empty or malformed body clears it.
func ListFriends(ctx context.Context, s *Session) error {
	resp, err := s.API.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: PathFriends})
	if resp != nil && resp.StatusCode == http.StatusOK {
		s.User.SetFriends(extractor.Strings(resp.Body, "$"))
	}
	return err
}

// AddFriend befriends a registered user that is neither self nor already a
// friend. It is skipped when fewer than two users are registered or no
// candidate remains.
func AddFriend(ctx context.Context, s *Session) error {
	label := metrics.RouteLabel(http.MethodPost, PathFriends)
	if s.Registry == nil || s.Registry.Len() < 2 {
		s.Skip(http.MethodPost, label)
		return nil
	}
	target, ok := s.Registry.PickOtherThan(s.User.ID, s.User.FriendSet(), s.Rand)
	if !ok {
		s.Skip(http.MethodPost, label)
		return nil
	}

	resp, err := s.API.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   PathFriends,
		Body:   FriendRequest{FriendUUID: target},
		Label:  label,
	})
	if resp != nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated) {
		s.User.AddFriend(target)
		s.logger().Debug("friend added", zap.String("friend", target))
	}
	return err
}

// RemoveFriend drops a random friend. It is skipped when the relation set is empty.
func RemoveFriend(ctx context.Context, s *Session) error {
	label := metrics.RouteLabel(http.MethodDelete, PathFriends)
	target, ok := s.User.RandomFriend(s.Rand)
	if !ok {
		s.Skip(http.MethodDelete, label)
		return nil
	}

	resp, err := s.API.Do(ctx, httpclient.Request{
		Method: http.MethodDelete,
		Path:   PathFriends,
		Body:   FriendRequest{FriendUUID: target},
		Label:  label,
	})
	if resp != nil && resp.StatusCode == http.StatusOK {
		s.User.RemoveFriend(target)
		s.logger().Debug("friend removed", zap.String("friend", target))
	}
	return err
}
