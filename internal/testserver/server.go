// Package testserver provides an in-process social API that virtual users can
// be pointed at in tests. State lives in memory and is safe for concurrent use.
package testserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type account struct {
	email    string
	password string
	id       string
	profile  *profile
	friends  map[string]struct{}
}

type profile struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

type post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author_uuid"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ctxKey struct{}

// Server is a fake social API.
type Server struct {
	router chi.Router

	mu       sync.RWMutex
	accounts map[string]*account // by email
	byID     map[string]*account
	tokens   map[string]*account
	posts    map[string][]post // by author id

	failLogin atomic.Bool
	hits      sync.Map // "METHOD pattern" -> *atomic.Int64
}

// NewServer creates an empty server with all routes registered.
func NewServer() *Server {
	s := &Server{
		accounts: make(map[string]*account),
		byID:     make(map[string]*account),
		tokens:   make(map[string]*account),
		posts:    make(map[string][]post),
	}
	s.router = s.routes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves s on a local listener until the returned server is closed.
func Start() (*Server, *httptest.Server) {
	s := NewServer()
	return s, httptest.NewServer(s.Handler())
}

// FailLogins makes every login answer 500 while enabled.
func (s *Server) FailLogins(enabled bool) {
	s.failLogin.Store(enabled)
}

// Hits returns how many requests matched the route pattern, e.g. "POST /api/friends".
func (s *Server) Hits(route string) int64 {
	if v, ok := s.hits.Load(route); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Profiles returns the ids of every user that created a profile, sorted.
func (s *Server) Profiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id, acc := range s.byID {
		if acc.profile != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Friends returns the server-side relation set of id.
func (s *Server) Friends(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil
	}
	return sortedSet(acc.friends)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countHits)

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Post("/api/profile/me", s.handleCreateProfile)
		r.Get("/api/profile/me", s.handleOwnProfile)
		r.Get("/api/profile/{userId}", s.handleProfile)

		r.Post("/api/posts/me", s.handleCreatePost)
		r.Get("/api/posts/me", s.handleOwnPosts)
		r.Get("/api/posts/{userId}", s.handleUserPosts)
		r.Get("/api/feed", s.handleFeed)

		r.Get("/api/friends", s.handleListFriends)
		r.Post("/api/friends", s.handleAddFriend)
		r.Delete("/api/friends", s.handleRemoveFriend)
	})
	return r
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		v, _ := s.hits.LoadOrStore(r.Method+" "+pattern, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s.mu.RLock()
		acc, ok := s.tokens[token]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r, acc)))
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	acc := &account{
		email:    req.Email,
		password: req.Password,
		id:       uuid.NewString(),
		friends:  make(map[string]struct{}),
	}
	s.accounts[req.Email] = acc
	s.byID[acc.id] = acc
	writeJSON(w, http.StatusCreated, map[string]string{"email": acc.email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.failLogin.Load() {
		writeError(w, http.StatusInternalServerError, "login unavailable")
		return
	}
	var req credentials
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = acc
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profile
	if err := decode(r, &req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	acc := accountFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	acc.profile = &profile{UUID: acc.id, Username: req.Username, Bio: req.Bio}
	writeJSON(w, http.StatusCreated, acc.profile)
}

func (s *Server) handleOwnProfile(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)
	s.mu.RLock()
	p := acc.profile
	s.mu.RUnlock()
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not created")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[chi.URLParam(r, "userId")]
	if !ok || acc.profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, acc.profile)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decode(r, &req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	acc := accountFrom(r)
	p := post{ID: uuid.NewString(), Author: acc.id, Content: req.Content, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.posts[acc.id] = append(s.posts[acc.id], p)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleOwnPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, accountFrom(r).id)
}

func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userId")
	s.mu.RLock()
	_, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	s.writePosts(w, id)
}

func (s *Server) writePosts(w http.ResponseWriter, id string) {
	s.mu.RLock()
	posts := append([]post{}, s.posts[id]...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)

	s.mu.RLock()
	feed := append([]post{}, s.posts[acc.id]...)
	for friend := range acc.friends {
		feed = append(feed, s.posts[friend]...)
	}
	s.mu.RUnlock()

	sort.Slice(feed, func(i, j int) bool { return feed[i].CreatedAt.After(feed[j].CreatedAt) })
	writeJSON(w, http.StatusOK, feed)
}

// handleListFriends answers null rather than [] when there are no friends.
func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)
	s.mu.RLock()
	friends := sortedSet(acc.friends)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, friends)
}

type friendRequest struct {
	FriendUUID string `json:"friend_uuid"`
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req friendRequest
	if err := decode(r, &req); err != nil || req.FriendUUID == "" {
		writeError(w, http.StatusBadRequest, "friend_uuid is required")
		return
	}
	acc := accountFrom(r)
	if req.FriendUUID == acc.id {
		writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	friend, ok := s.byID[req.FriendUUID]
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	acc.friends[friend.id] = struct{}{}
	friend.friends[acc.id] = struct{}{}
	writeJSON(w, http.StatusCreated, map[string]string{"friend_uuid": friend.id})
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	var req friendRequest
	if err := decode(r, &req); err != nil || req.FriendUUID == "" {
		writeError(w, http.StatusBadRequest, "friend_uuid is required")
		return
	}
	acc := accountFrom(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := acc.friends[req.FriendUUID]; !ok {
		writeError(w, http.StatusNotFound, "not a friend")
		return
	}
	delete(acc.friends, req.FriendUUID)
	if friend, ok := s.byID[req.FriendUUID]; ok {
		delete(friend.friends, acc.id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"friend_uuid": req.FriendUUID})
}

func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
