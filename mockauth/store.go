package mockauth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errDuplicateEmail = errors.New("email already registered")
	errUserNotFound   = errors.New("user not found")
	errInvalidRefresh = errors.New("invalid refresh token")
	errExpiredRefresh = errors.New("refresh token expired")
)

type user struct {
	ID            int64
	Email         string
	Name          string
	Role          string
	PasswordHash  string
	EmailVerified bool
}

type refreshEntry struct {
	email     string
	expiresAt time.Time
}

// store keeps accounts and refresh tokens in memory.
type store struct {
	mu      sync.RWMutex
	nextID  int64
	users   map[string]*user
	refresh map[string]refreshEntry
}

func newStore() *store {
	return &store{
		users:   make(map[string]*user),
		refresh: make(map[string]refreshEntry),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *store) createUser(email, name, passwordHash string) (user, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(email)
	if _, exists := s.users[key]; exists {
		return user{}, errDuplicateEmail
	}

	s.nextID++
	u := &user{
		ID:           s.nextID,
		Email:        key,
		Name:         name,
		Role:         "USER",
		PasswordHash: passwordHash,
	}
	s.users[key] = u
	return *u, nil
}

func (s *store) userByEmail(email string) (user, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[emailKey(email)]
	if !ok {
		return user{}, errUserNotFound
	}
	return *u, nil
}

func (s *store) userCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// issueRefresh stores a new opaque refresh token for email.
func (s *store) issueRefresh(email string, expiresAt time.Time) string {
	token := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = refreshEntry{email: emailKey(email), expiresAt: expiresAt}
	return token
}

// consumeRefresh removes token and returns its owner. A refresh token is
// single use: rotation always issues a replacement.
func (s *store) consumeRefresh(token string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.refresh[token]
	if !ok {
		return "", errInvalidRefresh
	}
	delete(s.refresh, token)

	if !now.Before(entry.expiresAt) {
		return "", errExpiredRefresh
	}
	return entry.email, nil
}
