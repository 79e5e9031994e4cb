// Package session holds the process-wide record of who is signed in.
package session

import (
	"sync"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// Store keeps the last server-confirmed user. A nil user means nobody is
// signed in. Values are copied on the way in and out.
type Store struct {
	mu     sync.RWMutex
	user   *allauth.User
	nextID int
	subs   map[int]func(*allauth.User)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(*allauth.User))}
}

// User returns a copy of the current user.
func (s *Store) User() (allauth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return allauth.User{}, false
	}
	return s.user.Clone(), true
}

// Authenticated reports whether a user is present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Login replaces the current user.
func (s *Store) Login(u allauth.User) {
	u = u.Clone()
	s.set(&u)
}

// Logout clears the current user. Calling it twice is the same as once.
func (s *Store) Logout() {
	s.set(nil)
}

// Subscribe registers fn to run after every change. Subscribers receive a
// copy and run outside the lock.
func (s *Store) Subscribe(fn func(*allauth.User)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) set(u *allauth.User) {
	s.mu.Lock()
	s.user = u
	subs := make([]func(*allauth.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		var arg *allauth.User
		if u != nil {
			c := u.Clone()
			arg = &c
		}
		fn(arg)
	}
}
