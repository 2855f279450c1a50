package auth

import (
	"context"
	"sync"
	"time"
)

// UserStore persists accounts. Create must surface ErrEmailTaken or
// ErrNationalIDTaken on uniqueness violations; under concurrent duplicate
// registration the store (not the application) decides the single winner.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetAdmin(ctx context.Context, id int64, admin bool) (*User, error)
}

// InMemoryStore implements UserStore for tests and local runs.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
	now    func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[int64]*User),
		now:   time.Now,
	}
}

func (s *InMemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
		if existing.NationalIDHash == u.NationalIDHash {
			return ErrNationalIDTaken
		}
	}

	s.nextID++
	u.ID = s.nextID
	u.RegisteredAt = s.now().UTC()
	if u.Admin {
		t := u.RegisteredAt
		u.AdminGrantedAt = &t
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) SetAdmin(ctx context.Context, id int64, admin bool) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	// The grant timestamp is written once, on the first false->true
	// transition, and survives later revocations.
	if admin && u.AdminGrantedAt == nil {
		t := s.now().UTC()
		u.AdminGrantedAt = &t
	}
	u.Admin = admin
	cp := *u
	return &cp, nil
}
