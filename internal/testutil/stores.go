package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
)

// SessionStore is an in-memory repository.SessionRepository. Setting Err
// makes every call fail with it.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*domain.Session
	Err        error
	TouchErr   error
	TouchCalls int
}

var _ repository.SessionRepository = (*SessionStore)(nil)

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *SessionStore) FindActive(_ context.Context, userID uuid.UUID, tokenID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var found *domain.Session
	for _, session := range s.sessions {
		if session.UserID != userID || session.TokenID != tokenID || session.Status != domain.SessionStatusActive {
			continue
		}
		if found == nil || session.CreatedAt.After(found.CreatedAt) {
			found = session
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *SessionStore) ListActiveByUser(_ context.Context, userID uuid.UUID, now time.Time) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*domain.Session
	for _, session := range s.sessions {
		if session.UserID == userID && session.Status == domain.SessionStatusActive && now.Before(session.ExpiresAt) {
			cp := *session
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *SessionStore) Touch(_ context.Context, id uuid.UUID, expiresAt, lastActivityAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TouchCalls++
	if s.Err != nil {
		return s.Err
	}
	if s.TouchErr != nil {
		return s.TouchErr
	}
	if session, ok := s.sessions[id]; ok && session.Status == domain.SessionStatusActive {
		session.ExpiresAt = expiresAt
		session.LastActivityAt = lastActivityAt
	}
	return nil
}

func (s *SessionStore) FindByRefreshToken(_ context.Context, userID uuid.UUID, refreshTokenID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, session := range s.sessions {
		if session.UserID == userID && session.RefreshTokenID == refreshTokenID {
			cp := *session
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *SessionStore) Expire(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if session, ok := s.sessions[id]; ok && session.Status == domain.SessionStatusActive {
		session.Status = domain.SessionStatusExpired
	}
	return nil
}

func (s *SessionStore) Revoke(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if session, ok := s.sessions[id]; ok {
		session.Status = domain.SessionStatusRevoked
	}
	return nil
}

func (s *SessionStore) RevokeAllForUser(_ context.Context, userID uuid.UUID, keep *uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for id, session := range s.sessions {
		if session.UserID != userID || session.Status == domain.SessionStatusRevoked {
			continue
		}
		if keep != nil && id == *keep {
			continue
		}
		session.Status = domain.SessionStatusRevoked
		n++
	}
	return n, nil
}

// Get returns a copy of the stored session, or nil.
func (s *SessionStore) Get(id uuid.UUID) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *session
	return &cp
}

// BlacklistStore is an in-memory repository.BlacklistRepository.
type BlacklistStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	Err     error
	// OnExists, when set, runs before every lookup.
	OnExists func()
}

var _ repository.BlacklistRepository = (*BlacklistStore)(nil)

func NewBlacklistStore() *BlacklistStore {
	return &BlacklistStore{entries: make(map[string]time.Time)}
}

func (b *BlacklistStore) Add(_ context.Context, entry *domain.RevokedToken) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	if _, ok := b.entries[entry.TokenHash]; ok {
		return false, nil
	}
	b.entries[entry.TokenHash] = entry.ExpiresAt
	return true, nil
}

func (b *BlacklistStore) Exists(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	if b.OnExists != nil {
		b.OnExists()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	exp, ok := b.entries[tokenHash]
	return ok && exp.After(now), nil
}

func (b *BlacklistStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return 0, b.Err
	}
	var n int64
	for hash, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, hash)
			n++
		}
	}
	return n, nil
}

func (b *BlacklistStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// UserStore is an in-memory repository.UserRepository.
type UserStore struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*domain.User
	companies map[uuid.UUID]*domain.Company
	Err       error
}

var _ repository.UserRepository = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{
		users:     make(map[uuid.UUID]*domain.User),
		companies: make(map[uuid.UUID]*domain.Company),
	}
}

// Put stores user and its company, linking them.
func (u *UserStore) Put(user *domain.User, company *domain.Company) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user.CompanyID = company.ID
	cu, cc := *user, *company
	u.users[user.ID] = &cu
	u.companies[company.ID] = &cc
}

func (u *UserStore) GetWithCompany(_ context.Context, id uuid.UUID) (*domain.User, *domain.Company, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, nil, u.Err
	}
	return u.lookup(func(user *domain.User) bool { return user.ID == id })
}

func (u *UserStore) GetByEmailWithCompany(_ context.Context, email string) (*domain.User, *domain.Company, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return nil, nil, u.Err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return u.lookup(func(user *domain.User) bool { return strings.ToLower(user.Email) == email })
}

func (u *UserStore) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Err != nil {
		return u.Err
	}
	user, ok := u.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLoginAt = &at
	return nil
}

func (u *UserStore) lookup(match func(*domain.User) bool) (*domain.User, *domain.Company, error) {
	for _, user := range u.users {
		if !match(user) {
			continue
		}
		company, ok := u.companies[user.CompanyID]
		if !ok {
			return nil, nil, repository.ErrNotFound
		}
		cu, cc := *user, *company
		return &cu, &cc, nil
	}
	return nil, nil, repository.ErrNotFound
}
