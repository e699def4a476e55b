package devidp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Shmulls/Studo/oauth2"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid credentials")
	ErrNoPassword      = errors.New("user has no password")
)

// User is an account of the dev identity service. Names are nil until set.
type User struct {
	ID        string
	Email     string
	FirstName *string
	LastName  *string

	passwordHash []byte
	external     map[string]string // provider -> subject
}

func (u *User) clone() *User {
	out := *u
	out.FirstName = clonePtr(u.FirstName)
	out.LastName = clonePtr(u.LastName)
	out.external = make(map[string]string, len(u.external))
	for k, v := range u.external {
		out.external[k] = v
	}
	return &out
}

// UserStore keeps users in memory
type UserStore struct {
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost
	Cost int

	mu         sync.RWMutex
	byID       map[string]*User
	byEmail    map[string]string
	byExternal map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[string]*User),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
	}
}

// CreateUser registers a password user. Empty names are stored as unset.
func (s *UserStore) CreateUser(email, password, firstName, lastName string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email required")
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, email)
	}
	u := &User{
		ID:           "user_" + randomHex(12),
		Email:        email,
		FirstName:    optional(firstName),
		LastName:     optional(lastName),
		passwordHash: hash,
		external:     make(map[string]string),
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u.clone(), nil
}

// Authenticate checks an email/password pair
func (s *UserStore) Authenticate(email, password string) (*User, error) {
	s.mu.RLock()
	u, err := s.lookupEmail(email)
	var hash []byte
	if err == nil {
		hash = u.passwordHash
		u = u.clone()
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, ErrNoPassword
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return u, nil
}

func (s *UserStore) FindByEmail(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.lookupEmail(email)
	if err != nil {
		return nil, err
	}
	return u.clone(), nil
}

func (s *UserStore) GetUser(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.clone(), nil
}

// SetPassword replaces a user's password hash
func (s *UserStore) SetPassword(id, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.passwordHash = hash
	return nil
}

// UpdateNames sets both names; nil or blank clears a name
func (s *UserStore) UpdateNames(id string, firstName, lastName *string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.FirstName = optionalPtr(firstName)
	u.LastName = optionalPtr(lastName)
	return u.clone(), nil
}

// EnsureExternalUser finds the user linked to an upstream identity. An
// unlinked identity is linked to the account with the same email, or a new
// passwordless account is created for it.
func (s *UserStore) EnsureExternalUser(provider string, info oauth2.UserInfo) (*User, error) {
	if info.Subject == "" {
		return nil, fmt.Errorf("%s identity has no subject", provider)
	}
	key := provider + ":" + info.Subject

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[key]; ok {
		return s.byID[id].clone(), nil
	}

	var u *User
	if email := normalizeEmail(info.Email); email != "" {
		if id, ok := s.byEmail[email]; ok {
			u = s.byID[id]
		}
	}
	if u == nil {
		u = &User{
			ID:        "user_" + randomHex(12),
			Email:     normalizeEmail(info.Email),
			FirstName: optional(info.FirstName),
			LastName:  optional(info.LastName),
			external:  make(map[string]string),
		}
		s.byID[u.ID] = u
		if u.Email != "" {
			s.byEmail[u.Email] = u.ID
		}
	}
	u.external[provider] = info.Subject
	s.byExternal[key] = u.ID
	return u.clone(), nil
}

func (s *UserStore) lookupEmail(email string) (*User, error) {
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *UserStore) hash(password string) ([]byte, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return optional(*s)
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
