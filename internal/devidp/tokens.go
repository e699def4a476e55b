package devidp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Lifetimes of the short-lived records
const (
	ResetCodeExpiry  = 10 * time.Minute
	OAuthFlowExpiry  = 10 * time.Minute
	CompletionExpiry = 2 * time.Minute
	LockoutDuration  = 15 * time.Minute
	MaxFailures      = 5
)

var (
	errRecordNotFound = errors.New("record not found")
	errRecordExpired  = errors.New("record expired")
)

// resetSignIn is a password reset waiting for its emailed code
type resetSignIn struct {
	ID        string
	UserID    string
	Email     string
	Code      string
	ExpiresAt time.Time
}

// oauthSignIn is an OAuth sign-in waiting for the browser round-trip
type oauthSignIn struct {
	ID            string
	Strategy      string
	Provider      string
	ReturnURL     string
	CodeChallenge string
	ExpiresAt     time.Time
}

// completion is a one-time code handed to the app after the browser leg.
// It is bound to the PKCE challenge of the sign-in that produced it.
type completion struct {
	Code          string
	UserID        string
	Strategy      string
	CodeChallenge string
	ExpiresAt     time.Time
}

type sessionRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// records holds every short-lived server record behind one lock
type records struct {
	mu          sync.Mutex
	resets      map[string]*resetSignIn
	oauth       map[string]*oauthSignIn
	completions map[string]*completion
	sessions    map[string]*sessionRecord
	failures    map[string]*failureCount
}

type failureCount struct {
	count       int
	lockedUntil time.Time
}

func newRecords() *records {
	return &records{
		resets:      make(map[string]*resetSignIn),
		oauth:       make(map[string]*oauthSignIn),
		completions: make(map[string]*completion),
		sessions:    make(map[string]*sessionRecord),
		failures:    make(map[string]*failureCount),
	}
}

func (r *records) putReset(rs *resetSignIn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[rs.ID] = rs
}

func (r *records) getReset(id string, now time.Time) (*resetSignIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.resets[id]
	if !ok {
		return nil, errRecordNotFound
	}
	if now.After(rs.ExpiresAt) {
		delete(r.resets, id)
		return nil, errRecordExpired
	}
	out := *rs
	return &out, nil
}

func (r *records) deleteReset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resets, id)
}

func (r *records) putOAuth(o *oauthSignIn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oauth[o.ID] = o
}

func (r *records) getOAuth(id string, now time.Time) (*oauthSignIn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.oauth[id]
	if !ok {
		return nil, errRecordNotFound
	}
	if now.After(o.ExpiresAt) {
		delete(r.oauth, id)
		return nil, errRecordExpired
	}
	out := *o
	return &out, nil
}

func (r *records) takeOAuth(id string, now time.Time) (*oauthSignIn, error) {
	o, err := r.getOAuth(id, now)
	if err == nil {
		r.mu.Lock()
		delete(r.oauth, id)
		r.mu.Unlock()
	}
	return o, err
}

func (r *records) putCompletion(c *completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions[c.Code] = c
}

// takeCompletion consumes a completion code; a second take fails
func (r *records) takeCompletion(code string, now time.Time) (*completion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.completions[code]
	if !ok {
		return nil, errRecordNotFound
	}
	delete(r.completions, code)
	if now.After(c.ExpiresAt) {
		return nil, errRecordExpired
	}
	return c, nil
}

func (r *records) newSession(userID string, now time.Time) *sessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &sessionRecord{ID: "sess_" + randomHex(16), UserID: userID, CreatedAt: now}
	r.sessions[s.ID] = s
	return s
}

func (r *records) getSession(id string) (*sessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errRecordNotFound
	}
	return s, nil
}

func (r *records) endSession(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// locked reports whether key has hit MaxFailures and is still locked out
func (r *records) locked(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.failures[key]
	if !ok {
		return false
	}
	if !f.lockedUntil.IsZero() && now.After(f.lockedUntil) {
		delete(r.failures, key)
		return false
	}
	return f.count >= MaxFailures
}

func (r *records) recordFailure(key string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.failures[key]
	if !ok {
		f = &failureCount{}
		r.failures[key] = f
	}
	f.count++
	if f.count >= MaxFailures {
		f.lockedUntil = now.Add(LockoutDuration)
	}
}

func (r *records) clearFailures(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, key)
}

// generateCode returns a random numeric code of n digits
func generateCode(n int) (string, error) {
	limit := big.NewInt(1)
	for range n {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
