// Package fs provides a file system-based session and OAuth flow store for
// studo clients.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	studo "github.com/Shmulls/Studo"
)

// DefaultFileName is the state file created under the state directory
const DefaultFileName = "state.json"

// FSStateStore keeps the active session and pending OAuth flows of one
// identity service in a JSON file. Every mutation is written through, so a
// flow started by one process can be finished by the next.
type FSStateStore struct {
	mu     sync.RWMutex
	path   string
	server string
	file   stateFile
}

var (
	_ studo.SessionStore = (*FSStateStore)(nil)
	_ studo.FlowStore    = (*FSStateStore)(nil)
	_ studo.FlowTaker    = (*FSStateStore)(nil)
)

// stateFile is the JSON structure stored on disk
type stateFile struct {
	Servers map[string]*serverState `json:"servers"`
}

type serverState struct {
	Session *studo.ActiveSession               `json:"session,omitempty"`
	Flows   map[string]*studo.PendingOAuthFlow `json:"flows,omitempty"`
}

// NewFSStateStore creates a store for serverURL.
// If dir is empty, defaults to ~/.config/<appName>.
func NewFSStateStore(dir, appName, serverURL string) (*FSStateStore, error) {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "studo"
		}
		dir = filepath.Join(configDir, appName)
	}

	key, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}

	s := &FSStateStore{
		path:   filepath.Join(dir, DefaultFileName),
		server: key,
		file:   stateFile{Servers: make(map[string]*serverState)},
	}

	// Load existing state if file exists
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *FSStateStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}
	if file.Servers == nil {
		file.Servers = make(map[string]*serverState)
	}
	s.file = file
	return nil
}

// normalizeURL normalizes a server URL for use as a key
func normalizeURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// saveLocked persists the state. Caller must hold s.mu.
func (s *FSStateStore) saveLocked() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	// Owner read/write only: the file holds a live session id
	return writeAtomicFile(s.path, data, 0600)
}

func (s *FSStateStore) serverLocked() *serverState {
	st, ok := s.file.Servers[s.server]
	if !ok {
		st = &serverState{}
		s.file.Servers[s.server] = st
	}
	if st.Flows == nil {
		st.Flows = make(map[string]*studo.PendingOAuthFlow)
	}
	return st
}

func (s *FSStateStore) LoadSession(ctx context.Context) (*studo.ActiveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.file.Servers[s.server]
	if !ok || st.Session == nil {
		return nil, nil
	}
	session := *st.Session
	return &session, nil
}

func (s *FSStateStore) SaveSession(ctx context.Context, session *studo.ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return studo.ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.serverLocked().Session = &copied
	return s.saveLocked()
}

func (s *FSStateStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.file.Servers[s.server]
	if !ok || st.Session == nil {
		return nil
	}
	st.Session = nil
	return s.saveLocked()
}

func (s *FSStateStore) SaveFlow(ctx context.Context, flow *studo.PendingOAuthFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *flow
	s.serverLocked().Flows[flow.ID] = &copied
	return s.saveLocked()
}

func (s *FSStateStore) GetFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.file.Servers[s.server]
	if !ok {
		return nil, studo.ErrFlowNotFound
	}
	flow, ok := st.Flows[id]
	if !ok {
		return nil, studo.ErrFlowNotFound
	}
	copied := *flow
	return &copied, nil
}

func (s *FSStateStore) DeleteFlow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.file.Servers[s.server]
	if !ok {
		return nil
	}
	if _, ok := st.Flows[id]; !ok {
		return nil
	}
	delete(st.Flows, id)
	return s.saveLocked()
}

// TakeFlow removes and returns a flow in one write
func (s *FSStateStore) TakeFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.file.Servers[s.server]
	if !ok {
		return nil, studo.ErrFlowNotFound
	}
	flow, ok := st.Flows[id]
	if !ok {
		return nil, studo.ErrFlowNotFound
	}
	delete(st.Flows, id)
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return flow, nil
}

// PurgeExpiredFlows drops flows that can no longer be resumed and returns
// how many were removed.
func (s *FSStateStore) PurgeExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.file.Servers[s.server]
	if !ok {
		return 0, nil
	}
	n := 0
	for id, flow := range st.Flows {
		if flow.IsExpired(now) {
			delete(st.Flows, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.saveLocked()
}

// Path returns the path to the state file
func (s *FSStateStore) Path() string {
	return s.path
}
