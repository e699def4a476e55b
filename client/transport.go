package client

import (
	"net/http"
)

// SessionSource yields the active session id, or "" when signed out.
// *studo.SessionActivator satisfies it.
type SessionSource interface {
	SessionID() string
}

// SessionTransport wraps an http.RoundTripper to add the active session as a
// bearer token. Requests that already carry an Authorization header are left
// alone.
type SessionTransport struct {
	Base     http.RoundTripper
	Sessions SessionSource
}

// RoundTrip implements http.RoundTripper
func (t *SessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") == "" && t.Sessions != nil {
		if sessionID := t.Sessions.SessionID(); sessionID != "" {
			// Clone the request to avoid mutating the original
			req2 := req.Clone(req.Context())
			req2.Header.Set("Authorization", "Bearer "+sessionID)
			req = req2
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(req)
}

// NewSessionTransport creates a SessionTransport over http.DefaultTransport
func NewSessionTransport(sessions SessionSource) *SessionTransport {
	return &SessionTransport{
		Base:     http.DefaultTransport,
		Sessions: sessions,
	}
}

// NewSessionTransportWithBase creates a SessionTransport with a custom base transport
func NewSessionTransportWithBase(base http.RoundTripper, sessions SessionSource) *SessionTransport {
	return &SessionTransport{
		Base:     base,
		Sessions: sessions,
	}
}
