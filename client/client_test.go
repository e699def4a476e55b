package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticSessions string

func (s staticSessions) SessionID() string { return string(s) }

func TestFrontendClient_URLNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:8080", "http://localhost:8080"},
		{"http://localhost:8080/api/v1", "http://localhost:8080"},
		{"https://idp.example.com/", "https://idp.example.com"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := NewFrontendClient(tt.in).ServerURL(); got != tt.want {
			t.Errorf("ServerURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSessionTransport_AddsBearer(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	httpClient := &http.Client{Transport: NewSessionTransport(staticSessions("sess_abc"))}
	resp, err := httpClient.Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "Bearer sess_abc" {
		t.Errorf("Authorization header = %v, want Bearer sess_abc", receivedAuth)
	}
}

func TestSessionTransport_NoHeaderWhenSignedOut(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	httpClient := NewFrontendClient(server.URL).AuthenticatedClient(staticSessions(""))
	resp, err := httpClient.Get(server.URL + "/api/resource")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "" {
		t.Errorf("Authorization header = %v, want empty", receivedAuth)
	}
}

func TestSessionTransport_KeepsExplicitHeader(t *testing.T) {
	var receivedAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer explicit")

	transport := NewSessionTransportWithBase(http.DefaultTransport, staticSessions("sess_abc"))
	resp, err := (&http.Client{Transport: transport}).Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if receivedAuth != "Bearer explicit" {
		t.Errorf("Authorization header = %v, want Bearer explicit", receivedAuth)
	}
}
