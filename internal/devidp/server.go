// Package devidp is an in-memory identity service that speaks the Frontend
// API used by client.FrontendClient. It backs local development and the
// end-to-end tests; it is not meant for production.
package devidp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"

	"github.com/Shmulls/Studo/client"
	"github.com/Shmulls/Studo/oauth2"
)

// OAuthCallbackPath is where upstream providers send the browser back to;
// the provider name is appended as the last path segment.
const OAuthCallbackPath = "/v1/oauth_callback"

type Server struct {
	baseURL   string
	users     *UserStore
	records   *records
	mailer    Mailer
	providers *oauth2.Registry
	session   *scs.SessionManager
	router    *mux.Router
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Server)

func WithUserStore(users *UserStore) Option {
	return func(s *Server) {
		if users != nil {
			s.users = users
		}
	}
}

func WithMailer(m Mailer) Option {
	return func(s *Server) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithProviders sets the upstream OAuth providers. Their callback URLs are
// rewritten to point at this server.
func WithProviders(r *oauth2.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.providers = r
		}
	}
}

func WithSessionManager(sm *scs.SessionManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.session = sm
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer creates a server reachable at baseURL
func NewServer(baseURL string, opts ...Option) *Server {
	s := &Server{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		users:     NewUserStore(),
		records:   newRecords(),
		providers: oauth2.NewRegistry(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == nil {
		s.session = scs.New()
		s.session.Lifetime = OAuthFlowExpiry
		s.session.Cookie.Name = "studo_idp"
	}
	if s.mailer == nil {
		s.mailer = &ConsoleMailer{Logger: s.logger}
	}
	s.logger = s.logger.With(slog.String("component", "devidp"))
	s.providers.SetCallbackBase(s.baseURL + OAuthCallbackPath)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc(client.SignInsPath, s.handleCreateSignIn).Methods(http.MethodPost)
	r.HandleFunc(client.SignInsPath+"/{id}/attempt_first_factor", s.handleAttemptFirstFactor).Methods(http.MethodPost)
	r.HandleFunc(client.OAuthCompletePath, s.handleOAuthComplete).Methods(http.MethodPost)

	r.HandleFunc("/v1/oauth/authorize/{id}", s.handleOAuthAuthorize).Methods(http.MethodGet)
	r.HandleFunc(OAuthCallbackPath+"/{provider}", s.handleOAuthCallback).Methods(http.MethodGet)

	me := r.PathPrefix(client.MePath).Subrouter()
	me.Use(s.requireSession)
	me.HandleFunc("", s.handleGetMe).Methods(http.MethodGet)
	me.HandleFunc("", s.handleUpdateMe).Methods(http.MethodPatch)

	sessions := r.PathPrefix(client.CurrentSessionPath).Subrouter()
	sessions.Use(s.requireSession)
	sessions.HandleFunc("", s.handleEndSession).Methods(http.MethodDelete)

	s.router = r
}

// Handler returns the HTTP handler, with the browser session loaded
func (s *Server) Handler() http.Handler {
	return s.session.LoadAndSave(s.router)
}

func (s *Server) Users() *UserStore {
	return s.users
}

// ValidateSession reports whether id is a live session. It fits the
// SessionValidator hook of the grpc interceptors.
func (s *Server) ValidateSession(ctx context.Context, id string) error {
	if _, err := s.records.getSession(id); err != nil {
		return errors.New("unknown session")
	}
	return nil
}

// API error codes
const (
	CodeParamMissing        = "form_param_missing"
	CodeParamInvalid        = "form_param_format_invalid"
	CodeIdentifierNotFound  = "form_identifier_not_found"
	CodePasswordIncorrect   = "form_password_incorrect"
	CodePasswordTooShort    = "form_password_length_too_short"
	CodeCodeIncorrect       = "form_code_incorrect"
	CodeTooManyRequests     = "too_many_requests"
	CodeVerificationExpired = "verification_expired"
	CodeNotFound            = "resource_not_found"
	CodeStrategyNotAllowed  = "strategy_for_user_invalid"
	CodeProviderNotEnabled  = "oauth_provider_not_enabled"
	CodeOAuthCodeInvalid    = "oauth_code_invalid"
	CodeVerifierInvalid     = "oauth_code_verifier_invalid"
	CodeUnauthenticated     = "authentication_invalid"
)

// MinPasswordLength is the shortest password accepted on reset
const MinPasswordLength = 8

type apiError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	LongMessage string `json:"long_message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"response": v})
}

func writeError(w http.ResponseWriter, status int, code, message, long string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"errors": []apiError{{Code: code, Message: message, LongMessage: long}},
	})
}
