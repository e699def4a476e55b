package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SessionSource yields the active session id, or "" when signed out.
// *studo.SessionActivator satisfies it.
type SessionSource interface {
	SessionID() string
}

// SessionValidator checks a session id presented by a caller.
type SessionValidator func(ctx context.Context, sessionID string) error

// InterceptorConfig configures the server-side session interceptor.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// RequireAuth when true rejects requests without a session.
	// When false, requests proceed but SessionIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require a session.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// Validate, if set, is called for every presented session id.
	Validate SessionValidator
}

// DefaultInterceptorConfig returns a config that requires a session for all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows requests without a session.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

func (config *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	return config
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that checks the session metadata.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if err := authorize(ctx, config, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that checks the session metadata.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := authorize(ss.Context(), config, info.FullMethod); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func authorize(ctx context.Context, config *InterceptorConfig, method string) error {
	sessionID := extractSessionID(ctx, config)

	if sessionID == "" {
		if config.RequireAuth && !config.PublicMethods[method] {
			return status.Error(codes.Unauthenticated, "authentication required")
		}
		return nil
	}

	if config.Validate != nil {
		if err := config.Validate(ctx, sessionID); err != nil {
			return status.Error(codes.Unauthenticated, "invalid session")
		}
	}
	return nil
}

func extractSessionID(ctx context.Context, config *InterceptorConfig) string {
	return SessionIDFromContextWithConfig(ctx, config.Config)
}

// UnaryClientInterceptor attaches the active session of sessions to every
// outgoing unary call. Calls made while signed out go out unchanged.
func UnaryClientInterceptor(sessions SessionSource, config *Config) grpc.UnaryClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if sessionID := sessions.SessionID(); sessionID != "" {
			ctx = SessionIDToOutgoingContextWithKey(ctx, sessionID, config.MetadataKeySessionID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of UnaryClientInterceptor.
func StreamClientInterceptor(sessions SessionSource, config *Config) grpc.StreamClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if sessionID := sessions.SessionID(); sessionID != "" {
			ctx = SessionIDToOutgoingContextWithKey(ctx, sessionID, config.MetadataKeySessionID)
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}
