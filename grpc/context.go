// Package grpc carries the active studo session between a client and gRPC
// services via metadata.
//
// A client attaches the session id it got from SessionActivator; a service
// reads it back and, when the interceptor has a validator, checks it with the
// identity service before the handler runs. One call carries at most one
// session id.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeySessionID is the metadata key a session id travels under
// unless Config names another one.
const DefaultMetadataKeySessionID = "x-session-id"

// Config selects the metadata key. A nil *Config uses the default key.
type Config struct {
	MetadataKeySessionID string
}

// DefaultConfig returns a Config using DefaultMetadataKeySessionID.
func DefaultConfig() *Config {
	return &Config{MetadataKeySessionID: DefaultMetadataKeySessionID}
}

// EnsureDefaults sets the default key when none is configured.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionID == "" {
		c.MetadataKeySessionID = DefaultMetadataKeySessionID
	}
}

func (c *Config) key() string {
	if c == nil || c.MetadataKeySessionID == "" {
		return DefaultMetadataKeySessionID
	}
	return c.MetadataKeySessionID
}

// SessionIDFromContext returns the session id the caller presented, or "".
func SessionIDFromContext(ctx context.Context) string {
	return SessionIDFromContextWithConfig(ctx, nil)
}

// SessionIDFromContextWithConfig reads the session id under config's key.
// Blank values are skipped, so a caller that sent an empty header is treated
// as signed out.
func SessionIDFromContextWithConfig(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(config.key()) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// SessionIDToOutgoingContext presents sessionID on calls made with the returned context.
func SessionIDToOutgoingContext(ctx context.Context, sessionID string) context.Context {
	return SessionIDToOutgoingContextWithKey(ctx, sessionID, DefaultMetadataKeySessionID)
}

// SessionIDToOutgoingContextWithKey replaces any session id already on the
// outgoing metadata. An empty sessionID removes it.
func SessionIDToOutgoingContextWithKey(ctx context.Context, sessionID string, key string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if sessionID == "" {
		md.Delete(key)
	} else {
		md.Set(key, sessionID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// IsAuthenticated reports whether the caller presented a session. It does not
// validate it; that is the interceptor's job.
func IsAuthenticated(ctx context.Context) bool {
	return SessionIDFromContext(ctx) != ""
}

// IsAuthenticatedWithConfig is IsAuthenticated under config's key.
func IsAuthenticatedWithConfig(ctx context.Context, config *Config) bool {
	return SessionIDFromContextWithConfig(ctx, config) != ""
}
