package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.MetadataKeySessionID != DefaultMetadataKeySessionID {
		t.Errorf("expected MetadataKeySessionID %q, got %q", DefaultMetadataKeySessionID, config.MetadataKeySessionID)
	}
}

func TestEnsureDefaults(t *testing.T) {
	config := &Config{}
	config.EnsureDefaults()
	if config.MetadataKeySessionID != DefaultMetadataKeySessionID {
		t.Errorf("expected MetadataKeySessionID %q, got %q", DefaultMetadataKeySessionID, config.MetadataKeySessionID)
	}
}

func TestSessionIDFromContext_NoMetadata(t *testing.T) {
	ctx := context.Background()
	sessionID := SessionIDFromContext(ctx)
	if sessionID != "" {
		t.Errorf("expected empty session id, got %q", sessionID)
	}
}

func TestSessionIDFromContext_WithSessionID(t *testing.T) {
	md := metadata.Pairs(DefaultMetadataKeySessionID, "sess_123")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	sessionID := SessionIDFromContext(ctx)
	if sessionID != "sess_123" {
		t.Errorf("expected session id %q, got %q", "sess_123", sessionID)
	}
}

func TestSessionIDToOutgoingContext(t *testing.T) {
	ctx := context.Background()
	ctx = SessionIDToOutgoingContext(ctx, "sess_789")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}

	values := md.Get(DefaultMetadataKeySessionID)
	if len(values) != 1 || values[0] != "sess_789" {
		t.Errorf("expected session id %q in outgoing context, got %v", "sess_789", values)
	}
}

func TestSessionIDToOutgoingContextWithKey(t *testing.T) {
	ctx := context.Background()
	ctx = SessionIDToOutgoingContextWithKey(ctx, "sess_789", "custom-session-key")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}

	values := md.Get("custom-session-key")
	if len(values) != 1 || values[0] != "sess_789" {
		t.Errorf("expected session id %q with custom key, got %v", "sess_789", values)
	}
}

func TestIsAuthenticated(t *testing.T) {
	// No session
	ctx := context.Background()
	if IsAuthenticated(ctx) {
		t.Error("expected not authenticated with empty context")
	}

	// With session
	md := metadata.Pairs(DefaultMetadataKeySessionID, "sess_123")
	ctx = metadata.NewIncomingContext(context.Background(), md)
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated with session in context")
	}
}

func TestCustomMetadataKeys(t *testing.T) {
	config := &Config{MetadataKeySessionID: "x-custom-session"}

	md := metadata.Pairs("x-custom-session", "sess_custom")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if got := SessionIDFromContextWithConfig(ctx, config); got != "sess_custom" {
		t.Errorf("expected session id %q with custom key, got %q", "sess_custom", got)
	}
	if IsAuthenticatedWithConfig(ctx, nil) {
		t.Error("expected not authenticated under the default key")
	}
	if !IsAuthenticatedWithConfig(ctx, config) {
		t.Error("expected authenticated under the custom key")
	}
}

func TestSessionIDFromContext_SkipsBlankValues(t *testing.T) {
	md := metadata.Pairs(DefaultMetadataKeySessionID, "  ", DefaultMetadataKeySessionID, "sess_2")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	if got := SessionIDFromContext(ctx); got != "sess_2" {
		t.Errorf("expected session id %q, got %q", "sess_2", got)
	}

	blank := metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultMetadataKeySessionID, ""))
	if IsAuthenticated(blank) {
		t.Error("expected a blank session id to count as signed out")
	}
}

func TestSessionIDToOutgoingContext_ReplacesExisting(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-1")
	ctx = SessionIDToOutgoingContext(ctx, "sess_old")
	ctx = SessionIDToOutgoingContext(ctx, "sess_new")

	md, _ := metadata.FromOutgoingContext(ctx)
	if values := md.Get(DefaultMetadataKeySessionID); len(values) != 1 || values[0] != "sess_new" {
		t.Errorf("expected only %q, got %v", "sess_new", values)
	}
	if values := md.Get("x-request-id"); len(values) != 1 {
		t.Errorf("expected other metadata to survive, got %v", values)
	}

	ctx = SessionIDToOutgoingContext(ctx, "")
	md, _ = metadata.FromOutgoingContext(ctx)
	if values := md.Get(DefaultMetadataKeySessionID); len(values) != 0 {
		t.Errorf("expected session id removed, got %v", values)
	}
}

func TestNilConfigUsesDefaultKey(t *testing.T) {
	md := metadata.Pairs(DefaultMetadataKeySessionID, "sess_1")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	if got := SessionIDFromContextWithConfig(ctx, nil); got != "sess_1" {
		t.Errorf("expected session id %q, got %q", "sess_1", got)
	}
}
