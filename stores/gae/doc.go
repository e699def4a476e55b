//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the studo
// SessionStore and FlowStore interfaces. It supports multi-tenancy through
// Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - ActiveSession: The active session of a client key
//   - OAuthFlow: Pending OAuth flows waiting for the deep link to come back
//
// # Namespacing
//
// All stores support Datastore namespaces. Pass a namespace when creating
// stores to isolate data between tenants:
//
//	sessions := gae.NewSessionStore(client, "tenant-123", deviceID)
//	flows := gae.NewFlowStore(client, "tenant-123", deviceID)
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	sessions := gae.NewSessionStore(client, "", deviceID)  // default namespace
//	flows := gae.NewFlowStore(client, "", deviceID)
package gae
