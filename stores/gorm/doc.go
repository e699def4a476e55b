//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the studo SessionStore
// and FlowStore interfaces. It supports any database that GORM supports
// (PostgreSQL, MySQL, SQLite, etc.) and suits clients that share a database,
// such as a kiosk fleet or a backend-for-frontend keeping one session per
// device.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - active_sessions: The active session of each client key
//   - oauth_flows: Pending OAuth flows waiting for the deep link to come back
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	sessions := studo.NewSessionActivator(
//	    studo.WithSessionStore(gormstore.NewSessionStore(db, deviceID)))
//	flow := studo.NewFlowController(provider, sessions,
//	    studo.WithFlowStore(gormstore.NewFlowStore(db, deviceID)))
package gorm
