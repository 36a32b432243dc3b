// Package store provides the durable failure.Store implementation, backed
// by an embedded SQLite database.
package store
