// Package storage defines the byte store used to cache loaded profiles
// between authentication attempts.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage is a namespaced key/value store with optional expiry.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns nil, nil when the key does not exist or has expired. An
	// error means the backend itself failed.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes key, or the whole namespace when key is empty.
	Delete(ctx context.Context, key string, opts ...Option) error

	// Close releases the backend.
	Close() error
}

// Item is a stored value with its metadata.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired reports whether the item has passed its expiry.
func (i *Item) IsExpired() bool {
	return i.ExpiresAt != nil && time.Now().After(*i.ExpiresAt)
}

// Option configures a storage operation.
type Option func(*Options)

// Options collects the effect of all Option values.
type Options struct {
	Namespace string         // "" = default namespace
	TTL       *time.Duration // only meaningful for Set
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNamespace scopes the operation, typically to one OAuth client.
func WithNamespace(ns string) Option {
	return func(o *Options) { o.Namespace = ns }
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// ErrInvalidTTL is returned by Set for a non-positive TTL.
var ErrInvalidTTL = errors.New("storage: ttl must be positive")
