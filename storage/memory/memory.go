// Package memory provides an in-process storage.Storage backed by
// github.com/hashicorp/golang-lru/v2, with TTL support.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ggoodman/passwordgrant-go/storage"
)

// Storage implements storage.Storage in memory. The least recently used
// entries are evicted once maxItems is reached.
type Storage struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *storage.Item]
	stop  chan struct{}
	once  sync.Once
}

// New creates a store holding at most maxItems entries and starts a
// background sweep of expired entries; Close stops it.
func New(maxItems int) (*Storage, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Storage{
		cache: cache,
		stop:  make(chan struct{}),
	}
	go s.sweep(time.Minute)

	return s, nil
}

func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Apply(opts...)
	k := buildKey(o.Namespace, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cache.Get(k)
	if !ok {
		return nil, nil
	}
	if item.IsExpired() {
		s.cache.Remove(k)
		return nil, nil
	}
	return item, nil
}

func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Apply(opts...)

	now := time.Now()
	item := &storage.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
	}
	if o.TTL != nil {
		if *o.TTL <= 0 {
			return storage.ErrInvalidTTL
		}
		exp := now.Add(*o.TTL)
		item.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.cache.Add(buildKey(o.Namespace, key), item)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string, opts ...storage.Option) error {
	o := storage.Apply(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		s.cache.Remove(buildKey(o.Namespace, key))
		return nil
	}
	prefix := namespacePrefix(o.Namespace)
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	return nil
}

// Close purges the cache and stops the sweeper.
func (s *Storage) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

func namespacePrefix(ns string) string {
	return "ns:" + ns + ":"
}

func buildKey(ns, key string) string {
	return namespacePrefix(ns) + key
}

func (s *Storage) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		now := time.Now()
		s.mu.Lock()
		for _, k := range s.cache.Keys() {
			if item, ok := s.cache.Peek(k); ok && item.ExpiresAt != nil && now.After(*item.ExpiresAt) {
				s.cache.Remove(k)
			}
		}
		s.mu.Unlock()
	}
}

var _ storage.Storage = (*Storage)(nil)
