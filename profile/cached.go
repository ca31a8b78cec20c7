package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
	"github.com/ggoodman/passwordgrant-go/storage"
)

// Cached memoizes another loader's profiles in a storage.Storage, keyed by a
// SHA-256 digest of the access token. Storage failures are logged and fall
// through to the wrapped loader; loader errors are never cached.
type Cached struct {
	next  passwordgrant.ProfileLoader
	store storage.Storage
	ttl   time.Duration
	ns    string
	log   *slog.Logger
}

// NewCached wraps next. ttl must be positive.
func NewCached(next passwordgrant.ProfileLoader, store storage.Storage, ttl time.Duration, opts ...Option) (*Cached, error) {
	if next == nil {
		return nil, errors.New("profile loader is required")
	}
	if store == nil {
		return nil, errors.New("storage is required")
	}
	if ttl <= 0 {
		return nil, storage.ErrInvalidTTL
	}
	o := apply(opts)
	return &Cached{next: next, store: store, ttl: ttl, ns: o.namespace, log: o.logger}, nil
}

func cacheKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

func (c *Cached) LoadProfile(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
	key := cacheKey(accessToken)
	ns := storage.WithNamespace(c.ns)

	item, err := c.store.Get(ctx, key, ns)
	switch {
	case err != nil:
		c.log.WarnContext(ctx, "profile.cache.get.fail", slog.String("err", err.Error()))
	case item != nil:
		// A cached "null" is a nil profile from the wrapped loader.
		var p passwordgrant.Profile
		if err := json.Unmarshal(item.Data, &p); err == nil {
			return p, nil
		}
		c.log.WarnContext(ctx, "profile.cache.corrupt")
	}

	p, err := c.next.LoadProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		c.log.WarnContext(ctx, "profile.cache.encode.fail", slog.String("err", err.Error()))
		return p, nil
	}
	if err := c.store.Set(ctx, key, data, ns, storage.WithTTL(c.ttl)); err != nil {
		c.log.WarnContext(ctx, "profile.cache.set.fail", slog.String("err", err.Error()))
	}
	return p, nil
}

// Invalidate drops the cached profile for accessToken.
func (c *Cached) Invalidate(ctx context.Context, accessToken string) error {
	return c.store.Delete(ctx, cacheKey(accessToken), storage.WithNamespace(c.ns))
}

var _ passwordgrant.ProfileLoader = (*Cached)(nil)
