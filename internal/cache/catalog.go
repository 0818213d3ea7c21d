// Package cache puts a Redis read-through layer in front of the app catalog.
// Apps are never deleted and names never change, so a resolved reference
// keeps pointing at the same id; only app bodies and listings are
// invalidated on writes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/obs"
)

const (
	keyPrefix = "beacon:catalog:"
	genKey    = keyPrefix + "gen"
)

// Catalog wraps a catalog.Service. A nil client turns it into a passthrough.
type Catalog struct {
	inner  catalog.Service
	client *redis.Client
	ttl    time.Duration
}

var _ catalog.Service = (*Catalog)(nil)

func NewCatalog(inner catalog.Service, client *redis.Client, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Catalog{inner: inner, client: client, ttl: ttl}
}

// Dial connects to addr and pings it once.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Network: "tcp",
		Addr:    addr,
		DB:      0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Catalog) CreateApp(ctx context.Context, in catalog.NewApp) (catalog.App, error) {
	app, err := c.inner.CreateApp(ctx, in)
	if err == nil {
		c.invalidate(ctx, app.ID)
	}
	return app, err
}

func (c *Catalog) UpdateApp(ctx context.Context, id string, patch catalog.AppPatch) (catalog.App, error) {
	app, err := c.inner.UpdateApp(ctx, id, patch)
	if err == nil {
		c.invalidate(ctx, app.ID)
	}
	return app, err
}

func (c *Catalog) GetApp(ctx context.Context, id string) (catalog.App, error) {
	if c.client == nil {
		return c.inner.GetApp(ctx, id)
	}
	key := keyPrefix + "app:" + id
	var app catalog.App
	if c.load(ctx, key, &app) {
		return app, nil
	}
	app, err := c.inner.GetApp(ctx, id)
	if err != nil {
		return catalog.App{}, err
	}
	c.store(ctx, key, app)
	return app, nil
}

func (c *Catalog) ResolveApp(ctx context.Context, ref string) (catalog.App, error) {
	if c.client == nil {
		return c.inner.ResolveApp(ctx, ref)
	}
	refKey := keyPrefix + "ref:" + strings.TrimSpace(ref)
	id, err := c.client.Get(ctx, refKey).Result()
	if err == nil && id != "" {
		app, err := c.GetApp(ctx, id)
		if err == nil {
			return app, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return catalog.App{}, err
		}
		// id from a previous store instance
		c.client.Del(ctx, refKey)
	} else if err != nil && !errors.Is(err, redis.Nil) {
		c.warn("get", refKey, err)
	}
	app, err := c.inner.ResolveApp(ctx, ref)
	if err != nil {
		return catalog.App{}, err
	}
	if err := c.client.Set(ctx, refKey, app.ID, c.ttl).Err(); err != nil {
		c.warn("set", refKey, err)
	}
	return app, nil
}

func (c *Catalog) ListApps(ctx context.Context, f catalog.Filter) ([]catalog.App, error) {
	if c.client == nil {
		return c.inner.ListApps(ctx, f)
	}
	key := c.listKey(ctx, "list:"+strings.ToLower(f.Category)+"|"+strings.ToLower(f.RegulatoryStatus)+"|"+string(f.Sort))
	var apps []catalog.App
	if c.load(ctx, key, &apps) {
		return apps, nil
	}
	apps, err := c.inner.ListApps(ctx, f)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, apps)
	return apps, nil
}

func (c *Catalog) Stats(ctx context.Context) (catalog.Stats, error) {
	if c.client == nil {
		return c.inner.Stats(ctx)
	}
	key := c.listKey(ctx, "stats")
	var st catalog.Stats
	if c.load(ctx, key, &st) {
		return st, nil
	}
	st, err := c.inner.Stats(ctx)
	if err != nil {
		return catalog.Stats{}, err
	}
	c.store(ctx, key, st)
	return st, nil
}

// listKey scopes aggregate keys to the current write generation so one
// INCR retires every cached listing.
func (c *Catalog) listKey(ctx context.Context, suffix string) string {
	gen, err := c.client.Get(ctx, genKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("get", genKey, err)
		}
		gen = "0"
	}
	return keyPrefix + "g" + gen + ":" + suffix
}

func (c *Catalog) invalidate(ctx context.Context, id string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, keyPrefix+"app:"+id).Err(); err != nil {
		c.warn("del", id, err)
	}
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		c.warn("incr", genKey, err)
	}
}

func (c *Catalog) load(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("get", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.warn("decode", key, err)
		return false
	}
	return true
}

func (c *Catalog) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.warn("encode", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.warn("set", key, err)
	}
}

// Redis failures degrade to the inner service.
func (c *Catalog) warn(op, key string, err error) {
	obs.Logger().Warn().Err(err).Str("op", op).Str("key", key).Msg("catalog cache")
}
