package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/superfly/frameRender/metrics"
	"github.com/superfly/frameRender/pool"
	"github.com/superfly/frameRender/session"
	"github.com/superfly/frameRender/stats"
)

// FactoryFunc returns the session factory for a render configuration.
type FactoryFunc func(cfg session.Config) session.Factory

// DefaultFactory renders mock:// urls in-process and everything else in Chrome.
// args are extra Chrome command line flags.
func DefaultFactory(args []string) FactoryFunc {
	return func(cfg session.Config) session.Factory {
		if session.IsMockUrl(cfg.Url) {
			return session.DefaultMock(cfg).Factory()
		}
		cfg.Args = append(cfg.Args, args...)
		return session.NewChromeFactory(cfg)
	}
}

// Cache holds at most one pool, for the most recently requested configuration.
type Cache struct {
	size       int
	newFactory FactoryFunc
	log        *zap.Logger
	stats      *stats.Set

	mu   sync.Mutex
	key  string
	pool *pool.Pool
}

func NewCache(size int, newFactory FactoryFunc, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		size:       size,
		newFactory: newFactory,
		log:        log,
		stats:      stats.NewSet(),
	}
}

// Stats returns timings shared by every pool the cache builds.
func (c *Cache) Stats() *stats.Set {
	return c.stats
}

// Get returns the pool for cfg. If a pool for another configuration is live,
// it is ended before the new one is created.
func (c *Cache) Get(cfg session.Config) *pool.Pool {
	key := cfg.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil && c.key == key {
		return c.pool
	}

	if c.pool != nil {
		c.log.Info("cache: config changed, ending pool", zap.String("old", c.key), zap.String("new", key))
		if err := c.pool.End(); err != nil {
			c.log.Warn("cache: end pool", zap.Error(err))
		}
		c.pool = nil
	}

	c.log.Info("cache: new pool", zap.String("config", key), zap.Int("size", c.size))
	c.key = key
	c.pool = pool.New(c.newFactory(cfg),
		pool.Size(c.size),
		pool.Logger(c.log),
		pool.Stats(c.stats))
	metrics.PoolRebuilds.Inc()
	return c.pool
}

// Close ends the live pool, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool == nil {
		return nil
	}
	err := c.pool.End()
	c.pool = nil
	c.key = ""
	return err
}
