// Package cache provides read-through caches invalidated by PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vendstock/internal/core/id"
	"vendstock/internal/domain/product"
	"vendstock/pkg/logger"
)

// ChannelProductsChanged is raised by the products table trigger with the product id as payload.
const ChannelProductsChanged = "products_changed"

// InvalidationListener is called after an entry was dropped.
type InvalidationListener func(channel string, payload string)

// ProductCache is a product.Repository that memoizes GetByID.
// Writes through the cache drop the entry locally; writes by other processes
// arrive as NOTIFY events when a pool is given.
type ProductCache struct {
	repo  product.Repository
	pool  *pgxpool.Pool
	mu    sync.RWMutex
	items map[id.ID]*product.Product

	hits   uint64
	misses uint64

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewProductCache wraps repo. A nil pool disables cross-process invalidation.
func NewProductCache(repo product.Repository, pool *pgxpool.Pool) *ProductCache {
	return &ProductCache{
		repo:  repo,
		pool:  pool,
		items: make(map[id.ID]*product.Product),
	}
}

var _ product.Repository = (*ProductCache)(nil)

// Start begins listening for NOTIFY events.
func (c *ProductCache) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started || c.pool == nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "product cache started")
}

// Stop gracefully stops the listener.
func (c *ProductCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	logger.Info(context.Background(), "product cache stopped")
}

func (c *ProductCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// LISTEN needs a dedicated connection
		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+ChannelProductsChanged); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "channel", ChannelProductsChanged, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Anything cached before LISTEN may have missed a notification.
		c.Purge()
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *ProductCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		// Timeout lets the loop notice shutdown
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				continue
			}
			// Connection lost; listenLoop reacquires.
			logger.Warn(c.ctx, "product cache listener interrupted", "error", err)
			return
		}

		c.handleNotification(notification.Channel, notification.Payload)
	}
}

// handleNotification drops the named product, or everything when the payload is not an id.
func (c *ProductCache) handleNotification(channel, payload string) {
	if channel != ChannelProductsChanged {
		return
	}
	if productID, err := id.Parse(payload); err == nil {
		c.Invalidate(productID)
	} else {
		c.Purge()
	}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			l(channel, payload)
		}(listener)
	}
}

// OnInvalidation registers a callback for NOTIFY-driven invalidations.
func (c *ProductCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// Invalidate drops one product.
func (c *ProductCache) Invalidate(productID id.ID) {
	c.mu.Lock()
	delete(c.items, productID)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *ProductCache) Purge() {
	c.mu.Lock()
	c.items = make(map[id.ID]*product.Product)
	c.mu.Unlock()
}

// GetByID returns a copy of the cached product, loading it on a miss.
func (c *ProductCache) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	c.mu.Lock()
	if p, ok := c.items[productID]; ok {
		c.hits++
		c.mu.Unlock()
		return p.Clone(), nil
	}
	c.misses++
	c.mu.Unlock()

	p, err := c.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.items[productID] = p.Clone()
	c.mu.Unlock()
	return p, nil
}

func (c *ProductCache) Create(ctx context.Context, p *product.Product) error {
	if err := c.repo.Create(ctx, p); err != nil {
		return err
	}
	c.Invalidate(p.ID)
	return nil
}

func (c *ProductCache) Update(ctx context.Context, p *product.Product) error {
	// Drop first: a failed update may still mean the cached version is stale.
	c.Invalidate(p.ID)
	return c.repo.Update(ctx, p)
}

// List always reads through; filters make result sets poor cache keys.
func (c *ProductCache) List(ctx context.Context, filter product.ListFilter) ([]*product.Product, error) {
	return c.repo.List(ctx, filter)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// GetStats returns current cache statistics.
func (c *ProductCache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.items), Hits: c.hits, Misses: c.misses}
}
