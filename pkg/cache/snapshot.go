package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/xvix-labs/xvix-floor/pkg/types"
)

// Computer produces a fresh snapshot.
type Computer interface {
	ComputeSnapshot() (*types.ProtocolSnapshot, error)
}

type Options struct {
	TTL    time.Duration
	Clock  clock.Clock
	Logger *zap.Logger
}

type SnapshotCache struct {
	mu   sync.RWMutex
	snap *types.ProtocolSnapshot
	ttl  time.Duration
	comp Computer
	clk  clock.Clock
	log  *zap.Logger
}

func NewSnapshotCache(comp Computer, opt Options) *SnapshotCache {
	if opt.TTL <= 0 {
		opt.TTL = 60 * time.Second
	}
	if opt.Clock == nil {
		opt.Clock = clock.New()
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &SnapshotCache{ttl: opt.TTL, comp: comp, clk: opt.Clock, log: opt.Logger}
}

// Get returns the cached snapshot and whether it is still within the TTL.
func (c *SnapshotCache) Get() (*types.ProtocolSnapshot, bool) {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()
	if s == nil {
		return nil, false
	}
	if c.clk.Since(s.UpdatedAt) > c.ttl {
		return s, false
	}
	return s, true
}

func (c *SnapshotCache) Update() (*types.ProtocolSnapshot, error) {
	s, err := c.comp.ComputeSnapshot()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
	return s, nil
}

// Run refreshes the snapshot every TTL until ctx is done.
func (c *SnapshotCache) Run(ctx context.Context) error {
	t := c.clk.Ticker(c.ttl)
	defer t.Stop()
	for {
		if _, err := c.Update(); err != nil {
			c.log.Warn("snapshot refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
