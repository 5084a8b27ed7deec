package cache

import "time"

// startSweeperLocked launches the background sweeper unless one is already
// running. The sweeper exits on its own once the cache is empty and is
// restarted by the next Set.
func (c *Cache) startSweeperLocked() {
	if c.sweeping || c.closed {
		return
	}
	c.sweeping = true
	c.wg.Add(1)
	go c.runSweeper()
}

func (c *Cache) runSweeper() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()

			c.mu.Lock()
			if c.entries.Len() == 0 {
				c.sweeping = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// sweep removes expired entries. Keys are snapshotted under the lock and
// then checked in batches so that a large cache never holds the lock for
// longer than one batch.
func (c *Cache) sweep() int {
	now := c.now()

	c.mu.Lock()
	keys := c.entries.Keys()
	c.mu.Unlock()

	removed := 0
	for start := 0; start < len(keys); start += c.sweepBatch {
		end := min(start+c.sweepBatch, len(keys))

		c.mu.Lock()
		for _, key := range keys[start:end] {
			// The entry may have been replaced since the snapshot.
			if entry, ok := c.entries.Peek(key); ok && entry.expired(now) {
				c.removeLocked(key, evictExpired)
				removed++
			}
		}
		c.mu.Unlock()
	}

	if removed > 0 && c.logger != nil {
		c.logger.Debug("swept expired verification cache entries", "removed", removed)
	}
	return removed
}

// sweeperRunning reports whether the background sweeper is active.
func (c *Cache) sweeperRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweeping
}
