package worker

import "sync"

const claimHistory = 4096

// claimSet remembers the most recent claimed request ids, oldest evicted
// first.
type claimSet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	ring []string
	next int
}

func newClaimSet(size int) *claimSet {
	return &claimSet{
		ids:  make(map[string]struct{}, size),
		ring: make([]string, size),
	}
}

func (c *claimSet) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

func (c *claimSet) Add(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return
	}
	if old := c.ring[c.next]; old != "" {
		delete(c.ids, old)
	}
	c.ring[c.next] = id
	c.ids[id] = struct{}{}
	c.next = (c.next + 1) % len(c.ring)
}
