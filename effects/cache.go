package effects

import (
	"audiosession/assets"
	"audiosession/platform"
)

// pendingPlay is a play request waiting for its load to complete.
type pendingPlay struct {
	volume float64
	loop   int
}

type cacheEntry struct {
	loadID  platform.LoadID
	loaded  bool
	waiting []pendingPlay
}

// handleCache maps effect ids to the load slots of one pool. It is only
// cleared wholesale, together with the pool it indexes.
type handleCache struct {
	entries map[assets.ResourceID]*cacheEntry
	byLoad  map[platform.LoadID]assets.ResourceID
}

func newHandleCache() *handleCache {
	return &handleCache{
		entries: make(map[assets.ResourceID]*cacheEntry),
		byLoad:  make(map[platform.LoadID]assets.ResourceID),
	}
}

func (c *handleCache) get(id assets.ResourceID) (*cacheEntry, bool) {
	entry, ok := c.entries[id]
	return entry, ok
}

func (c *handleCache) put(id assets.ResourceID, loadID platform.LoadID) *cacheEntry {
	entry := &cacheEntry{loadID: loadID}
	c.entries[id] = entry
	c.byLoad[loadID] = id
	return entry
}

func (c *handleCache) byLoadID(loadID platform.LoadID) (assets.ResourceID, *cacheEntry, bool) {
	id, ok := c.byLoad[loadID]
	if !ok {
		return assets.NoResource, nil, false
	}
	return id, c.entries[id], true
}

// drop forgets a single entry whose load failed.
func (c *handleCache) drop(id assets.ResourceID) {
	if entry, ok := c.entries[id]; ok {
		delete(c.byLoad, entry.loadID)
		delete(c.entries, id)
	}
}

func (c *handleCache) reset() {
	clear(c.entries)
	clear(c.byLoad)
}

func (c *handleCache) size() int {
	return len(c.entries)
}
