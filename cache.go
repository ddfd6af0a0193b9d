package guardedengineproxy

import (
	"sync"

	"github.com/Rocket-Rescue-Node/guarded-engine-proxy/enginetypes"
)

// LegitimacyCache holds the most recently accepted forkchoiceUpdated
// request/response pair, or nothing before the first acceptance. There is
// no history: replacement discards the previous pair.
//
// Read may run concurrently with other reads. Replace is exclusive and
// swaps the whole pair at once, so a reader sees either the old pair or
// the new one, never a mixture.
type LegitimacyCache struct {
	mu   sync.RWMutex
	pair *enginetypes.ForkchoiceCall
}

// Read returns a copy of the cached pair, or false if nothing has been
// accepted yet.
func (c *LegitimacyCache) Read() (enginetypes.ForkchoiceCall, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pair == nil {
		return enginetypes.ForkchoiceCall{}, false
	}
	return *c.pair, true
}

// Replace installs a new pair, discarding any previous content.
func (c *LegitimacyCache) Replace(pair enginetypes.ForkchoiceCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = &pair
}
