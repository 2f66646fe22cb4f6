package goals

import (
	"encoding/json"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const (
	activeGoalCacheSize = 10 * 1024 * 1024
	activeGoalTTLSec    = 5 * 60
)

// ActiveGoalCache is a single-slot per-user cache of the current goal. Any
// goal write for the user must invalidate the slot.
type ActiveGoalCache struct {
	cache *freecache.Cache
}

func NewActiveGoalCache() *ActiveGoalCache {
	return &ActiveGoalCache{
		cache: freecache.NewCache(activeGoalCacheSize),
	}
}

func (c *ActiveGoalCache) Get(userID string) (*Goal, bool) {
	goalBytes, err := c.cache.Get([]byte(userID))
	if err != nil {
		// freecache returns ErrNotFound for a miss, nothing to log
		return nil, false
	}

	var goal Goal
	if err := json.Unmarshal(goalBytes, &goal); err != nil {
		log.Errorf("active goal cache, unmarshal cached goal for %s: %s", userID, err)
		c.Invalidate(userID)
		return nil, false
	}

	return &goal, true
}

func (c *ActiveGoalCache) Set(userID string, goal *Goal) {
	goalBytes, err := json.Marshal(goal)
	if err != nil {
		log.Errorf("active goal cache, marshal goal for %s: %s", userID, err)
		return
	}
	if err := c.cache.Set([]byte(userID), goalBytes, activeGoalTTLSec); err != nil {
		log.Errorf("active goal cache, set for %s: %s", userID, err)
	}
}

func (c *ActiveGoalCache) Invalidate(userID string) {
	c.cache.Del([]byte(userID))
}
