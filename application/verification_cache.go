package application

import (
	"fmt"

	"github.com/basedgoydev/greed-farm/domain/interfaces"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultVerificationCacheSize is used when no size is configured
const DefaultVerificationCacheSize = 1024

// VerificationCache keeps recently verified wagers. Settled wagers are write
// once, so an entry never goes stale.
type VerificationCache struct {
	cache *lru.Cache
}

// VerificationLoader loads the verification of one wager on a cache miss
type VerificationLoader func(wagerID int64) (*interfaces.WagerVerification, error)

// NewVerificationCache creates a cache holding up to size verifications
func NewVerificationCache(size int) (*VerificationCache, error) {
	if size <= 0 {
		size = DefaultVerificationCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification cache: %w", err)
	}
	return &VerificationCache{cache: cache}, nil
}

// GetOrLoad returns the cached verification or loads it. Failed loads are not cached.
func (c *VerificationCache) GetOrLoad(wagerID int64, loader VerificationLoader) (*interfaces.WagerVerification, error) {
	if v, ok := c.cache.Get(wagerID); ok {
		return v.(*interfaces.WagerVerification), nil
	}

	verification, err := loader(wagerID)
	if err != nil {
		return nil, err
	}

	c.cache.Add(wagerID, verification)
	return verification, nil
}

// Len returns the number of cached verifications
func (c *VerificationCache) Len() int {
	return c.cache.Len()
}
