package internal

import (
	"github.com/redis/go-redis/v9"

	"sjsage522/pricemonitor/services/cache"
	"sjsage522/pricemonitor/services/publisher"
	"sjsage522/pricemonitor/services/store"
)

// Dependencies holds all service dependencies
type Dependencies struct {
	Redis     *redis.Client
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     store.BaselineStore
}

// Cleanup releases the connections held by the dependencies
func (d *Dependencies) Cleanup() {
	if d.Publisher != nil {
		d.Publisher.Close()
		return
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
}
