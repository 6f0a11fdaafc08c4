package memcacheiface

import "github.com/bradfitz/gomemcache/memcache"

// Client defines the Memcache operations needed by rate limiters.
// This allows for mocking the Memcache client in unit tests.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Add(item *memcache.Item) error
	CompareAndSwap(item *memcache.Item) error
}

var _ Client = (*memcache.Client)(nil)
