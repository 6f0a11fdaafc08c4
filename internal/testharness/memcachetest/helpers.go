// Package memcachetest holds helpers for tests that talk to a real memcached.
package memcachetest

import (
	"errors"
	"os"
	"testing"

	"github.com/bradfitz/gomemcache/memcache"
)

// GetMemcachedAddress returns the Memcached address, defaulting to "localhost:11211".
// If MEMCACHED_ADDR environment variable is set, it's used.
// If CI environment variable is "true", it defaults to "memcached:11211".
func GetMemcachedAddress() string {
	if addr := os.Getenv("MEMCACHED_ADDR"); addr != "" {
		return addr
	}
	if os.Getenv("CI") == "true" {
		return "memcached:11211"
	}
	return "localhost:11211"
}

// SetupMemcachedClient initializes and returns a real *memcache.Client for integration tests.
// It fails the test if connection to Memcached cannot be established.
func SetupMemcachedClient(tb testing.TB) *memcache.Client {
	tb.Helper()
	addr := GetMemcachedAddress()
	tb.Logf("Connecting to Memcached for integration tests at %s", addr)

	mc := memcache.New(addr)
	if err := mc.Ping(); err != nil {
		tb.Fatalf("Failed to connect to Memcached at %s: %v. Ensure Memcached is running and accessible.", addr, err)
	}
	return mc
}

// CleanupMemcachedKeys deletes the specified keys from Memcached.
// Cleanup is best-effort, failures are logged only.
func CleanupMemcachedKeys(tb testing.TB, client *memcache.Client, keys ...string) {
	tb.Helper()
	for _, key := range keys {
		if err := client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			tb.Logf("Warning: Failed to delete Memcached key '%s': %v", key, err)
		}
	}
}
