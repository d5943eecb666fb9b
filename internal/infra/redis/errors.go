package redis

import "errors"

var (
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCacheMiss is returned when a cached value does not exist.
	ErrCacheMiss = errors.New("cache miss")
)
