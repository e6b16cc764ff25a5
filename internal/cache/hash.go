package cache

import "github.com/cespare/xxhash/v2"

// StringHash is the shard hash for string keys.
func StringHash(s string) uint64 { return xxhash.Sum64String(s) }
