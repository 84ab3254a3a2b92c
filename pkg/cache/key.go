package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
)

// KeyPrefix is the namespace of every key written by this package.
const KeyPrefix = "lims"

// CacheKey identifies one cached entity.
type CacheKey struct {
	Type entity.Type
	ID   int64
}

// String generates the Redis key.
// Format: lims:{type}:{id}
//
// Example:
//
//	lims:sample:42
func (k CacheKey) String() string {
	return KeyPrefix + ":" + string(k.Type) + ":" + strconv.FormatInt(k.ID, 10)
}

// ParseKey parses a key produced by CacheKey.String.
func ParseKey(s string) (CacheKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != KeyPrefix {
		return CacheKey{}, fmt.Errorf("invalid cache key %q", s)
	}

	typ, err := entity.ParseType(parts[1])
	if err != nil {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}

	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return CacheKey{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}

	return CacheKey{Type: typ, ID: id}, nil
}

// KeysFor returns the keys of ids for typ, in order.
func KeysFor(typ entity.Type, ids []int64) []CacheKey {
	keys := make([]CacheKey, len(ids))
	for i, id := range ids {
		keys[i] = CacheKey{Type: typ, ID: id}
	}
	return keys
}
