package cache

import (
	"context"
	"strings"
	"time"
)

// Entry is a cached upstream payload together with the time it was written.
// Entries are never modified after creation; a refresh stores a new Entry.
type Entry struct {
	Timestamp time.Time
	Payload   []byte
}

type Cache interface {
	// Get returns the entry for key whether or not it is still fresh.
	Get(ctx context.Context, key string) (Entry, bool)
	// Put stores payload under key stamped with the current time,
	// replacing any previous entry.
	Put(ctx context.Context, key string, payload []byte)
	Len() int
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// MakeKey builds the cache key for a symbol/interval pair. Separator and
// escape characters inside either field are escaped, so distinct pairs
// never produce the same key.
func MakeKey(symbol, interval string) string {
	return keyEscaper.Replace(symbol) + "|" + keyEscaper.Replace(interval)
}

// Fresh reports whether e is younger than ttl at now.
func Fresh(e Entry, now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}
