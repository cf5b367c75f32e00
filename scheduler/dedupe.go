package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// DedupeFilter tracks visited URLs so each page is fetched at most once
// per run. Pagination instructions bypass it via DontFilter: a click
// request legitimately reuses the listing URL it advances from.
type DedupeFilter struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupeFilter creates an empty filter.
func NewDedupeFilter() *DedupeFilter {
	return &DedupeFilter{seen: make(map[string]struct{})}
}

// Key derives the filter key for a URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Visit marks a URL and reports whether it had been seen before.
func (f *DedupeFilter) Visit(url string) (seen bool) {
	key := Key(url)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[key]; ok {
		return true
	}
	f.seen[key] = struct{}{}
	return false
}

// Len reports how many distinct URLs were visited.
func (f *DedupeFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
