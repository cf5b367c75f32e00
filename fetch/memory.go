package fetch

import (
	"sync"
	"time"
)

// engineMemory remembers, per domain, which engine last produced usable
// markup, so the dispatcher skips the HTTP probe on later requests to a
// site that already needed the browser. Entries age out after ttl and
// stale ones are dropped on lookup; the memory lives and dies with its
// dispatcher, so no background pruning is needed.
type engineMemory struct {
	mu       sync.Mutex
	ttl      time.Duration
	byDomain map[string]engineChoice
}

type engineChoice struct {
	engine   string
	recorded time.Time
}

func newEngineMemory(ttl time.Duration) *engineMemory {
	return &engineMemory{ttl: ttl, byDomain: make(map[string]engineChoice)}
}

// recall returns the remembered engine for a domain, or "" when nothing
// current is remembered.
func (m *engineMemory) recall(domain string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byDomain[domain]
	if !ok {
		return ""
	}
	if time.Since(c.recorded) > m.ttl {
		delete(m.byDomain, domain)
		return ""
	}
	return c.engine
}

// remember records the engine that just worked for a domain.
func (m *engineMemory) remember(domain, engine string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDomain[domain] = engineChoice{engine: engine, recorded: time.Now()}
}

// forget drops a domain, typically after its remembered engine failed.
func (m *engineMemory) forget(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDomain, domain)
}
