// Package metrics is a minimal in-memory counter/histogram facade standing
// in for a real metrics backend (observability configuration is explicitly
// out of scope). It exists so the counter names the specification enumerates
// (§4.7 step 6, §4.4.1's WebhookParsingFallback) are real call sites and are
// inspectable from tests, without wiring an exporter this module never runs.
package metrics

import (
	"sync"
	"time"
)

// Names of the counters the specification names explicitly.
const (
	WebhookParsingFallback  = "WebhookParsingFallback"
	RouterSuccess           = "RouterSuccess"
	RouterFailure           = "RouterFailure"
	RouterInvalidEvent      = "RouterInvalidEvent"
	RouterUnsupportedChannel = "RouterUnsupportedChannel"
	ConnectionReaped        = "ConnectionReaped"
)

// ChannelCounter builds the per-channel counter name "Router{Channel}Success"
// / "Router{Channel}Failure" the specification calls for.
func ChannelCounter(channel string, success bool) string {
	if success {
		return "Router" + channel + "Success"
	}
	return "Router" + channel + "Failure"
}

// Registry collects counters and a duration histogram (recorded as a
// simple running count/sum since no exporter ever reads percentiles out
// of this facade).
type Registry struct {
	mu         sync.Mutex
	counters   map[string]int64
	durationNs map[string]time.Duration
	samples    map[string]int64
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		counters:   make(map[string]int64),
		durationNs: make(map[string]time.Duration),
		samples:    make(map[string]int64),
	}
}

// Incr increments the named counter by one.
func (r *Registry) Incr(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

// Observe records a duration sample under name (e.g. "RouterDuration").
func (r *Registry) Observe(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durationNs[name] += d
	r.samples[name]++
}

// Count returns the current value of a counter, for tests.
func (r *Registry) Count(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// MeanDuration returns the average recorded duration for name, for tests.
func (r *Registry) MeanDuration(name string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.samples[name]
	if n == 0 {
		return 0
	}
	return r.durationNs[name] / time.Duration(n)
}
