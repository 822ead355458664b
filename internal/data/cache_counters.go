package data

// CacheCounters holds the page cache hits and misses by template
// name (index, employee, contact)
type CacheCounters struct {
	CounterHits   map[string]int `json:"counter_hits,omitempty"`
	CounterMisses map[string]int `json:"counter_misses,omitempty"`
}
