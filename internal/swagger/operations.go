package swagger

import "github.com/antonio-alexander/go-blog-pages/internal/data"

// swagger:route GET /version Operations ReadVersion
// Prints the version, git commit and git branch the server was built from.
//
//     Produces:
//     - text/plain
//
// responses:
//   200: VersionGetResponseOk

// swagger:route DELETE /cache Operations DeleteCache
// Drops every rendered page from the page cache.
//
// responses:
//   204: NoContentResponse

// swagger:route GET /cache/counters Operations ReadCacheCounters
// Reads the page cache hits and misses by page key.
//
//     Produces:
//     - application/json
//
// responses:
//   200: CacheCountersGetResponseOk

// swagger:route DELETE /cache/counters Operations DeleteCacheCounters
// Resets the page cache hits and misses.
//
// responses:
//   204: NoContentResponse

// swagger:route GET /timers Operations ReadTimers
// Reads the total and average time (in nanoseconds) spent per endpoint.
//
//     Produces:
//     - application/json
//
// responses:
//   200: TimersGetResponseOk

// swagger:route DELETE /timers Operations DeleteTimers
// Resets the endpoint timers.
//
// responses:
//   204: NoContentResponse

// swagger:route GET /metrics Operations ReadMetrics
// Prometheus exposition of the request and page cache metrics.
//
//     Produces:
//     - text/plain
//
// responses:
//   200: MetricsGetResponseOk

// swagger:response VersionGetResponseOk
type VersionGetResponseOk struct {
	// in:body
	Version string
}

// swagger:response MetricsGetResponseOk
type MetricsGetResponseOk struct {
	// in:body
	Metrics string
}

// swagger:response NoContentResponse
type NoContentResponse struct{}

// swagger:response CacheCountersGetResponseOk
type CacheCountersGetResponseOk struct {
	// in:body
	CacheCounters data.CacheCounters `json:"cache_counters"`
}

// swagger:response TimersGetResponseOk
type TimersGetResponseOk struct {
	// in:body
	Timers data.Timers `json:"timers"`
}

// swagger:parameters ReadVersion DeleteCache ReadCacheCounters DeleteCacheCounters ReadTimers DeleteTimers ReadMetrics
type OperationsParams struct {
	// in:header
	CorrelationId string `json:"Correlation-Id"`
}
