// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"strings"
	"sync"
	"time"

	"github.com/gridline-eng/permitpack/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	initOnce sync.Once

	searchCallTotal     *expvar.Map
	searchCallLatencyMS *expvar.Map

	validateTotal   *expvar.Int
	validateAccepts *expvar.Int
	validateRejects *expvar.Int

	cacheHitTotal  *expvar.Int
	cacheMissTotal *expvar.Int

	assemblyPagesTotal *expvar.Int
	runTotal           *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		searchCallTotal = expvar.NewMap("permitpack_search_calls_total")
		searchCallLatencyMS = expvar.NewMap("permitpack_search_latency_ms")

		validateTotal = expvar.NewInt("permitpack_validate_total")
		validateAccepts = expvar.NewInt("permitpack_validate_accepts")
		validateRejects = expvar.NewInt("permitpack_validate_rejects")

		cacheHitTotal = expvar.NewInt("permitpack_spec_cache_hits")
		cacheMissTotal = expvar.NewInt("permitpack_spec_cache_misses")

		assemblyPagesTotal = expvar.NewInt("permitpack_assembly_pages_total")
		runTotal = expvar.NewInt("permitpack_runs_total")
	})
}

// StartSpan records a debug-level trace span around an external call or
// pipeline stage. The returned func closes the span.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		if sp == nil {
			return
		}
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// RecordSearchCall tracks one call to the external search capability at the
// given escalation tier.
func RecordSearchCall(tier string, duration time.Duration) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(tier))
	if key == "" {
		key = "unknown"
	}
	searchCallTotal.Add(key, 1)
	if duration > 0 {
		searchCallLatencyMS.Add(key, duration.Milliseconds())
	}
}

// RecordValidation tracks one validator verdict.
func RecordValidation(accepted bool) {
	ensureInit()
	validateTotal.Add(1)
	if accepted {
		validateAccepts.Add(1)
	} else {
		validateRejects.Add(1)
	}
}

// RecordCacheLookup tracks a fallback-cache read.
func RecordCacheLookup(hit bool) {
	ensureInit()
	if hit {
		cacheHitTotal.Add(1)
	} else {
		cacheMissTotal.Add(1)
	}
}

// RecordAssembly tracks the page total of a completed manifest.
func RecordAssembly(pages int) {
	ensureInit()
	if pages > 0 {
		assemblyPagesTotal.Add(int64(pages))
	}
	runTotal.Add(1)
}

// SpanDuration reports elapsed time for the span carried by ctx, if any.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
