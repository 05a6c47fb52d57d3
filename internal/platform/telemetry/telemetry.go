// Package telemetry provides the gateway's observability: HTTP server
// metrics, per-vendor upstream call counters, and a Prometheus text
// exposition endpoint. Counters and histograms are built on standard
// library constructs following OTel naming semantics.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// defaultDurationBuckets are histogram boundaries in seconds for HTTP and
// upstream call durations.
var defaultDurationBuckets = []float64{
	0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits for atomic add
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			h.mu.Unlock()
			return
		}
	}
	// Beyond all boundaries; counted in +Inf at export.
	h.mu.Unlock()
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	cum := make([]int64, len(raw))
	var running int64
	for i, c := range raw {
		running += c
		cum[i] = running
	}
	return cum
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		newVal := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(newVal)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Counter store
// ---------------------------------------------------------------------------

type counterStore struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newCounterStore() *counterStore {
	return &counterStore{items: make(map[string]*int64)}
}

func (s *counterStore) inc(key string) {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(p, 1)
		return
	}
	s.mu.Lock()
	p, ok = s.items[key]
	if !ok {
		v := int64(1)
		s.items[key] = &v
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	atomic.AddInt64(p, 1)
}

func (s *counterStore) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

func (s *counterStore) snapshot() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]int64, len(s.items))
	for k, p := range s.items {
		cp[k] = atomic.LoadInt64(p)
	}
	return cp
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Provider holds all gateway metrics state. One instance per process,
// constructed in main and injected where needed.
type Provider struct {
	serviceName string

	httpDuration   *histogram
	activeRequests int64

	vendorCalls    *counterStore
	requestsByCode *counterStore
}

func NewProvider(serviceName string) *Provider {
	if serviceName == "" {
		serviceName = "ehr-gateway"
	}
	return &Provider{
		serviceName:    serviceName,
		httpDuration:   newHistogram(defaultDurationBuckets),
		vendorCalls:    newCounterStore(),
		requestsByCode: newCounterStore(),
	}
}

// VendorCall increments the upstream call counter for one vendor
// operation. outcome is "ok" or the fetch-error kind.
func (p *Provider) VendorCall(vendor, op, outcome string) {
	p.vendorCalls.inc(vendor + "|" + op + "|" + outcome)
}

// VendorCallCount returns a counter value, for tests and introspection.
func (p *Provider) VendorCallCount(vendor, op, outcome string) int64 {
	return p.vendorCalls.get(vendor + "|" + op + "|" + outcome)
}

// ActiveRequests returns the in-flight request gauge.
func (p *Provider) ActiveRequests() int64 {
	return atomic.LoadInt64(&p.activeRequests)
}

// Middleware records duration, in-flight count, and status-class counters
// for every request.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.activeRequests, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.activeRequests, -1)
			p.httpDuration.Observe(time.Since(start).Seconds())

			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			p.requestsByCode.inc(fmt.Sprintf("%s|%s|%d", c.Request().Method, route, c.Response().Status))

			return err
		}
	}
}

// PrometheusHandler serves all metrics in Prometheus text format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		writeHistogram(&b, "http_server_request_duration_seconds", p.httpDuration)
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.ActiveRequests())

		b.WriteString("# HELP http_server_requests_total HTTP requests by method, route and status.\n")
		b.WriteString("# TYPE http_server_requests_total counter\n")
		for key, val := range p.requestsByCode.snapshot() {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			fmt.Fprintf(&b, "http_server_requests_total{method=%q,route=%q,status=%q} %d\n",
				parts[0], parts[1], parts[2], val)
		}
		b.WriteByte('\n')

		b.WriteString("# HELP ehr_vendor_calls_total Upstream EHR vendor calls by vendor, operation and outcome.\n")
		b.WriteString("# TYPE ehr_vendor_calls_total counter\n")
		for key, val := range p.vendorCalls.snapshot() {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			fmt.Fprintf(&b, "ehr_vendor_calls_total{vendor=%q,operation=%q,outcome=%q} %d\n",
				parts[0], parts[1], parts[2], val)
		}

		return c.String(http.StatusOK, b.String())
	}
}

func writeHistogram(b *strings.Builder, name string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"} %d\n", name, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"} %d\n", name, h.Count())
	fmt.Fprintf(b, "%s_sum %g\n", name, h.Sum())
	fmt.Fprintf(b, "%s_count %d\n", name, h.Count())
}
