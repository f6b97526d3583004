// Package metrics keeps process-wide counters, gauges and histograms and
// renders them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the registry the rest of medibot records into.
var Collector = NewRegistry()

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

type series interface {
	write(w io.Writer, name, labels string)
}

// family groups every label combination registered under one metric name.
type family struct {
	name   string
	help   string
	kind   kind
	series map[string]series
}

// Registry owns metric families. Registration is idempotent: asking for the
// same name and labels twice returns the same series.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	started  time.Time
}

func NewRegistry() *Registry {
	return &Registry{families: make(map[string]*family), started: time.Now()}
}

// Uptime returns the time since the registry was created.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.started)
}

func (r *Registry) lookup(name, help string, k kind, labels string, mk func() series) series {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[name]
	if !ok {
		f = &family{name: name, help: help, kind: k, series: make(map[string]series)}
		r.families[name] = f
	}
	if f.kind != k {
		panic(fmt.Sprintf("metrics: %s registered as %s, requested as %s", name, f.kind, k))
	}
	s, ok := f.series[labels]
	if !ok {
		s = mk()
		f.series[labels] = s
	}
	return s
}

// Counter is a monotonically increasing count.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc() { c.v.Add(1) }
func (c *Counter) Add(n int64) { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

func (c *Counter) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), c.Value())
}

// Gauge is a value that moves both ways.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Set(n int64) { g.v.Store(n) }
func (g *Gauge) Inc() { g.v.Add(1) }
func (g *Gauge) Dec() { g.v.Add(-1) }
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) write(w io.Writer, name, labels string) {
	fmt.Fprintf(w, "%s%s %d\n", name, braces(labels), g.Value())
}

// Histogram counts observations into cumulative upper-bound buckets.
// A +Inf bucket is always present.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []int64
	count  int64
	sum    float64
}

func newHistogram(bounds []float64) *Histogram {
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	return &Histogram{bounds: b, counts: make([]int64, len(b))}
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

func (h *Histogram) write(w io.Writer, name, labels string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sep := ""
	if labels != "" {
		sep = labels + ","
	}
	for i, le := range h.bounds {
		bound := strconv.FormatFloat(le, 'g', -1, 64)
		if math.IsInf(le, 1) {
			bound = "+Inf"
		}
		fmt.Fprintf(w, "%s_bucket{%sle=%q} %d\n", name, sep, bound, h.counts[i])
	}
	fmt.Fprintf(w, "%s_sum%s %g\n", name, braces(labels), h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", name, braces(labels), h.count)
}

// Counter returns the counter for name and labels, creating it on first use.
// labels is the rendered label set without braces, e.g. `intent="menu"`.
func (r *Registry) Counter(name, help, labels string) *Counter {
	return r.lookup(name, help, kindCounter, labels, func() series { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (r *Registry) Gauge(name, help, labels string) *Gauge {
	return r.lookup(name, help, kindGauge, labels, func() series { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram for name and labels. Buckets only apply
// when the series is created.
func (r *Registry) Histogram(name, help, labels string, buckets []float64) *Histogram {
	return r.lookup(name, help, kindHistogram, labels, func() series { return newHistogram(buckets) }).(*Histogram)
}

// WriteTo renders every family sorted by name, then by label set.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP medibot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE medibot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "medibot_uptime_seconds %d\n", int64(r.Uptime().Seconds()))

	r.mu.Lock()
	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := r.families[name]
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, f.kind)
		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			f.series[k].write(&sb, f.name, k)
		}
	}
	r.mu.Unlock()

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the registry at a scrape endpoint.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	}
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

var (
	MessagesTotal         = Collector.Counter("medibot_messages_total", "Total inbound messages handled", "")
	ReplyFailures         = Collector.Counter("medibot_reply_failures_total", "Replies that could not be delivered", "")
	HandlerPanics         = Collector.Counter("medibot_handler_panics_total", "Messages answered with the apology after a panic", "")
	OrderLookups          = Collector.Counter("medibot_order_lookups_total", "Order lookups that found an order", "")
	OrderLookupMisses     = Collector.Counter("medibot_order_lookup_misses_total", "Order lookups where every stage failed", "")
	RecentFallbacks       = Collector.Counter("medibot_recent_fallbacks_total", "Recent-order lookups answered by the account store", "")
	PrescriptionFallbacks = Collector.Counter("medibot_prescription_fallbacks_total", "Prescriptions written directly to the account store", "")
	SearchRequests        = Collector.Counter("medibot_search_requests_total", "Search backend requests", "")
	BackendRetries        = Collector.Counter("medibot_backend_retries_total", "Backend requests retried after a transient failure", "")
	ActiveSenders         = Collector.Gauge("medibot_active_senders", "Senders with a live context entry", "")

	BackendLatency = Collector.Histogram("medibot_backend_latency_seconds", "Backend request latency in seconds", "",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10})
)

// IntentCounter returns the per-intent message counter.
func IntentCounter(intent string) *Counter {
	return Collector.Counter("medibot_intents_total", "Messages by classified intent", fmt.Sprintf("intent=%q", intent))
}
