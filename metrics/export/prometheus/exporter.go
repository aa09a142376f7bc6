package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/lifeplan-navigator/authcore"
	"github.com/lifeplan-navigator/authcore/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// sample is a value read from outside the engine at render time, such as
// the audit archive drop count or the number of throttled client IPs.
type sample struct {
	name  string
	help  string
	kind  string // "counter" or "gauge"
	value func() uint64
}

// PrometheusExporter renders engine metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource

	mu      sync.RWMutex
	samples []sample
}

// NewPrometheusExporter creates a Prometheus exporter that reads from engine.
func NewPrometheusExporter(engine *authcore.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any
// value exposing a snapshot and the audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Counter adds a monotonic value read on every render.
func (p *PrometheusExporter) Counter(name, help string, value func() uint64) *PrometheusExporter {
	return p.add(sample{name: name, help: help, kind: "counter", value: value})
}

// Gauge adds a point-in-time value read on every render.
func (p *PrometheusExporter) Gauge(name, help string, value func() uint64) *PrometheusExporter {
	return p.add(sample{name: name, help: help, kind: "gauge", value: value})
}

func (p *PrometheusExporter) add(s sample) *PrometheusExporter {
	if s.value == nil {
		return p
	}
	p.mu.Lock()
	p.samples = append(p.samples, s)
	p.mu.Unlock()
	return p
}

// Handler serves Render on GET /metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics. Engine series are omitted when
// metrics are disabled and nothing was dropped; added samples are always
// written.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 || dropped > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeSample(&b, def.Name, def.Help, "counter", snapshot.Counters[def.ID])
		}
		for _, def := range internaldefs.HistogramDefs {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
			writeHistogram(&b, def.Name, def.Help, cumulative)
		}
		writeSample(&b, internaldefs.AuditDroppedName, "Audit events dropped because the dispatcher buffer was full.", "counter", dropped)
	}

	p.mu.RLock()
	for _, s := range p.samples {
		writeSample(&b, s.name, s.help, s.kind, s.value())
	}
	p.mu.RUnlock()

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeSample(b *strings.Builder, name, help, kind string, value uint64) {
	writeHeader(b, name, help, kind)
	b.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	b.WriteString(name + "_count " + strconv.FormatUint(cumulative[len(cumulative)-1], 10) + "\n")
	// Snapshots carry bucket counts only.
	b.WriteString(name + "_sum 0\n")
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
