package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() goRenew.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter exposes engine counters as a [prometheus.Collector]. Every scrape
// reads one fresh snapshot.
type PrometheusExporter struct {
	source       metricsSource
	counters     []*prometheus.Desc
	histograms   []*prometheus.Desc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusExporter)(nil)

// NewPrometheusExporter creates an exporter that reads from engine.
func NewPrometheusExporter(engine *goRenew.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates an exporter over any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:     source,
		counters:   make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
		histograms: make([]*prometheus.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			internaldefs.AuditDroppedName,
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for i, def := range internaldefs.CounterDefs {
		p.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		p.histograms[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return p
}

// Describe implements [prometheus.Collector].
func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range p.counters {
		ch <- d
	}
	for _, d := range p.histograms {
		ch <- d
	}
	ch <- p.auditDropped
}

// Collect implements [prometheus.Collector].
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if p == nil || p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(p.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}
	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		// Bucketed snapshots carry no sum.
		ch <- prometheus.MustNewConstHistogram(p.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(p.auditDropped, prometheus.CounterValue, float64(p.source.AuditDropped()))
}

// Handler serves the exporter from a private registry, so nothing leaks into the
// global default registry.
func (p *PrometheusExporter) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(p)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Render writes the current metrics in Prometheus text exposition format without a
// registry. It returns "" when metrics are disabled and nothing was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}
	writeCounter(&b, internaldefs.AuditDroppedName, "Dropped audit events due to dispatcher backpressure.", dropped)

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	b.WriteByte('\n')
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
