package otel

import (
	"context"
	"errors"
	"fmt"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no snapshot source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goRenew.MetricsSnapshot
	AuditDropped() uint64
}

// droppedByTypeSource is implemented by sources that can split audit drops by event type.
type droppedByTypeSource interface {
	AuditDroppedByType() map[string]uint64
}

// member is one engine counter inside a family, with its attribute set precomputed.
type member struct {
	id    goRenew.MetricID
	attrs metric.MeasurementOption
}

type counterFamily struct {
	instrument metric.Int64ObservableCounter
	members    []member
}

type latencyFamily struct {
	id      goRenew.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.MeasurementOption
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine counters as attribute-keyed observable instruments:
// one counter per family with an attribute naming the outcome or result, and one
// cumulative bucket gauge per latency histogram keyed by "le".
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []counterFamily
	latencies    []latencyFamily
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *goRenew.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	x := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, fam := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter family %s: %w", fam.Name, err)
		}
		cf := counterFamily{instrument: ins}
		for _, def := range internaldefs.FamilyMembers(fam.Name) {
			cf.members = append(cf.members, member{
				id:    def.ID,
				attrs: metric.WithAttributes(attribute.String(fam.Attr, def.Label)),
			})
		}
		x.families = append(x.families, cf)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		lf := latencyFamily{id: def.ID}
		var err error
		lf.buckets, err = meter.Int64ObservableGauge(def.Family+".buckets",
			metric.WithDescription("Cumulative sample count per upper bound in seconds."))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", def.Family, err)
		}
		lf.count, err = meter.Int64ObservableGauge(def.Family+".count",
			metric.WithDescription("Total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", def.Family, err)
		}
		for i, le := range internaldefs.HistogramBounds {
			lf.bounds[i] = metric.WithAttributes(attribute.String("le", le))
		}
		x.latencies = append(x.latencies, lf)
		observables = append(observables, lf.buckets, lf.count)
	}

	var err error
	x.auditDropped, err = meter.Int64ObservableCounter(internaldefs.AuditDroppedFamily,
		metric.WithDescription("Audit events that never reached the sink."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, x.auditDropped)

	x.registration, err = meter.RegisterCallback(x.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return x, nil
}

func (x *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := x.source.MetricsSnapshot()

	for _, fam := range x.families {
		for _, m := range fam.members {
			o.ObserveInt64(fam.instrument, int64(snapshot.Counters[m.id]), m.attrs)
		}
	}
	for _, lf := range x.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[lf.id]))
		for i, n := range cumulative {
			o.ObserveInt64(lf.buckets, int64(n), lf.bounds[i])
		}
		o.ObserveInt64(lf.count, int64(cumulative[len(cumulative)-1]))
	}

	if split, ok := x.source.(droppedByTypeSource); ok {
		for typ, n := range split.AuditDroppedByType() {
			o.ObserveInt64(x.auditDropped, int64(n), metric.WithAttributes(attribute.String("event_type", typ)))
		}
		return nil
	}
	o.ObserveInt64(x.auditDropped, int64(x.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (x *OTelExporter) Close() error {
	if x == nil || x.registration == nil {
		return nil
	}
	return x.registration.Unregister()
}
