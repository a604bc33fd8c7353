package otel

import (
	"context"
	"errors"
	"fmt"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSubmit.MetricsSnapshot
	DiagnosticsDropped() uint64
}

// series is one engine counter observed through a shared family
// instrument.
type series struct {
	id         goSubmit.MetricID
	instrument metric.Int64ObservableCounter
	opts       []metric.ObserveOption
}

// latencySeries exposes one engine histogram as cumulative gauges keyed by
// an le attribute, mirroring the Prometheus layout.
type latencySeries struct {
	id      goSubmit.MetricID
	buckets metric.Int64ObservableGauge
	leOpts  []metric.ObserveOption
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter keeps the callback registration alive until Close.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	series       []series
	latency      []latencySeries
	dropped      metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *goSubmit.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	families := make(map[string]metric.Int64ObservableCounter)
	for _, def := range internaldefs.CounterDefs {
		ins, ok := families[def.Name]
		if !ok {
			var err error
			ins, err = meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
			if err != nil {
				return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
			}
			families[def.Name] = ins
			observables = append(observables, ins)
		}
		s := series{id: def.ID, instrument: ins}
		if def.Label != "" {
			s.opts = []metric.ObserveOption{metric.WithAttributes(attribute.String(def.Label, def.LabelValue))}
		}
		e.series = append(e.series, s)
	}

	for _, def := range internaldefs.HistogramDefs {
		ls, err := newLatencySeries(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, ls)
		observables = append(observables, ls.buckets, ls.count, ls.sum)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.DiagnosticsDroppedName,
		metric.WithDescription(internaldefs.DiagnosticsDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create diagnostics dropped counter: %w", err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func newLatencySeries(meter metric.Meter, def internaldefs.HistogramDef) (latencySeries, error) {
	ls := latencySeries{id: def.ID}
	var err error

	if ls.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per le bound.")); err != nil {
		return ls, fmt.Errorf("create histogram buckets %s: %w", def.Name, err)
	}
	if ls.count, err = meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Sample count.")); err != nil {
		return ls, fmt.Errorf("create histogram count %s: %w", def.Name, err)
	}
	if ls.sum, err = meter.Float64ObservableGauge(def.Name+"_sum",
		metric.WithDescription(def.Help+" Total observed seconds."), metric.WithUnit("s")); err != nil {
		return ls, fmt.Errorf("create histogram sum %s: %w", def.Name, err)
	}

	ls.leOpts = make([]metric.ObserveOption, len(internaldefs.BucketBounds))
	for i, le := range internaldefs.BucketBounds {
		ls.leOpts[i] = metric.WithAttributes(attribute.String("le", le))
	}
	return ls, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, s := range e.series {
		o.ObserveInt64(s.instrument, int64(snap.Counters[s.id]), s.opts...)
	}
	for _, ls := range e.latency {
		raw, ok := snap.Histograms[ls.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.Cumulative(raw)
		for i, v := range cumulative {
			o.ObserveInt64(ls.buckets, int64(v), ls.leOpts[i])
		}
		o.ObserveInt64(ls.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(ls.sum, snap.HistogramSums[ls.id].Seconds())
	}
	o.ObserveInt64(e.dropped, int64(e.source.DiagnosticsDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay registered with the
// meter but stop reporting.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
