package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goSubmit "github.com/MrEthical07/goSubmit"
	"github.com/MrEthical07/goSubmit/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goSubmit.MetricsSnapshot
	DiagnosticsDropped() uint64
}

// PrometheusExporter renders engine metrics in the text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *goSubmit.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource creates an exporter over any snapshot
// source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled and
// no diagnostics were dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.DiagnosticsDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	w := &textWriter{}
	w.b.Grow(4096)

	family := ""
	for _, def := range internaldefs.CounterDefs {
		if def.Name != family {
			w.header(def.Name, def.Help, "counter")
			family = def.Name
		}
		w.sample(def.SeriesName(), snap.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, ok := snap.Histograms[def.ID]
		if !ok {
			continue
		}
		w.histogram(def, internaldefs.Cumulative(buckets), internaldefs.Seconds(snap.HistogramSums[def.ID]))
	}

	w.header(internaldefs.DiagnosticsDroppedName, internaldefs.DiagnosticsDroppedHelp, "counter")
	w.sample(internaldefs.DiagnosticsDroppedName, dropped)

	return w.b.String()
}

type textWriter struct {
	b strings.Builder
}

func (w *textWriter) header(name, help, kind string) {
	help = strings.ReplaceAll(help, `\`, `\\`)
	help = strings.ReplaceAll(help, "\n", `\n`)
	w.b.WriteString("# HELP " + name + " " + help + "\n")
	w.b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *textWriter) sample(series string, v uint64) {
	w.b.WriteString(series)
	w.b.WriteByte(' ')
	w.b.WriteString(strconv.FormatUint(v, 10))
	w.b.WriteByte('\n')
}

func (w *textWriter) histogram(def internaldefs.HistogramDef, cumulative []uint64, sum string) {
	w.header(def.Name, def.Help, "histogram")
	for i, le := range internaldefs.BucketBounds {
		w.sample(def.Name+`_bucket{le="`+le+`"}`, cumulative[i])
	}
	w.b.WriteString(def.Name + "_sum " + sum + "\n")
	w.sample(def.Name+"_count", cumulative[len(cumulative)-1])
}
