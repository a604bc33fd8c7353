// Package prometheus renders goSubmit engine metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps a [goSubmit.Engine] and exposes an
// [http.Handler]. Counters are named gosubmit_*_total; the single histogram
// is gosubmit_auth_latency_seconds.
//
// The package does not register anything in a global registry; callers
// mount the Handler themselves.
package prometheus
