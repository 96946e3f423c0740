// Package prometheus renders goRBAC metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [goRBAC.Engine] and exposes an
// [net/http.Handler] that renders every engine counter and histogram.
// Counter names are prefixed gorbac_*_total; the single histogram is
// gorbac_check_access_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount
//     the Handler.
//   - Mutate engine state.
package prometheus
