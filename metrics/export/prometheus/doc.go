// Package prometheus renders engine metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts an [authcore.Engine] and exposes an
// [http.Handler] for the /metrics route. Counter names are prefixed
// lifeplan_*_total; the single histogram is lifeplan_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
