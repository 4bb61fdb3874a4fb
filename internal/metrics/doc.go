// Package metrics provides the observability hooks for sync cycles, mirror
// operations and builds.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites. PrometheusRecorder
// registers its collectors on a caller-supplied registry; HTTPHandler exposes
// that registry for scraping.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
