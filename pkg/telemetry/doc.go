// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the upload pipeline and the reference endpoint.
//
// # Pipeline metrics
//
// Metrics implements upload.Observer:
//
//	reg := prometheus.NewRegistry()
//	m := telemetry.NewMetrics(telemetry.WithRegistry(reg))
//	u, _ := upload.New(cfg, upload.WithObserver(m))
//
// # HTTP middleware
//
// The same Metrics value records server-side request metrics, and Tracing
// starts a span per request. Both are chi middleware:
//
//	srv := endpoint.New(store, endpoint.Options{
//	    Middleware: []func(http.Handler) http.Handler{
//	        telemetry.Tracing(),
//	        m.Middleware,
//	    },
//	})
//
// Expose the registry with promhttp:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package telemetry
