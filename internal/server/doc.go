// Package server exposes a verification run over HTTP for scraping while it is in flight.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [Middleware] wraps handlers so the first one added executes first.
// The [BasicRouter] implementation uses [http.ServeMux] method patterns.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Endpoints
//
//	GET /metrics  the run's private Prometheus registry (see internal/metrics)
//	GET /healthz  liveness
//
// The [Server] lives exactly as long as one verify invocation; the textfile export remains the durable record.
package server
