// Package tasks runs mailbox verification across a credential pool with real-time progress reporting.
//
// # Core Operation
//
// The [Engine] interface defines a single operation:
//
//  1. [Engine.Run] : Verify every mailbox in a catalog
//     - Collapses mailboxes that share an address key onto the first occurrence
//     - Dispatches lookups to a bounded worker pool paced by a shared rate limiter
//     - Checks out the least-used credential for every call
//     - Retries quota errors on an alternate credential and transient errors with backoff
//     - Returns exactly one outcome per unique address, in catalog order
//
// # Early Termination
//
// Dispatch stops when every credential is exhausted, when the error budget is spent, or when the
// context is cancelled. Calls already in flight complete; addresses that never reached a verdict are
// reported as skipped and the result is marked partial. None of these are errors.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [VerifyEngine] implements [Engine] with dependencies on:
//   - [services.Validator] : address verification provider (Smarty US Street)
//   - [credentials.Pool] : quota-aware credential checkout
//   - [metrics.Metrics] : optional per-run Prometheus metrics
package tasks
