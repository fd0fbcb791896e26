// Package credentials manages the provider accounts used during a verification run.
//
// A [Pool] is built once at startup from configuration and the CREDENTIALS environment variable
// ([ParseCredentials], [FromConfig]) and discarded at exit. Quota state is never persisted.
//
// Workers call [Pool.Checkout] to reserve one lookup, then settle it with [Pool.Commit] when the
// provider charged the call or [Pool.ReleaseWithoutUse] when it did not. [ErrExhausted] is an
// expected condition that tells the dispatcher to wait, fail the address, or stop.
package credentials
