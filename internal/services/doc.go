// Package services defines the [Validator] interface for address verification providers and implements it for Smarty.
//
// # Validator Interface
//
// A validator performs exactly one lookup with a credential chosen by the caller. It never retries
// and never touches the credential pool; quota accounting stays with the dispatcher.
//
// # Smarty Implementation
//
// [SmartyService] calls GET /street-address with candidates=1 and the enhanced match strategy.
// Each request is bounded by the configured timeout.
//
// # Error Handling
//
// Lookups without a verdict return [*ValidationError] with a [ErrorKind]:
//   - [KindRejected] : no candidates, dpv_match_code N, or HTTP 400/422
//   - [KindQuotaExceeded] : HTTP 429, or 401/402/403 with the Disable hint set
//   - [KindNetwork] : transport failures, timeouts, HTTP 5xx
//   - [KindProtocol] : undecodable bodies and unknown field values
//
// Charged tells the caller whether the provider consumed quota so the reserved unit can be released.
// The underlying error wraps the matching sentinel from the shared package (e.g. [shared.ErrQuotaExceeded]).
//
// # Raw Access
//
// [APIService] performs plain GET requests and is also used by the catalog crawler.
package services
