// Package webhook authenticates inbound webhook deliveries from the identity
// provider.
//
// Each delivery carries an id, a unix timestamp and a hex HMAC-SHA256 over
// "id.timestamp.body" keyed with the shared secret. Verifier.Middleware checks
// the signature in constant time, rejects deliveries outside the replay window
// and hands the untouched body to the next handler. Sign produces the same
// headers for senders and tests.
package webhook
