// Package api exposes the subscription, generation and identity webhook
// endpoints over HTTP with a chi router.
//
// Requests under /v1 are authenticated upstream; the gateway forwards the
// identity reference in a trusted header (X-Identity-Ref by default) and the
// router resolves it to an account. Responses use one JSON envelope:
//
//	{"data": ..., "meta": {...}}
//	{"error": {"code": "quota_exhausted", "message": "...", "details": {...}}}
//
// Domain errors map to stable codes: quota_exhausted and subscription_expired
// (403), invalid_state_transition (409), payment_declined (402),
// generation_failed and conflict (503), validation_error (422).
package api
