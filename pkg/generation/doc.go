// Package generation produces saju readings behind the usage quota.
//
// Service.Generate normalizes and validates the Input, reserves a credit from
// the quota ledger, asks the Provider for the reading with a bounded timeout
// and then either commits a usage record or releases the credit. A failed
// or timed out provider call therefore never costs the user a credit.
//
// GeminiProvider talks to the Gemini generateContent REST endpoint; the model
// name comes from the tier plan the reservation was taken under.
package generation
