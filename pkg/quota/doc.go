// Package quota implements the credit ledger that gates generations.
//
// A generation takes a credit with Reserve before the provider is called and
// settles it afterwards: Commit stores the usage record, Release gives the
// credit back. The store applies the decrement with a conditional update, so
// N concurrent Reserve calls against k credits grant exactly min(N, k).
package quota
