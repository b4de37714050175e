// Package memory provides an in-process implementation of the subscription
// and quota stores.
package memory
