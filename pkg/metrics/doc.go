// Package metrics defines the Prometheus collectors of the service and an
// HTTP middleware that labels requests by chi route pattern.
package metrics
