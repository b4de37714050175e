// Package pg wires PostgreSQL: pool construction with retries, embedded goose
// migrations, a transaction helper and SQLSTATE classification.
package pg
