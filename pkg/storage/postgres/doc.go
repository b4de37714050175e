// Package postgres stores accounts, payments, billing tokens, credit
// reservations and usage records in PostgreSQL.
//
// Credit decrements, payment commits and reservation settlements each run in
// a single transaction whose SQL carries its own guard (remaining credits,
// account version, reservation state), so concurrent requests from several
// server replicas cannot overdraw an allowance or apply a payment twice.
//
// Migrations are embedded and applied with Migrate:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := postgres.Migrate(ctx, pool, cfg, log); err != nil { ... }
//	store := postgres.New(pool)
package postgres
