// Package logger builds *slog.Logger instances with environment presets,
// static attributes and per-call attributes extracted from context.Context.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "saju"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "credit reserved", logger.UserID(id), logger.Tier("paid"))
//
// Attribute helpers in attr.go keep key names consistent across packages.
package logger
