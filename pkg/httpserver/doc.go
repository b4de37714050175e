// Package httpserver runs an http.Handler with graceful shutdown driven by a
// context, and provides a JSON health endpoint over named dependency checks.
//
//	srv := httpserver.New(cfg, log)
//	return srv.Run(ctx, router) // returns after ctx is cancelled and requests drain
package httpserver
