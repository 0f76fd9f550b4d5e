// Package httpserver wraps net/http with context-driven graceful shutdown,
// configurable timeouts and health-check handlers.
//
// Run binds the listener first, so start hooks and Addr see the real
// address (useful with ":0"), then serves until the context is cancelled or
// Shutdown is called. In-flight requests get the shutdown timeout to finish.
// Signal handling is left to the caller, typically via signal.NotifyContext.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log, 2*time.Second, map[string]httpserver.CheckFunc{
//		"redis": redis.Healthcheck(client),
//	}))
//
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen and serve failures wrap ErrStart; shutdown failures wrap ErrShutdown.
package httpserver
