// Package logger expone un logger Zap compartido por el cliente del portal.
//
// # Decisiones
//
//   - Singleton: una instancia global inicializada con Init() desde cmd/portal.
//   - Inyección: los componentes (transport, remote, portal) aceptan un
//     *zap.Logger opcional; si es nil usan Named(<componente>).
//   - Context scoping: From(ctx) devuelve el logger con campos de la vista
//     (view, request_id) si alguien lo inyectó con ToContext.
//   - Entornos: "dev" consola con colores, "prod" JSON.
//
// # Uso
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx)
//	log.Debug("retrying request", logger.Method(m), logger.Attempt(n))
package logger
