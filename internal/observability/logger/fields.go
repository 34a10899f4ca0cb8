package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS - TRANSPORT
// =================================================================================

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// Path crea un campo para el path relativo al base URL.
func Path(v string) zap.Field { return zap.String("path", v) }

// Status crea un campo para el status code HTTP (0 = sin respuesta).
func Status(v int) zap.Field { return zap.Int("status", v) }

// Attempt crea un campo para el número de intento (0 = primer envío).
func Attempt(v int) zap.Field { return zap.Int("attempt", v) }

// Delay crea un campo para la espera antes del próximo intento.
func Delay(v time.Duration) zap.Field { return zap.Duration("delay", v) }

// Duration crea un campo para la duración de una llamada.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// RequestID crea un campo para el X-Request-ID enviado.
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// =================================================================================
// CAMPOS - ESTADO
// =================================================================================

// CacheKey crea un campo para la clave de cache de una vista.
func CacheKey(v string) zap.Field { return zap.String("cache_key", v) }

// View crea un campo para la vista actual (dashboard, login, ...).
func View(v string) zap.Field { return zap.String("view", v) }

// Kind crea un campo para el tipo de error clasificado.
func Kind(v string) zap.Field { return zap.String("kind", v) }

// Component crea un campo para el componente.
func Component(v string) zap.Field { return zap.String("component", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }
