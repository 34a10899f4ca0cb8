package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCancelled: el contexto del llamador se canceló. Nunca entra al retry
// y no debe mostrarse al usuario.
var ErrCancelled = errors.New("transport: request cancelled")

// ErrRateLimited: el limitador no puede dar un token antes del deadline del
// contexto. Llega envuelto en un *NetworkError y no se reintenta.
var ErrRateLimited = errors.New("transport: rate limit wait exceeds deadline")

// HTTPError es una respuesta final no-2xx.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("transport: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Retryable: sólo 5xx.
func (e *HTTPError) Retryable() bool { return e.Status >= 500 && e.Status <= 599 }

// NetworkError: no hubo respuesta HTTP (DNS, conexión, timeout fijo, breaker abierto).
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsCancelled reporta si err es una cancelación del llamador.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// StatusOf devuelve el status HTTP de err o 0 si no hubo respuesta.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}
