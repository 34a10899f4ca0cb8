// Package metrics define los collectors Prometheus del cliente del portal.
// Vive aparte para que transport y remote no dependan uno del otro.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa los collectors. Un *Metrics nil es válido: todos los
// métodos son no-op, así los componentes no chequean si hay métricas.
type Metrics struct {
	requests     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	teardowns    prometheus.Counter
}

// New crea y registra los collectors en reg (DefaultRegisterer si es nil).
// Registrar dos veces el mismo collector no es error.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Intentos HTTP contra la API del portal por método, ruta y status (0 = sin respuesta)",
		}, []string{"method", "path", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_retries_total",
			Help: "Reintentos programados por fallas transitorias",
		}, []string{"method", "path"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "Latencia de cada intento HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_cache_lookups_total",
			Help: "Lecturas del cache de vistas por resultado (hit|miss|stale)",
		}, []string{"result"}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_session_teardowns_total",
			Help: "Sesiones invalidadas por 401",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.retries, m.duration, m.cacheLookups, m.teardowns} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// ObserveAttempt registra un intento HTTP. status 0 = error de red.
func (m *Metrics) ObserveAttempt(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(d.Seconds())
}

// IncRetry cuenta un reintento programado.
func (m *Metrics) IncRetry(method, path string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(method, path).Inc()
}

// CacheLookup cuenta una lectura del cache (hit|miss|stale).
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// IncTeardown cuenta una invalidación de sesión efectiva.
func (m *Metrics) IncTeardown() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
}
