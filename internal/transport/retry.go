package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describe el backoff de reintentos:
// delay(n) = min(Base * 2^n, Max) + jitter en [0, MaxJitter), con n = número
// de reintento empezando en 1 (el contador sube antes de calcular).
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
	MaxJitter  time.Duration
}

// DefaultRetryPolicy: 3 reintentos, 1s base, tope 10s, jitter < 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: time.Second, Max: 10 * time.Second, MaxJitter: time.Second}
}

// Delay calcula la espera para el reintento número attempt (>= 1) sin jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// jitterSource es compartido entre requests; rand.Rand no es thread-safe.
type jitterSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newJitterSource(seed int64) *jitterSource {
	return &jitterSource{r: rand.New(rand.NewSource(seed))}
}

func (j *jitterSource) next(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.r.Int63n(int64(max)))
}

// policyBackOff adapta RetryPolicy a backoff.BackOff. Una instancia por
// llamada lógica: guarda el contador de intentos.
type policyBackOff struct {
	p       RetryPolicy
	jitter  *jitterSource
	attempt int
}

var _ backoff.BackOff = (*policyBackOff)(nil)

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.p.Delay(b.attempt) + b.jitter.next(b.p.MaxJitter)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }
