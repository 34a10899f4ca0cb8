package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
)

// FetchFunc trae el dato. Debe respetar ctx.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// State es lo que observa la vista. Error vacío = sin error.
type State[T any] struct {
	Data    T
	Loading bool
	Error   string
}

// Options de un Query. Sin Cache o sin CacheKey no se cachea.
type Options[T any] struct {
	DefaultValue  T
	Cache         *Cache
	CacheKey      string
	CacheDuration time.Duration

	OnSuccess func(T)
	// OnError recibe el error ya clasificado. No se llama para errores de
	// red ni para "sin datos".
	OnError func(*apierr.Error)
	// OnChange se llama fuera del lock con cada estado aplicado.
	OnChange func(State[T])

	Logger *zap.Logger
}

// Query representa un punto de consumo (una vista, una key). Mantiene a lo
// sumo una request en vuelo: cada Load/Refetch/Reset cancela la anterior y
// el resultado de una request cancelada o superada nunca se aplica.
type Query[T any] struct {
	opts Options[T]
	log  *zap.Logger

	mu     sync.Mutex
	fetch  FetchFunc[T]
	key    string
	state  State[T]
	gen    uint64
	cancel context.CancelFunc
	closed bool

	// notifyMu ordena las entregas de OnChange.
	notifyMu sync.Mutex
	// afterApply corre entre aplicar un resultado y notificarlo (tests).
	afterApply func()
}

// NewQuery arma el Query en estado inicial {DefaultValue, Loading: true}:
// la vista todavía no resolvió su primera carga.
func NewQuery[T any](fetch FetchFunc[T], o Options[T]) *Query[T] {
	if o.CacheDuration <= 0 {
		o.CacheDuration = DefaultCacheDuration
	}
	return &Query[T]{
		opts:  o,
		log:   logger.OrNamed(o.Logger, "remote"),
		fetch: fetch,
		key:   o.CacheKey,
		state: State[T]{Data: o.DefaultValue, Loading: true},
	}
}

// State devuelve una copia del estado actual.
func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// StateKey devuelve estado y key leídos juntos.
func (q *Query[T]) StateKey() (State[T], string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state, q.key
}

// Key devuelve la cache key vigente.
func (q *Query[T]) Key() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// Load es el montaje: sirve del cache si hay entrada válida, si no va a la
// red. Bloquea hasta que la request propia resuelve o es superada y
// devuelve el estado vigente en ese momento.
func (q *Query[T]) Load(ctx context.Context) State[T] { return q.run(ctx, false) }

// Refetch ignora la validez del cache y siempre va a la red.
func (q *Query[T]) Refetch(ctx context.Context) State[T] { return q.run(ctx, true) }

// Reset cambia fetch y key (cambio de dependencias) y vuelve a cargar.
// La request en vuelo queda superada.
func (q *Query[T]) Reset(ctx context.Context, fetch FetchFunc[T], key string) State[T] {
	q.mu.Lock()
	if q.closed {
		s := q.state
		q.mu.Unlock()
		return s
	}
	q.supersedeLocked()
	if fetch != nil {
		q.fetch = fetch
	}
	q.key = key
	q.mu.Unlock()
	return q.run(ctx, false)
}

// Close es el desmontaje: cancela lo que esté en vuelo y congela el estado.
func (q *Query[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.supersedeLocked()
}

func (q *Query[T]) supersedeLocked() {
	q.gen++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

func (q *Query[T]) run(ctx context.Context, force bool) State[T] {
	q.mu.Lock()
	if q.closed {
		s := q.state
		q.mu.Unlock()
		return s
	}

	cache, key := q.opts.Cache, q.key
	if !force && cache != nil && key != "" {
		if e, ok := cache.Get(key, q.opts.CacheDuration); ok {
			if v, ok := e.Value.(T); ok {
				q.supersedeLocked()
				q.state = State[T]{Data: v}
				s, gen := q.state, q.gen
				q.mu.Unlock()
				q.log.Debug("cache hit", logger.CacheKey(key))
				q.notify(gen)
				return s
			}
		}
	}

	q.supersedeLocked()
	gen := q.gen
	cctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	fetch := q.fetch
	q.state.Loading = true
	q.state.Error = ""
	s := q.state
	q.mu.Unlock()
	q.notify(gen)

	v, err := fetch(cctx)

	q.mu.Lock()
	if q.closed || gen != q.gen || cctx.Err() != nil {
		s := q.state
		q.mu.Unlock()
		cancel()
		q.log.Debug("resultado descartado", logger.CacheKey(key))
		return s
	}
	q.cancel = nil
	cancel()

	var (
		onSuccess func()
		onError   func()
	)
	if err == nil {
		if cache != nil && key != "" {
			cache.Set(key, v)
		}
		q.state = State[T]{Data: v}
		if q.opts.OnSuccess != nil {
			onSuccess = func() { q.opts.OnSuccess(v) }
		}
	} else {
		ce := apierr.Classify(err)
		switch ce.Kind {
		case apierr.KindCancelled:
			q.state.Loading = false
		case apierr.KindNotFoundAsEmpty:
			q.state = State[T]{Data: q.opts.DefaultValue}
		case apierr.KindUnauthorized:
			// el transporte ya cerró la sesión y navegó a login
			q.state.Loading = false
		case apierr.KindNetwork:
			q.state.Loading = false
			q.state.Error = apierr.MsgNetwork
		default:
			q.state.Loading = false
			q.state.Error = apierr.UserMessage(ce)
			if q.opts.OnError != nil {
				onError = func() { q.opts.OnError(ce) }
			}
		}
		q.log.Debug("fetch falló", logger.CacheKey(key), logger.Kind(ce.Kind.String()), logger.Err(err))
	}
	s = q.state
	q.mu.Unlock()

	if q.afterApply != nil {
		q.afterApply()
	}
	q.notify(gen)
	if onSuccess != nil {
		onSuccess()
	}
	if onError != nil {
		onError()
	}
	return s
}

// notify entrega el estado vigente si gen sigue siendo la generación actual.
// Una entrega de una generación superada se descarta, así el último estado
// observado nunca es más viejo que el real. OnChange no debe llamar a
// Load/Refetch/Reset del mismo Query.
func (q *Query[T]) notify(gen uint64) {
	if q.opts.OnChange == nil {
		return
	}
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	s := q.state
	q.mu.Unlock()
	q.opts.OnChange(s)
}
