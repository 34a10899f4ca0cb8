package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
)

// Vistas conocidas por el cliente.
const (
	ViewLogin     = "login"
	ViewRegister  = "register"
	ViewDashboard = "dashboard"
)

// Navigator abstrae la capa de vistas: cuál está activa y cómo cambiar.
type Navigator interface {
	Current() string
	Navigate(view string)
}

// ViewTracker es un Navigator en memoria; la CLI lo usa para registrar la
// vista montada por cada comando.
type ViewTracker struct {
	mu      sync.Mutex
	current string
}

func NewViewTracker(initial string) *ViewTracker { return &ViewTracker{current: initial} }

func (v *ViewTracker) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

func (v *ViewTracker) Navigate(view string) {
	v.mu.Lock()
	v.current = view
	v.mu.Unlock()
}

// Invalidator hace el teardown global ante un 401: borra la credencial y
// manda a login salvo que ya se esté en login/registro.
//
// Es compare-and-clear sobre el token que usó el request: N requests
// concurrentes con el mismo token producen un solo clear y una sola
// navegación. Un 401 de un token viejo no borra una sesión nueva.
type Invalidator struct {
	store Store
	nav   Navigator
	log   *zap.Logger

	mu sync.Mutex
}

// NewInvalidator: nav puede ser nil (sin capa de vistas).
func NewInvalidator(store Store, nav Navigator, log *zap.Logger) *Invalidator {
	return &Invalidator{store: store, nav: nav, log: logger.OrNamed(log, "session")}
}

// Invalidate devuelve true si esta llamada efectivamente borró la sesión.
func (i *Invalidator) Invalidate(ctx context.Context, token string) bool {
	if i == nil || i.store == nil || token == "" {
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	// el teardown no depende de que el request siga vivo
	ctx = context.WithoutCancel(ctx)

	cur, err := i.store.Load(ctx)
	if err != nil || cur.Token != token {
		return false
	}
	if err := i.store.Clear(ctx); err != nil {
		i.log.Warn("no se pudo borrar la sesión", logger.Err(err))
		return false
	}

	view := ""
	if i.nav != nil {
		view = i.nav.Current()
		if view != ViewLogin && view != ViewRegister {
			i.nav.Navigate(ViewLogin)
		}
	}
	i.log.Info("sesión invalidada por 401", logger.View(view))
	return true
}
