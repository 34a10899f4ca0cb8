// Package portal traduce las operaciones del dominio (referidos, deals,
// estadísticas, tutoriales, usuarios, auth) a llamadas del transporte y
// normaliza las respuestas en tipos propios.
package portal

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/remote"
	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// Sender es lo que el servicio necesita del transporte.
type Sender interface {
	Send(ctx context.Context, r transport.Request) (*transport.Response, error)
}

// Options para New. API es obligatorio.
type Options struct {
	API   Sender
	Store session.Store
	// Cache de vistas; se purga en login/logout.
	Cache  *remote.Cache
	Logger *zap.Logger
	// Now inyectable para tests; nil => time.Now.
	Now func() time.Time
}

// Service expone las operaciones del portal. Seguro para uso concurrente.
type Service struct {
	api   Sender
	store session.Store
	cache *remote.Cache
	log   *zap.Logger
	now   func() time.Time

	profile singleflight.Group
}

func New(o Options) *Service {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	store := o.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	return &Service{
		api:   o.API,
		store: store,
		cache: o.Cache,
		log:   logger.OrNamed(o.Logger, "portal"),
		now:   now,
	}
}

// Now es el reloj del servicio.
func (s *Service) Now() time.Time { return s.now() }

// Store devuelve el store de sesión en uso.
func (s *Service) Store() session.Store { return s.store }
