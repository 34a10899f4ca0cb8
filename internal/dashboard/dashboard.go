// Package dashboard arma la vista principal: referidos del período, deals y
// estadísticas, cada uno con su Query cacheado, cargados en paralelo.
package dashboard

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/portal"
	"github.com/dropDatabas3/partnerportal/internal/remote"
	"github.com/dropDatabas3/partnerportal/internal/stats"
)

// Cache keys de la vista.
const (
	KeyDeals          = "dashboard-deals"
	KeyStats          = "dashboard-stats"
	keyReferralPrefix = "dashboard-referrals-"
)

// ReferralsKey es la key de los referidos para un período.
func ReferralsKey(p portal.Period) string { return keyReferralPrefix + string(p) }

// Source es lo que el dashboard consume de portal.Service.
type Source interface {
	FetchReferrals(ctx context.Context, f portal.Filter) ([]portal.Referral, error)
	FetchDeals(ctx context.Context) ([]portal.Deal, error)
	FetchStats(ctx context.Context) (stats.Snapshot, error)
}

type Options struct {
	Source        Source
	Cache         *remote.Cache
	CacheDuration time.Duration
	// Period inicial; "" => all.
	Period   portal.Period
	Logger   *zap.Logger
	OnChange func(State)
}

// State es el estado agregado de la vista.
type State struct {
	Period    portal.Period
	Referrals []portal.Referral
	Deals     []portal.Deal
	Stats     stats.Snapshot
	// Loading es true mientras alguno de los tres no resolvió.
	Loading bool
	// Error junta los mensajes no vacíos separados por espacio.
	Error string
}

// Dashboard no es reutilizable después de Close.
type Dashboard struct {
	src Source
	log *zap.Logger

	referrals *remote.Query[[]portal.Referral]
	deals     *remote.Query[[]portal.Deal]
	stats     *remote.Query[stats.Snapshot]

	onChange func(State)
}

func New(o Options) *Dashboard {
	p := o.Period
	if p == "" {
		p = portal.PeriodAll
	}
	d := &Dashboard{
		src:      o.Source,
		log:      logger.OrNamed(o.Logger, "dashboard"),
		onChange: o.OnChange,
	}
	d.referrals = remote.NewQuery(d.fetchReferrals(p), remote.Options[[]portal.Referral]{
		DefaultValue:  []portal.Referral{},
		Cache:         o.Cache,
		CacheKey:      ReferralsKey(p),
		CacheDuration: o.CacheDuration,
		OnChange:      func(remote.State[[]portal.Referral]) { d.notify() },
		Logger:        o.Logger,
	})
	d.deals = remote.NewQuery(o.Source.FetchDeals, remote.Options[[]portal.Deal]{
		DefaultValue:  []portal.Deal{},
		Cache:         o.Cache,
		CacheKey:      KeyDeals,
		CacheDuration: o.CacheDuration,
		OnChange:      func(remote.State[[]portal.Deal]) { d.notify() },
		Logger:        o.Logger,
	})
	d.stats = remote.NewQuery(o.Source.FetchStats, remote.Options[stats.Snapshot]{
		DefaultValue:  stats.Zero(),
		Cache:         o.Cache,
		CacheKey:      KeyStats,
		CacheDuration: o.CacheDuration,
		OnChange:      func(remote.State[stats.Snapshot]) { d.notify() },
		Logger:        o.Logger,
	})
	return d
}

func (d *Dashboard) fetchReferrals(p portal.Period) remote.FetchFunc[[]portal.Referral] {
	return func(ctx context.Context) ([]portal.Referral, error) {
		return d.src.FetchReferrals(ctx, portal.Filter{Period: p})
	}
}

// Load monta la vista: los tres Query en paralelo, del cache si está vigente.
func (d *Dashboard) Load(ctx context.Context) State {
	return d.all(ctx, false)
}

// Refetch fuerza la red en los tres.
func (d *Dashboard) Refetch(ctx context.Context) State {
	return d.all(ctx, true)
}

func (d *Dashboard) all(ctx context.Context, force bool) State {
	start := time.Now()
	var g errgroup.Group
	g.Go(func() error {
		if force {
			d.referrals.Refetch(ctx)
		} else {
			d.referrals.Load(ctx)
		}
		return nil
	})
	g.Go(func() error {
		if force {
			d.deals.Refetch(ctx)
		} else {
			d.deals.Load(ctx)
		}
		return nil
	})
	g.Go(func() error {
		if force {
			d.stats.Refetch(ctx)
		} else {
			d.stats.Load(ctx)
		}
		return nil
	})
	_ = g.Wait()

	s := d.State()
	d.log.Debug("dashboard cargado",
		zap.String("period", string(s.Period)),
		logger.Duration(time.Since(start)),
		zap.Bool("with_error", s.Error != ""))
	return s
}

// SetPeriod cambia el período de los referidos. La carga anterior de
// referidos queda superada; deals y stats no se tocan.
func (d *Dashboard) SetPeriod(ctx context.Context, p portal.Period) State {
	d.referrals.Reset(ctx, d.fetchReferrals(p), ReferralsKey(p))
	return d.State()
}

// Period devuelve el período vigente. Sale de la key del Query de
// referidos, así nunca discrepa con los datos que éste tiene.
func (d *Dashboard) Period() portal.Period { return periodOf(d.referrals.Key()) }

func periodOf(key string) portal.Period {
	return portal.Period(strings.TrimPrefix(key, keyReferralPrefix))
}

// State combina el estado de los tres Query.
func (d *Dashboard) State() State {
	r, key := d.referrals.StateKey()
	dl, st := d.deals.State(), d.stats.State()
	return State{
		Period:    periodOf(key),
		Referrals: r.Data,
		Deals:     dl.Data,
		Stats:     st.Data,
		Loading:   r.Loading || dl.Loading || st.Loading,
		Error:     joinErrors(r.Error, dl.Error, st.Error),
	}
}

// Close desmonta: cancela lo que esté en vuelo.
func (d *Dashboard) Close() {
	d.referrals.Close()
	d.deals.Close()
	d.stats.Close()
}

func (d *Dashboard) notify() {
	if d.onChange != nil {
		d.onChange(d.State())
	}
}

func joinErrors(msgs ...string) string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m != "" {
			out = append(out, m)
		}
	}
	return strings.Join(out, " ")
}
