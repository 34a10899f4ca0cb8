package portal

import (
	"context"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/stats"
)

// FetchStats trae todos los referidos y calcula el snapshot. Es best-effort:
// cualquier falla que no sea cancelación devuelve el snapshot en cero.
func (s *Service) FetchStats(ctx context.Context) (stats.Snapshot, error) {
	rs, err := s.FetchReferrals(ctx, Filter{Period: PeriodAll})
	if err != nil {
		if apierr.IsCancelled(err) {
			return stats.Zero(), err
		}
		s.log.Warn("stats en cero por falla al traer referidos", logger.Err(err))
		return stats.Zero(), nil
	}
	return stats.Aggregate(Leads(rs), s.now()), nil
}
