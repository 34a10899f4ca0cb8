package portal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/partnerportal/internal/codec"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// AdminStats es el resumen del panel de administración.
type AdminStats struct {
	TotalUsers     int                `json:"totalUsers"`
	ActiveUsers    int                `json:"activeUsers"`
	TotalTutorials int                `json:"totalTutorials"`
	RecentActivity []codec.RawMessage `json:"recentActivity"`
}

// FetchAdminStats usa el envelope {success, message, data}.
func (s *Service) FetchAdminStats(ctx context.Context) (AdminStats, error) {
	const fail = "Failed to fetch dashboard stats"
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodGet, Path: "/admin/stats"})
	if err != nil {
		return AdminStats{}, fmt.Errorf("%s: %w", fail, err)
	}
	var st AdminStats
	if _, err := decodeEnvelope(resp, &st, fail); err != nil {
		return AdminStats{}, fmt.Errorf("%s: %w", fail, err)
	}
	if st.RecentActivity == nil {
		st.RecentActivity = []codec.RawMessage{}
	}
	return st, nil
}
