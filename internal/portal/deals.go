package portal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// Deal es una oportunidad comercial generada desde un referido.
type Deal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Amount    float64   `json:"amount"`
	Stage     string    `json:"stage"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type dealWire struct {
	ID          flexString `json:"id"`
	DealName    *string    `json:"Deal_Name"`
	Amount      flexAmount `json:"Amount"`
	Stage       *string    `json:"Stage"`
	LeadSource  *string    `json:"Lead_Source"`
	CreatedTime string     `json:"Created_Time"`
}

// FetchDeals trae los deals del usuario. "No deals found" => slice vacío.
func (s *Service) FetchDeals(ctx context.Context) ([]Deal, error) {
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodGet, Path: "/leads/deals/by-referrer"})
	if err != nil {
		if apierr.IsEmpty(err) {
			return []Deal{}, nil
		}
		return nil, fmt.Errorf("fetch deals: %w", err)
	}

	var body struct {
		Deals []dealWire `json:"deals"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch deals: %w", err)
	}

	out := make([]Deal, 0, len(body.Deals))
	for _, w := range body.Deals {
		// fecha inválida => zero value; el deal se muestra igual
		created, _ := parseTime(w.CreatedTime)
		out = append(out, Deal{
			ID:        string(w.ID),
			Name:      strOr(w.DealName, "Unnamed Deal"),
			Amount:    float64(w.Amount),
			Stage:     strOr(w.Stage, "Unknown"),
			Source:    strVal(w.LeadSource),
			CreatedAt: created,
		})
	}
	return out, nil
}
