package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/stats"
	"github.com/dropDatabas3/partnerportal/internal/transport"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

// Referral es un lead del CRM originado por el usuario. Inmutable.
type Referral struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Company    string    `json:"company"`
	LeadStatus string    `json:"lead_status,omitempty"` // "" = sin estado
	CreatedAt  time.Time `json:"created_at"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	AltContact string    `json:"alt_contact,omitempty"`
}

// Filter acota FetchReferrals. Con From/To seteados ganan sobre Period.
type Filter struct {
	Period Period
	From   time.Time
	To     time.Time
}

func (f Filter) query(now time.Time) url.Values {
	from, to := f.From, f.To
	if from.IsZero() || to.IsZero() {
		start, ok := f.Period.Range(now)
		if !ok {
			return nil
		}
		from, to = start, now
	}
	return url.Values{
		"start_date": {from.Format(apiDateLayout)},
		"end_date":   {to.Format(apiDateLayout)},
	}
}

type referralWire struct {
	ID            flexString `json:"id" validate:"required"`
	FullName      *string    `json:"Full_Name"`
	Company       *string    `json:"Company"`
	LeadStatus    *string    `json:"Lead_Status"`
	CreatedTime   string     `json:"Created_Time" validate:"required"`
	Email         *string    `json:"Email"`
	Phone         *string    `json:"Phone"`
	ContactNumber *string    `json:"Contact_Number"`
}

func (w referralWire) toReferral() (Referral, error) {
	if err := validation.Struct(w); err != nil {
		return Referral{}, err
	}
	created, err := parseTime(w.CreatedTime)
	if err != nil {
		return Referral{}, err
	}
	return Referral{
		ID:         string(w.ID),
		FullName:   strOr(w.FullName, "Unknown"),
		Company:    strOr(w.Company, "N/A"),
		LeadStatus: strVal(w.LeadStatus),
		CreatedAt:  created,
		Email:      strVal(w.Email),
		Phone:      strVal(w.Phone),
		AltContact: strVal(w.ContactNumber),
	}, nil
}

// FetchReferrals trae los referidos del usuario. "Sin registros" => slice vacío.
// Filas que no pasan la validación se descartan y se loguean.
func (s *Service) FetchReferrals(ctx context.Context, f Filter) ([]Referral, error) {
	resp, err := s.api.Send(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/leads/by-lead-source",
		Query:  f.query(s.now()),
	})
	if err != nil {
		if apierr.IsEmpty(err) {
			return []Referral{}, nil
		}
		return nil, fmt.Errorf("fetch referrals: %w", err)
	}

	var body struct {
		Leads []referralWire `json:"leads"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch referrals: %w", err)
	}

	out := make([]Referral, 0, len(body.Leads))
	for i, w := range body.Leads {
		r, err := w.toReferral()
		if err != nil {
			s.log.Warn("lead descartado", zap.Int("row", i), logger.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Leads proyecta los referidos al input del agregador.
func Leads(rs []Referral) []stats.Lead {
	out := make([]stats.Lead, len(rs))
	for i, r := range rs {
		out[i] = stats.Lead{Status: r.LeadStatus, CreatedAt: r.CreatedAt}
	}
	return out
}
