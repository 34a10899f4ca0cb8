package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/transport"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

const (
	codeSuccess   = "SUCCESS"
	codeDuplicate = "DUPLICATE_DATA"

	msgLeadFailed = "Failed to create lead. Please try again later."
	msgNoteFailed = "Failed to create note. Please try again later."
)

// ReferralSubmission es el alta de un referido por un usuario autenticado.
type ReferralSubmission struct {
	FirstName    string `json:"First_Name"`
	LastName     string `json:"Last_Name" validate:"required"`
	Email        string `json:"Email" validate:"required,email"`
	Company      string `json:"Company"`
	BusinessType string `json:"Business_Type"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
}

// PublicReferralSubmission es el alta por link público (uuid del referidor).
// El teléfono viaja en Title.
type PublicReferralSubmission struct {
	FirstName    string `validate:"required"`
	LastName     string `validate:"required"`
	Email        string `validate:"required,email"`
	Company      string
	BusinessType string
	PhoneNumber  string `validate:"omitempty,phone"`
	Description  string
}

type publicReferralPayload struct {
	UUID         string `json:"uuid"`
	FirstName    string `json:"First_Name"`
	LastName     string `json:"Last_Name"`
	Email        string `json:"Email"`
	Company      string `json:"Company"`
	BusinessType string `json:"Business_Type"`
	Title        string `json:"Title"`
	Description  string `json:"Description"`
}

// ErrInvalidLink: el uuid del link público no es válido.
var ErrInvalidLink = errors.New("portal: invalid referral link")

// SubmitReferral crea el lead y su nota. Errores se propagan tal cual para
// que la vista muestre el mensaje exacto (duplicado con id, validación).
func (s *Service) SubmitReferral(ctx context.Context, in ReferralSubmission) error {
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("submit referral: %w", err)
	}
	return s.submit(ctx, "/leads/referral", in)
}

// SubmitPublicReferral es la variante sin sesión, identificada por el uuid
// del link de referido.
func (s *Service) SubmitPublicReferral(ctx context.Context, linkUUID string, in PublicReferralSubmission) error {
	id, err := uuid.Parse(linkUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if err := validation.Struct(in); err != nil {
		return fmt.Errorf("submit referral: %w", err)
	}
	return s.submit(ctx, "/leads/referral/by-uuid", publicReferralPayload{
		UUID:         id.String(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Company:      in.Company,
		BusinessType: in.BusinessType,
		Title:        in.PhoneNumber,
		Description:  in.Description,
	})
}

func (s *Service) submit(ctx context.Context, path string, payload any) error {
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: payload})
	if err != nil {
		return err
	}
	if err := checkCRM(resp.Body); err != nil {
		return err
	}
	lead, note := crmFirst(resp.Body, "leadData"), crmFirst(resp.Body, "noteData")
	s.log.Info("referido creado", zap.String("lead_id", lead.ID), zap.String("note_id", note.ID), logger.Path(path))
	return nil
}

// checkCRM inspecciona la respuesta de dos partes (lead + nota).
func checkCRM(body []byte) error {
	lead := crmFirst(body, "leadData")
	if lead.Code == codeDuplicate {
		return apierr.Duplicate(lead.ID)
	}
	if lead.Code != codeSuccess {
		return &apierr.Error{Kind: apierr.KindServer, Message: nonEmpty(lead.Message, msgLeadFailed)}
	}
	note := crmFirst(body, "noteData")
	if note.Code != codeSuccess {
		return &apierr.Error{Kind: apierr.KindServer, Message: nonEmpty(note.Message, msgNoteFailed)}
	}
	return nil
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
