package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

type Pagination struct {
	Total       int `json:"total"`
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	Limit       int `json:"limit"`
}

// Page es una página de resultados.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

const (
	defaultPage  = 1
	defaultLimit = 10
)

// ListUsers (admin) pagina usuarios. page/limit <= 0 usan 1 y 10.
func (s *Service) ListUsers(ctx context.Context, page, limit int) (Page[User], error) {
	const fail = "Failed to fetch users"
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	resp, err := s.api.Send(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/admin/users",
		Query:  url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return Page[User]{}, fmt.Errorf("%s: %w", fail, err)
	}
	var data struct {
		Users      *[]User     `json:"users"`
		Pagination *Pagination `json:"pagination"`
	}
	if _, err := decodeEnvelope(resp, &data, fail); err != nil {
		return Page[User]{}, fmt.Errorf("%s: %w", fail, err)
	}
	if data.Users == nil || data.Pagination == nil {
		return Page[User]{}, errors.New(fail)
	}
	return Page[User]{Items: *data.Users, Pagination: *data.Pagination}, nil
}

// SetCompensationLink (admin). Si la API no devuelve el user actualizado se
// arma uno mínimo con el link nuevo.
func (s *Service) SetCompensationLink(ctx context.Context, userUUID, link string) (User, error) {
	const fail = "Failed to update compensation link"
	if _, err := uuid.Parse(userUUID); err != nil {
		return User{}, fmt.Errorf("%s: invalid uuid: %w", fail, err)
	}
	if _, err := url.ParseRequestURI(link); err != nil {
		return User{}, fmt.Errorf("%s: invalid link: %w", fail, err)
	}
	resp, err := s.api.Send(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   "/admin/users/" + userUUID + "/compensation-link",
		Body:   map[string]string{"compensation_link": link},
	})
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", fail, err)
	}
	var data struct {
		User *User `json:"user"`
	}
	if _, err := decodeEnvelope(resp, &data, fail); err != nil {
		return User{}, err
	}
	if data.User != nil {
		return *data.User, nil
	}
	return User{
		UUID:             userUUID,
		Role:             session.RoleUser,
		CompensationLink: link,
		CreatedAt:        s.now().UTC(),
	}, nil
}
