package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/transport"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

// User del portal; es el mismo que se persiste con la credencial.
type User = session.User

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterInput struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type authData struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ErrNoToken: la API respondió success sin token.
var ErrNoToken = errors.New("portal: auth response without token")

// Login autentica y guarda token + user juntos. El cache de vistas se
// purga: los datos del usuario anterior no se reutilizan.
func (s *Service) Login(ctx context.Context, in LoginInput) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	return s.authenticate(ctx, "/users/login", in, "Login failed")
}

// Register crea la cuenta y deja la sesión iniciada.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}
	return s.authenticate(ctx, "/users/register", in, "Registration failed")
}

func (s *Service) authenticate(ctx context.Context, path string, body any, fallback string) (User, error) {
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodPost, Path: path, Body: body})
	if err != nil {
		return User{}, err
	}
	var data authData
	if _, err := decodeEnvelope(resp, &data, fallback); err != nil {
		return User{}, err
	}
	if data.Token == "" {
		return User{}, ErrNoToken
	}
	if err := s.store.Save(ctx, session.Credential{Token: data.Token, User: data.User}); err != nil {
		return User{}, err
	}
	s.purgeCache()
	return data.User, nil
}

// Logout borra la credencial y el cache. No llama a la API.
func (s *Service) Logout(ctx context.Context) error {
	s.purgeCache()
	return s.store.Clear(ctx)
}

// Current devuelve la credencial guardada sin ir a la red.
func (s *Service) Current(ctx context.Context) (session.Credential, error) {
	return s.store.Load(ctx)
}

// Me trae el perfil del usuario autenticado.
func (s *Service) Me(ctx context.Context) (User, error) {
	resp, err := s.api.Send(ctx, transport.Request{Method: http.MethodGet, Path: "/users/me"})
	if err != nil {
		return User{}, fmt.Errorf("Failed to fetch user profile: %w", err)
	}
	var data struct {
		User *User `json:"user"`
	}
	if _, err := decodeEnvelope(resp, &data, "Failed to fetch user profile"); err != nil {
		return User{}, err
	}
	if data.User == nil {
		return User{}, errors.New("Failed to fetch user profile")
	}
	return *data.User, nil
}

// profileTimeout acota la request compartida de RefreshProfile, que no
// depende del contexto de ningún llamador.
const profileTimeout = 30 * time.Second

// RefreshProfile actualiza el user guardado con /users/me. Llamadas
// concurrentes comparten una sola request. El token no se toca y si la
// sesión cambió mientras tanto no se pisa. Cancelar ctx libera sólo a este
// llamador; la request sigue para los demás.
func (s *Service) RefreshProfile(ctx context.Context) (User, error) {
	ch := s.profile.DoChan("me", func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), profileTimeout)
		defer cancel()
		cur, err := s.store.Load(sctx)
		if err != nil {
			return User{}, err
		}
		u, err := s.Me(sctx)
		if err != nil {
			return User{}, err
		}
		if now, err := s.store.Load(sctx); err == nil && now.Token == cur.Token {
			if err := s.store.Save(sctx, session.Credential{Token: cur.Token, User: u}); err != nil {
				return User{}, err
			}
		}
		return u, nil
	})
	select {
	case <-ctx.Done():
		return User{}, transport.ErrCancelled
	case res := <-ch:
		if res.Err != nil {
			return User{}, res.Err
		}
		return res.Val.(User), nil
	}
}

func (s *Service) purgeCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}
