// Package session guarda la credencial del usuario (token bearer + user
// serializado) y coordina su invalidación cuando la API responde 401.
//
// Token y user se guardan y se borran juntos: ningún Store expone una forma
// de tocar uno sin el otro.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoCredential: no hay sesión guardada.
	ErrNoCredential = errors.New("session: no credential")
	// ErrInvalidCredential: se intentó guardar una credencial sin token.
	ErrInvalidCredential = errors.New("session: invalid credential")
)

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User es el perfil que devuelve la API junto con el token.
type User struct {
	UUID             string    `json:"uuid"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	CompensationLink string    `json:"compensation_link,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

func (u User) IsAdmin() bool { return strings.EqualFold(u.Role, RoleAdmin) }

// Credential es el par token + user persistido.
type Credential struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (c Credential) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrInvalidCredential
	}
	return nil
}

// Store persiste la credencial. Load devuelve ErrNoCredential si no hay.
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// Token devuelve el token guardado o "" si no hay sesión. Errores de lectura
// se tratan como "sin sesión": el request sale sin Authorization.
func Token(ctx context.Context, s Store) string {
	if s == nil {
		return ""
	}
	c, err := s.Load(ctx)
	if err != nil {
		return ""
	}
	return c.Token
}
