package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt lee el claim exp del token sin verificar la firma. El token es
// opaco para el cliente: esto sólo sirve para mostrarlo en whoami.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reporta si el token tiene exp y ya pasó. Sin exp => false.
func (c Credential) Expired(now time.Time) bool {
	exp, ok := ExpiresAt(c.Token)
	return ok && !now.Before(exp)
}
