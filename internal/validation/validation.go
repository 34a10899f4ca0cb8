// Package validation centraliza las reglas de entrada/salida del cliente:
// una instancia compartida de go-playground/validator con reglas propias.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("phone", validatePhone)
}

// Phone rules:
// - Sólo dígitos, sin prefijo "+" ni separadores.
// - Sin ceros a la izquierda.
// - 6..15 dígitos.
var phoneRe = regexp.MustCompile(`^[1-9][0-9]{5,14}$`)

// ValidPhone reporta si s cumple las reglas de teléfono del portal.
func ValidPhone(s string) bool { return phoneRe.MatchString(s) }

func validatePhone(fl validator.FieldLevel) bool {
	return ValidPhone(fl.Field().String())
}

// Struct valida v según sus tags `validate`. Devuelve un *Error con los
// campos inválidos o nil.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &Error{}
	for _, fe := range ve {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// FieldError es un campo que no pasó una regla.
type FieldError struct {
	Field string
	Rule  string
}

// Error agrupa los campos inválidos de una estructura.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// Has reporta si field falló alguna regla.
func (e *Error) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
