// Package apierr clasifica las fallas del transporte en una taxonomía chica
// de errores semánticos y decide cuáles cuentan como "sin datos".
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// Kind es la categoría semántica de un error de la API.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindNotFoundAsEmpty
	KindDuplicate
	KindUnauthorized
	KindServer
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindNotFoundAsEmpty:
		return "not_found_as_empty"
	case KindDuplicate:
		return "duplicate"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Mensajes visibles para el usuario.
const (
	MsgNetwork      = "Unable to connect to the server. Please check your internet connection."
	MsgNoReferrals  = "You have not submitted any referrals yet."
	MsgNoDeals      = "No deals have been created from your referrals yet."
	MsgCancelled    = "Request was cancelled."
	MsgUnauthorized = "Your session has expired. Please log in again."
	MsgServer       = "An unexpected server error occurred. Please try again later."
	MsgDefault      = "An unexpected error occurred. Please try again."
)

// Frases con las que la API responde "no hay registros" en vez de una lista vacía.
const (
	phraseNoDeals     = "No deals found"
	phraseNoReferrals = "You didn't refer any lead"
)

// Error es un error clasificado.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// EntityID: id del registro existente en KindDuplicate, si se conoce.
	EntityID string
	Err      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Duplicate arma el error de alta duplicada con el id del lead existente.
func Duplicate(entityID string) *Error {
	return &Error{
		Kind:     KindDuplicate,
		Message:  fmt.Sprintf("A referral with this email already exists (Lead ID: %s)", entityID),
		EntityID: entityID,
	}
}

// Classify mapea err a un *Error. nil => nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if transport.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: MsgCancelled, Err: err}
	}

	var he *transport.HTTPError
	if errors.As(err, &he) {
		return classifyHTTP(he)
	}

	var ne *transport.NetworkError
	if errors.As(err, &ne) {
		return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
	}

	msg := err.Error()
	if isNoRecords(msg) {
		return &Error{Kind: KindNotFoundAsEmpty, Message: msg, Err: err}
	}
	if strings.TrimSpace(msg) == "" {
		msg = MsgDefault
	}
	return &Error{Kind: KindUnknown, Message: msg, Err: err}
}

func classifyHTTP(he *transport.HTTPError) *Error {
	msg := PayloadMessage(he.Body)
	switch {
	case he.Status == http.StatusNotFound || isNoRecords(msg):
		return &Error{Kind: KindNotFoundAsEmpty, Status: he.Status, Message: msg, Err: he}
	case he.Status == http.StatusUnauthorized:
		if msg == "" {
			msg = MsgUnauthorized
		}
		return &Error{Kind: KindUnauthorized, Status: he.Status, Message: msg, Err: he}
	}
	if msg == "" {
		msg = MsgServer
	}
	return &Error{Kind: KindServer, Status: he.Status, Message: msg, Err: he}
}

// PayloadMessage extrae "message" (o "error") de un body JSON.
func PayloadMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	r := gjson.GetManyBytes(body, "message", "error")
	for _, v := range r {
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
	}
	return ""
}

func isNoRecords(msg string) bool {
	return strings.Contains(msg, phraseNoDeals) || strings.Contains(msg, phraseNoReferrals)
}

// KindOf devuelve la categoría de err (KindUnknown para nil también).
func KindOf(err error) Kind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return KindUnknown
}

// IsEmpty: el error significa "no hay datos" y se resuelve como éxito vacío.
func IsEmpty(err error) bool { return err != nil && KindOf(err) == KindNotFoundAsEmpty }

// IsCancelled: cancelación del llamador; nunca se muestra.
func IsCancelled(err error) bool { return err != nil && KindOf(err) == KindCancelled }

// UserMessage es el texto a mostrar. Cancelaciones => "".
func UserMessage(err error) string {
	e := Classify(err)
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindCancelled:
		return ""
	case KindNetwork:
		return MsgNetwork
	case KindNotFoundAsEmpty:
		switch {
		case strings.Contains(e.Message, phraseNoDeals):
			return MsgNoDeals
		case strings.Contains(e.Message, phraseNoReferrals):
			return MsgNoReferrals
		}
	}
	if e.Message == "" {
		return MsgDefault
	}
	return e.Message
}
