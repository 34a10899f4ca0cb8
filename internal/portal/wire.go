package portal

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dropDatabas3/partnerportal/internal/codec"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

// flexString acepta string o número JSON (los ids del CRM llegan de las dos formas).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := codec.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// flexAmount acepta número o string; cualquier cosa no numérica es 0.
type flexAmount float64

func (f *flexAmount) UnmarshalJSON(b []byte) error {
	*f = flexAmount(parseAmount(gjson.ParseBytes(b)))
	return nil
}

func parseAmount(r gjson.Result) float64 {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		p, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0
		}
		v = p
	default:
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func strOr(p *string, def string) string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return def
	}
	return *p
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("fecha inválida %q", s)
}

const apiDateLayout = "2006-01-02"

// envelope es la respuesta {status, message, data} de los endpoints propios.
type envelope struct {
	Status  string           `json:"status"`
	Success *bool            `json:"success"`
	Message string           `json:"message"`
	Data    codec.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	if e.Success != nil {
		return *e.Success
	}
	return strings.EqualFold(e.Status, "success")
}

// decodeEnvelope valida el envelope y deserializa data en out (si no es nil).
func decodeEnvelope(resp *transport.Response, out any, fallback string) (string, error) {
	var env envelope
	if err := resp.Decode(&env); err != nil {
		return "", err
	}
	if !env.ok() {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return env.Message, errors.New(msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := codec.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("portal: decode data: %w", err)
		}
	}
	return env.Message, nil
}

// crmResult es el primer elemento de {data:[{code,status,message,details}]}.
type crmResult struct {
	Code    string
	Message string
	ID      string
}

func crmFirst(body []byte, path string) crmResult {
	r := gjson.GetBytes(body, path+".data.0")
	if !r.Exists() {
		return crmResult{}
	}
	return crmResult{
		Code:    r.Get("code").String(),
		Message: r.Get("message").String(),
		ID:      r.Get("details.id").String(),
	}
}
