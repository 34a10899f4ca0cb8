package portal

import (
	"fmt"
	"strings"
	"time"
)

// Period es el filtro relativo de fechas de las vistas de referidos.
type Period string

const (
	PeriodAll    Period = "all"
	PeriodYTD    Period = "ytd"
	PeriodMTD    Period = "mtd"
	PeriodLast30 Period = "last30"
	PeriodLast90 Period = "last90"
)

// Periods en el orden en que se muestran.
var Periods = []Period{PeriodAll, PeriodYTD, PeriodMTD, PeriodLast30, PeriodLast90}

// ParsePeriod acepta el vocabulario del portal; "" => all.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PeriodAll, nil
	}
	for _, v := range Periods {
		if p == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("período desconocido %q (all|ytd|mtd|last30|last90)", s)
}

// Range traduce el período a [start, now]. ok=false para all.
// ytd/mtd arrancan a medianoche en la zona de now.
func (p Period) Range(now time.Time) (start time.Time, ok bool) {
	switch p {
	case PeriodYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), true
	case PeriodMTD:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	case PeriodLast30:
		return now.AddDate(0, 0, -30), true
	case PeriodLast90:
		return now.AddDate(0, 0, -90), true
	default:
		return time.Time{}, false
	}
}

// FilterByPeriod filtra en memoria los referidos creados desde el inicio del período.
func FilterByPeriod(records []Referral, p Period, now time.Time) []Referral {
	start, ok := p.Range(now)
	if !ok {
		return records
	}
	out := make([]Referral, 0, len(records))
	for _, r := range records {
		if !r.CreatedAt.Before(start) {
			out = append(out, r)
		}
	}
	return out
}
