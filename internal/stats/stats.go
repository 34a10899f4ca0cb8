// Package stats calcula el resumen del dashboard (totales, tasa de conversión
// y crecimiento mes contra mes) a partir de la lista de referidos.
package stats

import (
	"math"
	"time"
)

// Estados del pipeline del CRM que importan para el cálculo.
const (
	StatusConvert           = "Convert"
	StatusSignedApplication = "Signed Application"
	StatusLost              = "Lost"
)

// Lead es lo mínimo que necesita el agregador. Status "" = sin estado.
type Lead struct {
	Status    string
	CreatedAt time.Time
}

// Growth compara la ventana actual con la anterior.
type Growth struct {
	ReferralsPercent        float64 `json:"referrals_percent"`
	ConversionPercentPoints float64 `json:"conversion_percent_points"`
	ActiveLeadsDelta        int     `json:"active_leads_delta"`
}

// Snapshot se recalcula entero en cada fetch.
type Snapshot struct {
	TotalReferrals        int     `json:"total_referrals"`
	ConversionRatePercent float64 `json:"conversion_rate_percent"`
	ActiveLeads           int     `json:"active_leads"`
	Growth                Growth  `json:"growth"`
}

// Zero es el snapshot que se devuelve cuando no se pudo obtener la lista.
func Zero() Snapshot { return Snapshot{} }

func IsConverted(status string) bool {
	return status == StatusConvert || status == StatusSignedApplication
}

// IsActive: todo lo que no está convertido ni perdido, incluido sin estado.
func IsActive(status string) bool {
	return status != StatusConvert && status != StatusLost
}

type window struct {
	total, converted, active int
}

func (w window) rate() float64 {
	if w.total == 0 {
		return 0
	}
	return 100 * float64(w.converted) / float64(w.total)
}

// Aggregate es puro: sin red ni reloj propio.
//
// Ventanas: actual = [now-1 mes, now], anterior = [now-2 meses, now-1 mes).
func Aggregate(leads []Lead, now time.Time) Snapshot {
	lastMonth := now.AddDate(0, -1, 0)
	prevMonth := now.AddDate(0, -2, 0)

	var cur, prev window
	for _, l := range leads {
		var w *window
		switch {
		case !l.CreatedAt.Before(lastMonth) && !l.CreatedAt.After(now):
			w = &cur
		case !l.CreatedAt.Before(prevMonth) && l.CreatedAt.Before(lastMonth):
			w = &prev
		default:
			continue
		}
		w.total++
		if IsConverted(l.Status) {
			w.converted++
		}
		if IsActive(l.Status) {
			w.active++
		}
	}

	curRate, prevRate := cur.rate(), prev.rate()

	var refGrowth float64
	switch {
	case prev.total > 0:
		refGrowth = 100 * float64(cur.total-prev.total) / float64(prev.total)
	case cur.total > 0:
		refGrowth = 100
	}

	convGrowth := curRate
	if prevRate > 0 {
		convGrowth = curRate - prevRate
	}

	return Snapshot{
		TotalReferrals:        cur.total,
		ConversionRatePercent: Round1(curRate),
		ActiveLeads:           cur.active,
		Growth: Growth{
			ReferralsPercent:        Round1(refGrowth),
			ConversionPercentPoints: Round1(convGrowth),
			ActiveLeadsDelta:        cur.active - prev.active,
		},
	}
}

// Round1 redondea a un decimal, mitades hacia +inf.
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
