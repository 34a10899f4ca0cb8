package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/codec"
	"github.com/dropDatabas3/partnerportal/internal/dashboard"
	"github.com/dropDatabas3/partnerportal/internal/portal"
	"github.com/dropDatabas3/partnerportal/internal/stats"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

const dateLayout = "2006-01-02"

// emit escribe v como JSON indentado o, en modo texto, llama a text.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.outFormat == "json" {
		b, err := codec.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, string(b))
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// userError traduce err al mensaje que ve el usuario. Las cancelaciones
// salen como "cancelado" para que el exit code sea != 0 igual.
func userError(err error) error {
	if err == nil {
		return nil
	}
	var ve *validation.Error
	if errors.As(err, &ve) {
		return ve
	}
	if errors.Is(err, portal.ErrInvalidLink) {
		return err
	}
	if apierr.IsCancelled(err) {
		return errors.New("cancelado")
	}
	return errors.New(apierr.UserMessage(err))
}

func printReferrals(w io.Writer, rs []portal.Referral) {
	if len(rs) == 0 {
		fmt.Fprintln(w, apierr.MsgNoReferrals)
		return
	}
	fmt.Fprintln(w, "ID\tNOMBRE\tEMPRESA\tESTADO\tCREADO")
	for _, r := range rs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.FullName, r.Company, orDash(r.LeadStatus), r.CreatedAt.Format(dateLayout))
	}
}

func printDeals(w io.Writer, ds []portal.Deal) {
	if len(ds) == 0 {
		fmt.Fprintln(w, apierr.MsgNoDeals)
		return
	}
	fmt.Fprintln(w, "ID\tDEAL\tMONTO\tETAPA\tCREADO")
	for _, d := range ds {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n", d.ID, d.Name, d.Amount, d.Stage, fmtDate(d.CreatedAt))
	}
}

func printStats(w io.Writer, s stats.Snapshot) {
	fmt.Fprintf(w, "Referidos (último mes)\t%d\t%+.1f%%\n", s.TotalReferrals, s.Growth.ReferralsPercent)
	fmt.Fprintf(w, "Conversión\t%.1f%%\t%+.1f pp\n", s.ConversionRatePercent, s.Growth.ConversionPercentPoints)
	fmt.Fprintf(w, "Leads activos\t%d\t%+d\n", s.ActiveLeads, s.Growth.ActiveLeadsDelta)
}

func printDashboard(w io.Writer, s dashboard.State) {
	fmt.Fprintf(w, "Período: %s\n\n", s.Period)
	printStats(w, s.Stats)
	fmt.Fprintln(w)
	printReferrals(w, s.Referrals)
	fmt.Fprintln(w)
	printDeals(w, s.Deals)
	if s.Error != "" {
		fmt.Fprintf(w, "\n! %s\n", s.Error)
	}
}

func printTutorials(w io.Writer, ts []portal.Tutorial) {
	fmt.Fprintln(w, "ID\tTÍTULO\tVIDEO")
	for _, t := range ts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.VideoURL)
	}
}

func printUsers(w io.Writer, p portal.Page[portal.User]) {
	fmt.Fprintln(w, "UUID\tNOMBRE\tEMAIL\tROL\tCOMPENSACIÓN")
	for _, u := range p.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.UUID, u.FullName, u.Email, u.Role, orDash(u.CompensationLink))
	}
	fmt.Fprintf(w, "página %d/%d (%d usuarios)\n", p.Pagination.CurrentPage, p.Pagination.TotalPages, p.Pagination.Total)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}
