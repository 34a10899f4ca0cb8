package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/partnerportal/internal/dashboard"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/portal"
	"github.com/dropDatabas3/partnerportal/internal/security/secretbox"
	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/util"
)

// run adapta una operación a RunE: contexto del comando, teardown siempre
// y errores traducidos al mensaje de usuario.
func (a *app) run(fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		defer a.teardown()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if a.log != nil {
			ctx = logger.ToContext(ctx, a.log.With(logger.View(a.view)))
		}
		return userError(fn(ctx))
	}
}

func required(flags map[string]string) error {
	for name, v := range flags {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("--%s es requerido", name)
		}
	}
	return nil
}

// ---- sesión ----

// errNotAdmin corta antes de ir a la API; el server respondería 403 igual.
var errNotAdmin = errors.New("este comando requiere una cuenta admin")

// requireAdmin mira el rol de la credencial guardada.
func (a *app) requireAdmin(ctx context.Context) error {
	cred, err := a.svc.Current(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoCredential) {
			return fmt.Errorf("sin sesión: ejecutá `portal login`")
		}
		return err
	}
	if !cred.User.IsAdmin() {
		return errNotAdmin
	}
	return nil
}

func loginCmd(a *app) *cobra.Command {
	var in portal.LoginInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Iniciar sesión y guardar la credencial",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		if in.Password == "" {
			in.Password = envOr("PORTAL_PASSWORD", "")
		}
		u, err := a.svc.Login(ctx, in)
		if err != nil {
			return err
		}
		return a.emit(u, func(w io.Writer) {
			fmt.Fprintf(w, "sesión iniciada como %s (%s)\n", u.FullName, util.MaskEmail(u.Email))
		})
	})
	cmd.Flags().StringVar(&in.Email, "email", "", "Email de la cuenta")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password (o env PORTAL_PASSWORD)")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var in portal.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Crear una cuenta y dejar la sesión iniciada",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		if in.Password == "" {
			in.Password = envOr("PORTAL_PASSWORD", "")
		}
		u, err := a.svc.Register(ctx, in)
		if err != nil {
			return err
		}
		return a.emit(u, func(w io.Writer) {
			fmt.Fprintf(w, "cuenta creada: %s (%s)\n", u.FullName, util.MaskEmail(u.Email))
		})
	})
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "Nombre completo")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password, mínimo 8 caracteres (o env PORTAL_PASSWORD)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Borrar la credencial guardada",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		if err := a.svc.Logout(ctx); err != nil {
			return err
		}
		return a.emit(map[string]bool{"ok": true}, func(w io.Writer) { fmt.Fprintln(w, "sesión cerrada") })
	})
	return cmd
}

type whoami struct {
	User      portal.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Expired   bool        `json:"expired"`
}

func whoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Mostrar el usuario de la sesión guardada",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		cred, err := a.svc.Current(ctx)
		if err != nil {
			if errors.Is(err, session.ErrNoCredential) {
				return fmt.Errorf("sin sesión: ejecutá `portal login`")
			}
			return err
		}
		if refresh {
			u, err := a.svc.RefreshProfile(ctx)
			if err != nil {
				return err
			}
			cred.User = u
		}
		out := whoami{User: cred.User, Token: util.MaskToken(cred.Token), Expired: cred.Expired(time.Now())}
		if exp, ok := session.ExpiresAt(cred.Token); ok {
			out.ExpiresAt = &exp
		}
		return a.emit(out, func(w io.Writer) {
			fmt.Fprintf(w, "usuario\t%s\n", cred.User.FullName)
			fmt.Fprintf(w, "email\t%s\n", util.MaskEmail(cred.User.Email))
			fmt.Fprintf(w, "rol\t%s\n", orDash(cred.User.Role))
			fmt.Fprintf(w, "token\t%s\n", out.Token)
			if out.ExpiresAt != nil {
				fmt.Fprintf(w, "expira\t%s\n", out.ExpiresAt.Format(time.RFC3339))
			}
			if out.Expired {
				fmt.Fprintln(w, "estado\tvencida")
			}
		})
	})
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Actualizar el perfil con /users/me")
	return cmd
}

// ---- vistas ----

func dashboardCmd(a *app) *cobra.Command {
	var period string
	var force bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Referidos del período, deals y estadísticas",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		p, err := portal.ParsePeriod(period)
		if err != nil {
			return err
		}
		d := dashboard.New(dashboard.Options{
			Source:        a.svc,
			Cache:         a.cache,
			CacheDuration: a.cfg.CacheDuration(),
			Period:        p,
			Logger:        a.log,
		})
		defer d.Close()

		var s dashboard.State
		if force {
			s = d.Refetch(ctx)
		} else {
			s = d.Load(ctx)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return a.emit(s, func(w io.Writer) { printDashboard(w, s) })
	})
	cmd.Flags().StringVar(&period, "period", "all", "Período: all|ytd|mtd|last30|last90")
	cmd.Flags().BoolVar(&force, "refetch", false, "Ignorar el cache")
	return cmd
}

func referralsCmd(a *app) *cobra.Command {
	var period, from, to string
	cmd := &cobra.Command{
		Use:   "referrals",
		Short: "Listar referidos",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		p, err := portal.ParsePeriod(period)
		if err != nil {
			return err
		}
		f := portal.Filter{Period: p}
		if from != "" || to != "" {
			if f.From, err = time.Parse(dateLayout, from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if f.To, err = time.Parse(dateLayout, to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		rs, err := a.svc.FetchReferrals(ctx, f)
		if err != nil {
			return err
		}
		if f.From.IsZero() {
			// el API puede ignorar el rango; se recorta igual del lado del cliente
			rs = portal.FilterByPeriod(rs, p, time.Now())
		}
		return a.emit(rs, func(w io.Writer) { printReferrals(w, rs) })
	})
	cmd.Flags().StringVar(&period, "period", "all", "Período: all|ytd|mtd|last30|last90")
	cmd.Flags().StringVar(&from, "from", "", "Desde (YYYY-MM-DD), requiere --to")
	cmd.Flags().StringVar(&to, "to", "", "Hasta (YYYY-MM-DD), requiere --from")
	return cmd
}

func dealsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Listar deals generados por tus referidos",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		ds, err := a.svc.FetchDeals(ctx)
		if err != nil {
			return err
		}
		return a.emit(ds, func(w io.Writer) { printDeals(w, ds) })
	})
	return cmd
}

func statsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Estadísticas del último mes contra el anterior",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		s, err := a.svc.FetchStats(ctx)
		if err != nil {
			return err
		}
		return a.emit(s, func(w io.Writer) { printStats(w, s) })
	})
	return cmd
}

// ---- altas ----

func submitReferralCmd(a *app) *cobra.Command {
	var in portal.ReferralSubmission
	cmd := &cobra.Command{
		Use:   "submit-referral",
		Short: "Enviar un referido nuevo",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		if err := a.svc.SubmitReferral(ctx, in); err != nil {
			return err
		}
		return a.emit(map[string]bool{"ok": true}, func(w io.Writer) { fmt.Fprintln(w, "referido enviado") })
	})
	f := cmd.Flags()
	f.StringVar(&in.FirstName, "first-name", "", "Nombre")
	f.StringVar(&in.LastName, "last-name", "", "Apellido (requerido)")
	f.StringVar(&in.Email, "email", "", "Email (requerido)")
	f.StringVar(&in.Company, "company", "", "Empresa")
	f.StringVar(&in.BusinessType, "business-type", "", "Rubro")
	f.StringVar(&in.Title, "title", "", "Cargo")
	f.StringVar(&in.Description, "description", "", "Notas para el equipo comercial")
	return cmd
}

func publicReferralCmd(a *app) *cobra.Command {
	var (
		link string
		in   portal.PublicReferralSubmission
	)
	cmd := &cobra.Command{
		Use:   "public-referral",
		Short: "Enviar un referido por link público (sin sesión)",
	}
	cmd.RunE = a.run(func(ctx context.Context) error {
		if err := required(map[string]string{"uuid": link}); err != nil {
			return err
		}
		if err := a.svc.SubmitPublicReferral(ctx, link, in); err != nil {
			return err
		}
		return a.emit(map[string]bool{"ok": true}, func(w io.Writer) { fmt.Fprintln(w, "referido enviado") })
	})
	f := cmd.Flags()
	f.StringVar(&link, "uuid", "", "UUID del link de referido")
	f.StringVar(&in.FirstName, "first-name", "", "Nombre (requerido)")
	f.StringVar(&in.LastName, "last-name", "", "Apellido (requerido)")
	f.StringVar(&in.Email, "email", "", "Email (requerido)")
	f.StringVar(&in.Company, "company", "", "Empresa")
	f.StringVar(&in.BusinessType, "business-type", "", "Rubro")
	f.StringVar(&in.PhoneNumber, "phone", "", "Teléfono, sólo dígitos")
	f.StringVar(&in.Description, "description", "", "Notas")
	return cmd
}

// ---- tutoriales ----

func tutorialsCmd(a *app) *cobra.Command {
	group := &cobra.Command{Use: "tutorials", Short: "Tutoriales (listar; alta/baja/modificación requiere admin)"}

	list := &cobra.Command{Use: "list", Short: "Listar todos (admin)"}
	list.RunE = a.run(func(ctx context.Context) error {
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		ts, err := a.svc.ListTutorials(ctx)
		if err != nil {
			return err
		}
		return a.emit(ts, func(w io.Writer) { printTutorials(w, ts) })
	})

	public := &cobra.Command{Use: "public", Short: "Listar los tutoriales visibles"}
	public.RunE = a.run(func(ctx context.Context) error {
		ts, err := a.svc.PublicTutorials(ctx)
		if err != nil {
			return err
		}
		return a.emit(ts, func(w io.Writer) { printTutorials(w, ts) })
	})

	var (
		id string
		in portal.TutorialInput
	)
	bind := func(c *cobra.Command) {
		c.Flags().StringVar(&in.Title, "title", "", "Título")
		c.Flags().StringVar(&in.Description, "description", "", "Descripción")
		c.Flags().StringVar(&in.VideoURL, "video-url", "", "URL del video")
	}

	create := &cobra.Command{Use: "create", Short: "Crear un tutorial"}
	create.RunE = a.run(func(ctx context.Context) error {
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		t, err := a.svc.CreateTutorial(ctx, in)
		if err != nil {
			return err
		}
		return a.emit(t, func(w io.Writer) { printTutorials(w, []portal.Tutorial{t}) })
	})
	bind(create)

	update := &cobra.Command{Use: "update", Short: "Modificar un tutorial"}
	update.RunE = a.run(func(ctx context.Context) error {
		if err := required(map[string]string{"id": id}); err != nil {
			return err
		}
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		t, err := a.svc.UpdateTutorial(ctx, id, in)
		if err != nil {
			return err
		}
		return a.emit(t, func(w io.Writer) { printTutorials(w, []portal.Tutorial{t}) })
	})
	bind(update)
	update.Flags().StringVar(&id, "id", "", "ID del tutorial")

	del := &cobra.Command{Use: "delete", Short: "Borrar un tutorial"}
	del.RunE = a.run(func(ctx context.Context) error {
		if err := required(map[string]string{"id": id}); err != nil {
			return err
		}
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		if err := a.svc.DeleteTutorial(ctx, id); err != nil {
			return err
		}
		return a.emit(map[string]bool{"ok": true}, func(w io.Writer) { fmt.Fprintln(w, "tutorial borrado") })
	})
	del.Flags().StringVar(&id, "id", "", "ID del tutorial")

	group.AddCommand(list, public, create, update, del)
	return group
}

// ---- admin ----

func usersCmd(a *app) *cobra.Command {
	group := &cobra.Command{Use: "users", Short: "Usuarios del portal (admin)"}

	var page, limit int
	list := &cobra.Command{Use: "list", Short: "Listar usuarios paginados"}
	list.RunE = a.run(func(ctx context.Context) error {
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		p, err := a.svc.ListUsers(ctx, page, limit)
		if err != nil {
			return err
		}
		return a.emit(p, func(w io.Writer) { printUsers(w, p) })
	})
	list.Flags().IntVar(&page, "page", 1, "Página")
	list.Flags().IntVar(&limit, "limit", 10, "Usuarios por página")

	var userUUID, link string
	setLink := &cobra.Command{Use: "set-compensation-link", Short: "Asignar el link de compensación de un usuario"}
	setLink.RunE = a.run(func(ctx context.Context) error {
		if err := required(map[string]string{"uuid": userUUID, "link": link}); err != nil {
			return err
		}
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		u, err := a.svc.SetCompensationLink(ctx, userUUID, link)
		if err != nil {
			return err
		}
		return a.emit(u, func(w io.Writer) {
			fmt.Fprintf(w, "%s\t%s\n", u.UUID, u.CompensationLink)
		})
	})
	setLink.Flags().StringVar(&userUUID, "uuid", "", "UUID del usuario")
	setLink.Flags().StringVar(&link, "link", "", "URL de compensación")

	group.AddCommand(list, setLink)
	return group
}

func adminCmd(a *app) *cobra.Command {
	group := &cobra.Command{Use: "admin", Short: "Panel de administración"}
	st := &cobra.Command{Use: "stats", Short: "Resumen del panel"}
	st.RunE = a.run(func(ctx context.Context) error {
		if err := a.requireAdmin(ctx); err != nil {
			return err
		}
		s, err := a.svc.FetchAdminStats(ctx)
		if err != nil {
			return err
		}
		return a.emit(s, func(w io.Writer) {
			fmt.Fprintf(w, "usuarios\t%d\n", s.TotalUsers)
			fmt.Fprintf(w, "activos\t%d\n", s.ActiveUsers)
			fmt.Fprintf(w, "tutoriales\t%d\n", s.TotalTutorials)
			fmt.Fprintf(w, "actividad reciente\t%d\n", len(s.RecentActivity))
		})
	})
	group.AddCommand(st)
	return group
}

// sessionKeyCmd no necesita config ni API: sólo imprime una clave nueva.
func sessionKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:               "session-key",
		Short:             "Generar una clave para cifrar el token guardado (session.encryption_key)",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := secretbox.NewKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, k)
			return err
		},
	}
}
