// Command portal es el cliente de línea de comandos del portal de partners:
// sesión, dashboard, referidos, deals y administración.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/partnerportal/internal/session"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// viewFor decide qué vista "monta" cada comando.
func viewFor(cmd *cobra.Command) string {
	switch cmd.Name() {
	case "login":
		return session.ViewLogin
	case "register":
		return session.ViewRegister
	default:
		return session.ViewDashboard
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		configPath: envOr("PORTAL_CONFIG", "portal.yaml"),
		outFormat:  envOr("PORTAL_OUT", "text"),
		stdout:     stdout,
		stderr:     stderr,
	}

	root := &cobra.Command{
		Use:           "portal",
		Short:         "CLI del portal de partners (referidos, deals, tutoriales)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.outFormat != "json" && a.outFormat != "text" {
				return fmt.Errorf("--out debe ser json o text")
			}
			return a.setup(cmd.Context(), viewFor(cmd))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", a.configPath, "Archivo YAML de config (env PORTAL_CONFIG)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "URL base de la API, pisa la config (env PORTAL_API_URL)")
	root.PersistentFlags().StringVar(&a.outFormat, "out", a.outFormat, "Formato de salida: json|text")

	root.AddCommand(
		loginCmd(a), registerCmd(a), logoutCmd(a), whoamiCmd(a),
		dashboardCmd(a), referralsCmd(a), dealsCmd(a), statsCmd(a),
		submitReferralCmd(a), publicReferralCmd(a),
		tutorialsCmd(a), usersCmd(a), adminCmd(a),
		sessionKeyCmd(a),
	)
	return root
}
