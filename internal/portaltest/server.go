// Package portaltest levanta una API del portal en memoria (chi sobre
// httptest) para los tests de portal, dashboard y la CLI.
package portaltest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dropDatabas3/partnerportal/internal/codec"
)

// Account es un usuario registrado en la API fake.
type Account struct {
	UUID             string
	FullName         string
	Email            string
	Password         string
	Role             string
	CompensationLink string
	Token            string
}

// Server es la API fake. Los campos exportados se pueden modificar entre
// requests tomando el lock con Update.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	accounts  []*Account
	leads     []map[string]any
	deals     []map[string]any
	tutorials []map[string]any
	faults    map[string][]int
	hits      map[string]int
	queries   map[string][]string
	bodies    map[string][]map[string]any
	nextID    int

	// Hook opcional antes de atender cada request (bloquear, contar, etc).
	Before func(r *http.Request)
}

// New arranca el server; se cierra con t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		faults:  map[string][]int{},
		hits:    map[string]int{},
		queries: map[string][]string{},
		bodies:  map[string][]map[string]any{},
		nextID:  1000,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// URL base con el prefijo /api/v1 como la API real.
func (s *Server) BaseURL() string { return s.URL + "/api/v1" }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.record, s.injectFaults)

		r.Post("/users/login", s.login)
		r.Post("/users/register", s.register)
		r.Post("/leads/referral/by-uuid", s.publicReferral)
		r.Get("/tutorials", s.listTutorials)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/users/me", s.me)
			r.Get("/leads/by-lead-source", s.listLeads)
			r.Get("/leads/deals/by-referrer", s.listDeals)
			r.Post("/leads/referral", s.createReferral)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/stats", s.adminStats)
				r.Get("/users", s.listUsers)
				r.Put("/users/{uuid}/compensation-link", s.setCompensationLink)
				r.Get("/tutorials", s.listTutorials)
				r.Post("/tutorials", s.createTutorial)
				r.Put("/tutorials/{id}", s.updateTutorial)
				r.Delete("/tutorials/{id}", s.deleteTutorial)
			})
		})
	})
	return r
}

func routeKey(method, path string) string { return method + " " + path }

// ---- Setup ----

// AddAccount registra un usuario con un token ya emitido.
func (s *Server) AddAccount(a Account) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.Role == "" {
		a.Role = "user"
	}
	if a.Token == "" {
		a.Token = "tok-" + uuid.NewString()
	}
	acc := a
	s.accounts = append(s.accounts, &acc)
	return &acc
}

// SetLeads reemplaza las filas crudas de /leads/by-lead-source.
func (s *Server) SetLeads(rows ...map[string]any) {
	s.mu.Lock()
	s.leads = rows
	s.mu.Unlock()
}

// SetDeals reemplaza las filas crudas de /leads/deals/by-referrer.
func (s *Server) SetDeals(rows ...map[string]any) {
	s.mu.Lock()
	s.deals = rows
	s.mu.Unlock()
}

// Fail encola statuses que se devuelven (en orden) antes de atender normalmente.
func (s *Server) Fail(method, path string, statuses ...int) {
	s.mu.Lock()
	k := routeKey(method, "/api/v1"+path)
	s.faults[k] = append(s.faults[k], statuses...)
	s.mu.Unlock()
}

// Hits cuenta requests a method+path (path sin /api/v1).
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[routeKey(method, "/api/v1"+path)]
}

// Queries devuelve los query strings recibidos en method+path.
func (s *Server) Queries(method, path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries[routeKey(method, "/api/v1"+path)]...)
}

// Bodies devuelve los bodies JSON recibidos en method+path.
func (s *Server) Bodies(method, path string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[routeKey(method, "/api/v1"+path)]...)
}

// LeadRow arma una fila con el formato del CRM.
func LeadRow(id, fullName, status string, created time.Time) map[string]any {
	row := map[string]any{
		"id":           id,
		"Full_Name":    fullName,
		"Company":      "Acme " + id,
		"Created_Time": created.Format(time.RFC3339),
		"Email":        strings.ToLower(strings.ReplaceAll(fullName, " ", ".")) + "@example.com",
		"Phone":        nil,
	}
	if status != "" {
		row["Lead_Status"] = status
	} else {
		row["Lead_Status"] = nil
	}
	return row
}

// DealRow arma un deal; amount puede ser número o string.
func DealRow(id, name string, amount any, stage string, created time.Time) map[string]any {
	return map[string]any{
		"id":           id,
		"Deal_Name":    name,
		"Amount":       amount,
		"Stage":        stage,
		"Lead_Source":  "Partner Referral",
		"Created_Time": created.Format(time.RFC3339),
	}
}

// ---- Middlewares ----

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := routeKey(r.Method, r.URL.Path)
		var body map[string]any
		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
			raw, _ := io.ReadAll(r.Body)
			_ = codec.Unmarshal(raw, &body)
			r.Body = io.NopCloser(bytes.NewReader(raw))
		}
		s.mu.Lock()
		s.hits[k]++
		s.queries[k] = append(s.queries[k], r.URL.RawQuery)
		if body != nil {
			s.bodies[k] = append(s.bodies[k], body)
		}
		before := s.Before
		s.mu.Unlock()

		if before != nil {
			before(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := routeKey(r.Method, r.URL.Path)
		s.mu.Lock()
		q := s.faults[k]
		status := 0
		if len(q) > 0 {
			status, s.faults[k] = q[0], q[1:]
		}
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"status": "error", "message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.accountFor(r) == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "error", "message": "Invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := s.accountFor(r); a == nil || a.Role != "admin" {
			writeJSON(w, http.StatusForbidden, map[string]any{"status": "error", "message": "Admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) accountFor(r *http.Request) *Account {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if tok == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Token == tok {
			return a
		}
	}
	return nil
}

// ---- helpers ----

func decode(r *http.Request) map[string]any {
	var m map[string]any
	_ = codec.NewDecoder(r.Body).Decode(&m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = codec.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": message, "data": data})
}

func str(m map[string]any, k string) string {
	v, _ := m[k].(string)
	return v
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}
