package portaltest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

func accountJSON(a *Account) map[string]any {
	return map[string]any{
		"uuid":              a.UUID,
		"full_name":         a.FullName,
		"email":             a.Email,
		"role":              a.Role,
		"compensation_link": a.CompensationLink,
		"created_at":        "2024-01-01T00:00:00Z",
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	in := decode(r)
	s.mu.Lock()
	var found *Account
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, str(in, "email")) && a.Password == str(in, "password") {
			found = a
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "error", "message": "Invalid email or password"})
		return
	}
	ok(w, "Login successful", map[string]any{"token": found.Token, "user": accountJSON(found)})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	in := decode(r)
	s.mu.Lock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, str(in, "email")) {
			s.mu.Unlock()
			writeJSON(w, http.StatusConflict, map[string]any{"status": "error", "message": "Email already registered"})
			return
		}
	}
	s.mu.Unlock()
	a := s.AddAccount(Account{FullName: str(in, "full_name"), Email: str(in, "email"), Password: str(in, "password")})
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "success", "message": "User registered",
		"data": map[string]any{"token": a.Token, "user": accountJSON(a)},
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	ok(w, "", map[string]any{"user": accountJSON(s.accountFor(r))})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rows := append([]map[string]any(nil), s.leads...)
	s.mu.Unlock()

	from, to := r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date")
	if from != "" && to != "" {
		rows = filterRows(rows, from, to)
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "You didn't refer any lead"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Leads fetched", "leads": rows})
}

func filterRows(rows []map[string]any, from, to string) []map[string]any {
	start, err1 := time.Parse("2006-01-02", from)
	end, err2 := time.Parse("2006-01-02", to)
	if err1 != nil || err2 != nil {
		return rows
	}
	end = end.Add(24*time.Hour - time.Nanosecond)
	out := rows[:0:0]
	for _, row := range rows {
		t, err := time.Parse(time.RFC3339, str(row, "Created_Time"))
		if err != nil || (!t.Before(start) && !t.After(end)) {
			out = append(out, row)
		}
	}
	return out
}

func (s *Server) listDeals(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rows := append([]map[string]any(nil), s.deals...)
	s.mu.Unlock()
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "No deals found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": rows})
}

// crm arma la respuesta de dos partes del alta de lead.
func (s *Server) crm(in map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(str(in, "Email"))
	for _, row := range s.leads {
		if strings.ToLower(str(row, "Email")) == email {
			return map[string]any{
				"leadData": map[string]any{"data": []any{map[string]any{
					"code": "DUPLICATE_DATA", "status": "error",
					"message": "duplicate data",
					"details": map[string]any{"api_name": "Email", "id": str(row, "id")},
				}}},
			}
		}
	}

	leadID := s.newID()
	s.leads = append(s.leads, map[string]any{
		"id":           leadID,
		"Full_Name":    strings.TrimSpace(str(in, "First_Name") + " " + str(in, "Last_Name")),
		"Company":      str(in, "Company"),
		"Lead_Status":  "New",
		"Created_Time": time.Now().UTC().Format(time.RFC3339),
		"Email":        str(in, "Email"),
	})
	return map[string]any{
		"leadData": map[string]any{"data": []any{map[string]any{
			"code": "SUCCESS", "status": "success", "message": "record added",
			"details": map[string]any{"id": leadID},
		}}},
		"noteData": map[string]any{"data": []any{map[string]any{
			"code": "SUCCESS", "status": "success", "message": "record added",
			"details": map[string]any{"id": s.newID()},
		}}},
	}
}

func (s *Server) createReferral(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.crm(decode(r)))
}

func (s *Server) publicReferral(w http.ResponseWriter, r *http.Request) {
	in := decode(r)
	id := str(in, "uuid")
	s.mu.Lock()
	known := false
	for _, a := range s.accounts {
		if a.UUID == id {
			known = true
		}
	}
	s.mu.Unlock()
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "Referral link not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.crm(in))
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users, tuts := len(s.accounts), len(s.tutorials)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "",
		"data": map[string]any{
			"totalUsers":     users,
			"activeUsers":    users,
			"totalTutorials": tuts,
			"recentActivity": []any{map[string]any{"type": "login"}},
		},
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	all := append([]*Account(nil), s.accounts...)
	s.mu.Unlock()

	users := []any{}
	for i := (page - 1) * limit; i < len(all) && i < page*limit; i++ {
		users = append(users, accountJSON(all[i]))
	}
	ok(w, "", map[string]any{
		"users": users,
		"pagination": map[string]any{
			"total":       len(all),
			"totalPages":  (len(all) + limit - 1) / limit,
			"currentPage": page,
			"limit":       limit,
		},
	})
}

func (s *Server) setCompensationLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	link := str(decode(r), "compensation_link")
	s.mu.Lock()
	var found *Account
	for _, a := range s.accounts {
		if a.UUID == id {
			a.CompensationLink = link
			found = a
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "User not found"})
		return
	}
	ok(w, "Compensation link updated", map[string]any{"user": accountJSON(found)})
}

func (s *Server) listTutorials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tuts := append([]map[string]any{}, s.tutorials...)
	s.mu.Unlock()
	ok(w, "", map[string]any{"tutorials": tuts})
}

func (s *Server) createTutorial(w http.ResponseWriter, r *http.Request) {
	in := decode(r)
	s.mu.Lock()
	// ids numéricos como la API real
	id, _ := strconv.Atoi(s.newID())
	t := map[string]any{"id": id, "title": str(in, "title"), "description": str(in, "description"), "video_url": str(in, "video_url")}
	s.tutorials = append(s.tutorials, t)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "message": "created", "data": map[string]any{"tutorial": t}})
}

func (s *Server) findTutorial(id string) int {
	for i, t := range s.tutorials {
		if strconv.Itoa(t["id"].(int)) == id {
			return i
		}
	}
	return -1
}

func (s *Server) updateTutorial(w http.ResponseWriter, r *http.Request) {
	in := decode(r)
	s.mu.Lock()
	i := s.findTutorial(chi.URLParam(r, "id"))
	if i < 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "Tutorial not found"})
		return
	}
	t := map[string]any{}
	for k, v := range s.tutorials[i] {
		t[k] = v
	}
	for _, k := range []string{"title", "description", "video_url"} {
		if v := str(in, k); v != "" {
			t[k] = v
		}
	}
	s.tutorials[i] = t
	s.mu.Unlock()
	ok(w, "updated", map[string]any{"tutorial": t})
}

func (s *Server) deleteTutorial(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := s.findTutorial(chi.URLParam(r, "id"))
	if i >= 0 {
		s.tutorials = append(s.tutorials[:i], s.tutorials[i+1:]...)
	}
	s.mu.Unlock()
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "Tutorial not found"})
		return
	}
	ok(w, "deleted", nil)
}
