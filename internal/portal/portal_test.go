package portal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/portaltest"
	"github.com/dropDatabas3/partnerportal/internal/remote"
	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/stats"
	"github.com/dropDatabas3/partnerportal/internal/transport"
	"github.com/dropDatabas3/partnerportal/internal/validation"
)

var testNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	srv   *portaltest.Server
	store *session.MemoryStore
	cache *remote.Cache
	user  *portaltest.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := portaltest.New(t)
	store := session.NewMemoryStore()
	tc, err := transport.New(transport.Options{
		BaseURL:     srv.BaseURL(),
		Store:       store,
		Invalidator: session.NewInvalidator(store, session.NewViewTracker(session.ViewDashboard), nil),
		Retry:       transport.RetryPolicy{MaxRetries: 3, Base: time.Millisecond, Max: 2 * time.Millisecond},
		JitterSeed:  1,
	})
	require.NoError(t, err)

	cache := remote.NewCache(remote.CacheOptions{})
	f := &fixture{
		svc:   New(Options{API: tc, Store: store, Cache: cache, Now: func() time.Time { return testNow }}),
		srv:   srv,
		store: store,
		cache: cache,
	}
	f.user = srv.AddAccount(portaltest.Account{FullName: "Ana Paz", Email: "ana@example.com", Password: "secret123"})
	return f
}

func (f *fixture) loginAs(t *testing.T, a *portaltest.Account) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), session.Credential{Token: a.Token, User: User{UUID: a.UUID, Email: a.Email, Role: a.Role}}))
}

func TestFetchReferrals_NormalizesRows(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	full := portaltest.LeadRow("1", "John Smith", "Contacted", testNow.AddDate(0, 0, -2))
	nulls := portaltest.LeadRow("2", "", "", testNow.AddDate(0, 0, -3))
	nulls["Full_Name"] = nil
	nulls["Company"] = nil
	nulls["id"] = 4400012345
	nulls["Contact_Number"] = "5551234567"
	f.srv.SetLeads(full, nulls)

	rs, err := f.svc.FetchReferrals(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, "John Smith", rs[0].FullName)
	assert.Equal(t, "Acme 1", rs[0].Company)
	assert.Equal(t, "Contacted", rs[0].LeadStatus)
	assert.Equal(t, "john.smith@example.com", rs[0].Email)
	assert.True(t, testNow.AddDate(0, 0, -2).Equal(rs[0].CreatedAt))

	assert.Equal(t, "4400012345", rs[1].ID)
	assert.Equal(t, "Unknown", rs[1].FullName)
	assert.Equal(t, "N/A", rs[1].Company)
	assert.Equal(t, "", rs[1].LeadStatus)
	assert.Equal(t, "5551234567", rs[1].AltContact)

	require.Equal(t, []string{""}, f.srv.Queries(http.MethodGet, "/leads/by-lead-source"))
}

func TestFetchReferrals_DropsInvalidRows(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	noID := portaltest.LeadRow("", "No Id", "New", testNow)
	badDate := portaltest.LeadRow("3", "Bad Date", "New", testNow)
	badDate["Created_Time"] = "yesterday"
	f.srv.SetLeads(noID, badDate, portaltest.LeadRow("4", "Good", "New", testNow))

	rs, err := f.svc.FetchReferrals(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, "4", rs[0].ID)
}

func TestFetchReferrals_PeriodBecomesDateRange(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)
	f.srv.SetLeads(
		portaltest.LeadRow("1", "Recent", "New", testNow.AddDate(0, 0, -5)),
		portaltest.LeadRow("2", "Old", "New", testNow.AddDate(0, -3, 0)),
	)

	rs, err := f.svc.FetchReferrals(context.Background(), Filter{Period: PeriodMTD})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, "Recent", rs[0].FullName)

	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.FetchReferrals(context.Background(), Filter{Period: PeriodMTD, From: from, To: to})
	require.NoError(t, err)

	q := f.srv.Queries(http.MethodGet, "/leads/by-lead-source")
	require.Equal(t, "end_date=2024-06-15&start_date=2024-06-01", q[0])
	require.Equal(t, "end_date=2024-02-10&start_date=2024-01-10", q[1])
}

func TestFetchReferrals_NoLeadsIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	rs, err := f.svc.FetchReferrals(context.Background(), Filter{})
	require.NoError(t, err)
	require.NotNil(t, rs)
	require.Empty(t, rs)
}

func TestFetchReferrals_ServerErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)
	f.srv.Fail(http.MethodGet, "/leads/by-lead-source", 500, 500, 500, 500)

	_, err := f.svc.FetchReferrals(context.Background(), Filter{})
	require.Error(t, err)
	require.Equal(t, apierr.KindServer, apierr.KindOf(err))
	require.Equal(t, 4, f.srv.Hits(http.MethodGet, "/leads/by-lead-source"))
}

func TestFetchDeals(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	unnamed := portaltest.DealRow("d3", "", "abc", "", testNow)
	unnamed["Deal_Name"] = nil
	unnamed["Stage"] = nil
	f.srv.SetDeals(
		portaltest.DealRow("d1", "Acme POS", "1500.50", "Closed Won", testNow),
		portaltest.DealRow("d2", "Beta", 200, "Qualification", testNow),
		unnamed,
	)

	ds, err := f.svc.FetchDeals(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 3)
	assert.Equal(t, 1500.50, ds[0].Amount)
	assert.Equal(t, 200.0, ds[1].Amount)
	assert.Equal(t, "Unnamed Deal", ds[2].Name)
	assert.Equal(t, "Unknown", ds[2].Stage)
	assert.Equal(t, 0.0, ds[2].Amount)
	assert.Equal(t, "Partner Referral", ds[0].Source)
}

func TestFetchDeals_NoDealsFoundIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	ds, err := f.svc.FetchDeals(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Deal{}, ds)
}

func TestSubmitReferral_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)
	dup := portaltest.LeadRow("999", "Dup Lead", "New", testNow)
	dup["Email"] = "dup@example.com"
	f.srv.SetLeads(dup)

	err := f.svc.SubmitReferral(context.Background(), ReferralSubmission{
		FirstName: "Dup", LastName: "Lead", Email: "dup@example.com", Company: "Dup Co",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "999")
	require.Equal(t, apierr.KindDuplicate, apierr.KindOf(err))
	require.Equal(t, "A referral with this email already exists (Lead ID: 999)", apierr.UserMessage(err))
}

func TestSubmitReferral_SendsCRMPayload(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	in := ReferralSubmission{
		FirstName: "Mia", LastName: "Lopez", Email: "mia@example.com", Company: "Mia Co",
		BusinessType: "Retail", Title: "Owner", Description: "Needs a terminal",
	}
	require.NoError(t, f.svc.SubmitReferral(context.Background(), in))

	bodies := f.srv.Bodies(http.MethodPost, "/leads/referral")
	require.Len(t, bodies, 1)
	assert.Equal(t, map[string]any{
		"First_Name": "Mia", "Last_Name": "Lopez", "Email": "mia@example.com", "Company": "Mia Co",
		"Business_Type": "Retail", "Title": "Owner", "Description": "Needs a terminal",
	}, bodies[0])
}

func TestSubmitReferral_Validation(t *testing.T) {
	f := newFixture(t)
	err := f.svc.SubmitReferral(context.Background(), ReferralSubmission{FirstName: "x", Email: "bad"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	require.True(t, ve.Has("LastName"))
	require.True(t, ve.Has("Email"))
	require.Equal(t, 0, f.srv.Hits(http.MethodPost, "/leads/referral"))
}

func TestCheckCRM(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"ok", `{"leadData":{"data":[{"code":"SUCCESS","details":{"id":"1"}}]},"noteData":{"data":[{"code":"SUCCESS"}]}}`, ""},
		{"duplicate", `{"leadData":{"data":[{"code":"DUPLICATE_DATA","details":{"id":"999"}}]}}`, "A referral with this email already exists (Lead ID: 999)"},
		{"lead failed with message", `{"leadData":{"data":[{"code":"INVALID_DATA","message":"invalid email"}]}}`, "invalid email"},
		{"lead missing", `{}`, msgLeadFailed},
		{"note failed", `{"leadData":{"data":[{"code":"SUCCESS"}]},"noteData":{"data":[{"code":"ERROR"}]}}`, msgNoteFailed},
		{"note message", `{"leadData":{"data":[{"code":"SUCCESS"}]},"noteData":{"data":[{"code":"ERROR","message":"note too long"}]}}`, "note too long"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkCRM([]byte(tc.body))
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, tc.want)
		})
	}
}

func TestSubmitPublicReferral(t *testing.T) {
	f := newFixture(t)
	in := PublicReferralSubmission{FirstName: "Leo", LastName: "Diaz", Email: "leo@example.com", PhoneNumber: "5551234567"}

	err := f.svc.SubmitPublicReferral(context.Background(), "not-a-uuid", in)
	require.ErrorIs(t, err, ErrInvalidLink)

	bad := in
	bad.PhoneNumber = "0123"
	err = f.svc.SubmitPublicReferral(context.Background(), f.user.UUID, bad)
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	require.True(t, ve.Has("PhoneNumber"))

	require.NoError(t, f.svc.SubmitPublicReferral(context.Background(), f.user.UUID, in))
	bodies := f.srv.Bodies(http.MethodPost, "/leads/referral/by-uuid")
	require.Len(t, bodies, 1)
	assert.Equal(t, f.user.UUID, bodies[0]["uuid"])
	assert.Equal(t, "5551234567", bodies[0]["Title"])

	// mismo email otra vez => duplicado
	err = f.svc.SubmitPublicReferral(context.Background(), f.user.UUID, in)
	require.Equal(t, apierr.KindDuplicate, apierr.KindOf(err))
}

func TestFetchStats(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)
	f.srv.SetLeads(
		portaltest.LeadRow("1", "A", stats.StatusConvert, testNow.AddDate(0, 0, -1)),
		portaltest.LeadRow("2", "B", stats.StatusLost, testNow.AddDate(0, 0, -2)),
		portaltest.LeadRow("3", "C", "New", testNow.AddDate(0, 0, -3)),
		portaltest.LeadRow("4", "D", "Contacted", testNow.AddDate(0, 0, -4)),
		portaltest.LeadRow("5", "E", "New", testNow.AddDate(0, 0, -40)),
		portaltest.LeadRow("6", "F", "New", testNow.AddDate(0, 0, -45)),
	)

	s, err := f.svc.FetchStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalReferrals)
	assert.Equal(t, 25.0, s.ConversionRatePercent)
	assert.Equal(t, 2, s.ActiveLeads)
	assert.Equal(t, 100.0, s.Growth.ReferralsPercent)
	assert.Equal(t, 25.0, s.Growth.ConversionPercentPoints)
}

func TestFetchStats_FailureIsZero(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)
	f.srv.Fail(http.MethodGet, "/leads/by-lead-source", 503, 503, 503, 503)

	s, err := f.svc.FetchStats(context.Background())
	require.NoError(t, err)
	require.Equal(t, stats.Zero(), s)
}

func TestFetchStats_CancelPropagates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.FetchStats(ctx)
	require.True(t, apierr.IsCancelled(err))
}

func TestLoginLogoutAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache.Set("dashboard-deals", []Deal{{ID: "stale"}})

	_, err := f.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "wrong"})
	require.Equal(t, http.StatusUnauthorized, transport.StatusOf(err))
	_, err = f.store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoCredential)

	u, err := f.svc.Login(ctx, LoginInput{Email: " ana@example.com ", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, f.user.UUID, u.UUID)
	require.Equal(t, 0, f.cache.Len())

	cred, err := f.svc.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, f.user.Token, cred.Token)
	require.Equal(t, "Ana Paz", cred.User.FullName)

	me, err := f.svc.RefreshProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", me.Email)

	require.NoError(t, f.svc.Logout(ctx))
	_, err = f.store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoCredential)

	_, err = f.svc.RefreshProfile(ctx)
	require.ErrorIs(t, err, session.ErrNoCredential)
}

func TestRefreshProfile_CancelledCallerDoesNotAbortShared(t *testing.T) {
	f := newFixture(t)
	f.loginAs(t, f.user)

	entered := make(chan struct{})
	release := make(chan struct{})
	firstReqErr := make(chan error, 1)
	var once sync.Once
	f.srv.Before = func(r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/users/me") {
			first := false
			once.Do(func() { first = true; close(entered) })
			<-release
			if first {
				firstReqErr <- r.Context().Err()
			}
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.RefreshProfile(ctxA)
		errA <- err
	}()
	<-entered

	type result struct {
		u   User
		err error
	}
	resB := make(chan result, 1)
	go func() {
		u, err := f.svc.RefreshProfile(context.Background())
		resB <- result{u, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, transport.ErrCancelled)

	close(release)
	// la request que arrancó A no se cortó con su cancelación
	require.NoError(t, <-firstReqErr)
	rb := <-resB
	require.NoError(t, rb.err)
	require.Equal(t, "ana@example.com", rb.u.Email)

	cred, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ana Paz", cred.User.FullName)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{FullName: "Neo", Email: "neo@example.com", Password: "short"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)

	u, err := f.svc.Register(ctx, RegisterInput{FullName: "Neo", Email: "neo@example.com", Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, "Neo", u.FullName)
	cred, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cred.Token)

	_, err = f.svc.Register(ctx, RegisterInput{FullName: "Neo", Email: "neo@example.com", Password: "longenough"})
	require.Equal(t, http.StatusConflict, transport.StatusOf(err))
}

func TestExpiredSessionTearsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, session.Credential{Token: "revoked"}))

	_, err := f.svc.FetchDeals(ctx)
	require.Equal(t, apierr.KindUnauthorized, apierr.KindOf(err))
	_, err = f.store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoCredential)
}

func TestTutorials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.srv.AddAccount(portaltest.Account{FullName: "Root", Email: "root@example.com", Role: session.RoleAdmin})

	// usuario común => 403 en /admin
	f.loginAs(t, f.user)
	_, err := f.svc.ListTutorials(ctx)
	require.Equal(t, http.StatusForbidden, transport.StatusOf(err))
	require.True(t, strings.HasPrefix(err.Error(), "Failed to fetch tutorials"))

	f.loginAs(t, admin)
	_, err = f.svc.CreateTutorial(ctx, TutorialInput{Title: "Intro"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)

	created, err := f.svc.CreateTutorial(ctx, TutorialInput{Title: "Intro", Description: "Basics", VideoURL: "https://videos.example.com/intro"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	updated, err := f.svc.UpdateTutorial(ctx, created.ID, TutorialInput{Title: "Intro v2", VideoURL: "https://videos.example.com/intro2"})
	require.NoError(t, err)
	require.Equal(t, "Intro v2", updated.Title)
	require.Equal(t, "Basics", updated.Description)

	list, err := f.svc.PublicTutorials(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteTutorial(ctx, created.ID))
	err = f.svc.DeleteTutorial(ctx, created.ID)
	require.Equal(t, http.StatusNotFound, transport.StatusOf(err))

	list, err = f.svc.ListTutorials(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUsersAndAdminStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.srv.AddAccount(portaltest.Account{FullName: "Root", Email: "root@example.com", Role: session.RoleAdmin})
	for i := 0; i < 3; i++ {
		f.srv.AddAccount(portaltest.Account{FullName: "User", Email: "u@example.com"})
	}
	f.loginAs(t, admin)

	page, err := f.svc.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, Pagination{Total: 5, TotalPages: 3, CurrentPage: 2, Limit: 2}, page.Pagination)

	_, err = f.svc.SetCompensationLink(ctx, "nope", "https://pay.example.com/x")
	require.Error(t, err)
	u, err := f.svc.SetCompensationLink(ctx, f.user.UUID, "https://pay.example.com/ana")
	require.NoError(t, err)
	require.Equal(t, "https://pay.example.com/ana", u.CompensationLink)
	require.Equal(t, "https://pay.example.com/ana", f.srv.Bodies(http.MethodPut, "/admin/users/"+f.user.UUID+"/compensation-link")[0]["compensation_link"])

	st, err := f.svc.FetchAdminStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, st.TotalUsers)
	require.Len(t, st.RecentActivity, 1)
}

func TestDecodeEnvelope_StatusNotSuccess(t *testing.T) {
	resp := &transport.Response{Status: 200, Body: []byte(`{"status":"error","message":"nope"}`)}
	_, err := decodeEnvelope(resp, nil, "fallback")
	require.EqualError(t, err, "nope")

	resp.Body = []byte(`{"success":false}`)
	_, err = decodeEnvelope(resp, nil, "fallback")
	require.EqualError(t, err, "fallback")

	require.False(t, errors.Is(err, transport.ErrCancelled))
}
