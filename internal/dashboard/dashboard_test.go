package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/partnerportal/internal/portal"
	"github.com/dropDatabas3/partnerportal/internal/portaltest"
	"github.com/dropDatabas3/partnerportal/internal/remote"
	"github.com/dropDatabas3/partnerportal/internal/session"
	"github.com/dropDatabas3/partnerportal/internal/stats"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

type fakeSource struct {
	mu        sync.Mutex
	periods   []portal.Period
	referrals func(ctx context.Context, p portal.Period) ([]portal.Referral, error)
	deals     func(ctx context.Context) ([]portal.Deal, error)
	stats     func(ctx context.Context) (stats.Snapshot, error)
	dealCalls atomic.Int32
}

func (f *fakeSource) FetchReferrals(ctx context.Context, flt portal.Filter) ([]portal.Referral, error) {
	f.mu.Lock()
	f.periods = append(f.periods, flt.Period)
	f.mu.Unlock()
	if f.referrals != nil {
		return f.referrals(ctx, flt.Period)
	}
	return []portal.Referral{{ID: string(flt.Period)}}, nil
}

func (f *fakeSource) FetchDeals(ctx context.Context) ([]portal.Deal, error) {
	f.dealCalls.Add(1)
	if f.deals != nil {
		return f.deals(ctx)
	}
	return []portal.Deal{{ID: "d1", Amount: 10}}, nil
}

func (f *fakeSource) FetchStats(ctx context.Context) (stats.Snapshot, error) {
	if f.stats != nil {
		return f.stats(ctx)
	}
	s := stats.Zero()
	s.TotalReferrals = 7
	return s, nil
}

func (f *fakeSource) Periods() []portal.Period {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]portal.Period(nil), f.periods...)
}

func TestLoad_AllThree(t *testing.T) {
	src := &fakeSource{}
	cache := remote.NewCache(remote.CacheOptions{})
	d := New(Options{Source: src, Cache: cache, Period: portal.PeriodYTD})
	defer d.Close()

	require.True(t, d.State().Loading)

	s := d.Load(context.Background())
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
	require.Equal(t, portal.PeriodYTD, s.Period)
	require.Equal(t, []portal.Referral{{ID: "ytd"}}, s.Referrals)
	require.Len(t, s.Deals, 1)
	require.Equal(t, 7, s.Stats.TotalReferrals)

	// segunda vista montada con el mismo cache => sin red
	d2 := New(Options{Source: src, Cache: cache, Period: portal.PeriodYTD})
	defer d2.Close()
	d2.Load(context.Background())
	require.Equal(t, int32(1), src.dealCalls.Load())
	require.Equal(t, []portal.Period{portal.PeriodYTD}, src.Periods())
}

func TestLoad_ErrorsJoined(t *testing.T) {
	src := &fakeSource{
		deals: func(context.Context) ([]portal.Deal, error) {
			return nil, &transport.HTTPError{Method: "GET", Path: "/leads/deals/by-referrer", Status: 500, Body: []byte(`{"message":"deals down"}`)}
		},
		referrals: func(context.Context, portal.Period) ([]portal.Referral, error) {
			return nil, errors.New("referrals down")
		},
	}
	d := New(Options{Source: src})
	defer d.Close()

	s := d.Load(context.Background())
	require.False(t, s.Loading)
	require.Equal(t, "referrals down deals down", s.Error)
	require.Equal(t, []portal.Referral{}, s.Referrals)
	require.Equal(t, 7, s.Stats.TotalReferrals)
}

func TestLoad_NetworkAndEmpty(t *testing.T) {
	src := &fakeSource{
		deals: func(context.Context) ([]portal.Deal, error) {
			return nil, &transport.HTTPError{Status: 404, Body: []byte(`{"message":"No deals found"}`)}
		},
		referrals: func(context.Context, portal.Period) ([]portal.Referral, error) {
			return nil, &transport.NetworkError{Method: "GET", Path: "/leads/by-lead-source", Err: errors.New("dial tcp: refused")}
		},
	}
	d := New(Options{Source: src})
	defer d.Close()

	s := d.Load(context.Background())
	require.Equal(t, "Unable to connect to the server. Please check your internet connection.", s.Error)
	require.Equal(t, []portal.Deal{}, s.Deals)
}

func TestSetPeriod_Rekeys(t *testing.T) {
	src := &fakeSource{}
	cache := remote.NewCache(remote.CacheOptions{})
	d := New(Options{Source: src, Cache: cache})
	defer d.Close()

	d.Load(context.Background())
	s := d.SetPeriod(context.Background(), portal.PeriodMTD)
	require.Equal(t, portal.PeriodMTD, s.Period)
	require.Equal(t, []portal.Referral{{ID: "mtd"}}, s.Referrals)
	require.Equal(t, ReferralsKey(portal.PeriodMTD), d.referrals.Key())

	// volver al período anterior sale del cache
	s = d.SetPeriod(context.Background(), portal.PeriodAll)
	require.Equal(t, []portal.Referral{{ID: "all"}}, s.Referrals)
	require.Equal(t, []portal.Period{portal.PeriodAll, portal.PeriodMTD}, src.Periods())
	require.Equal(t, int32(1), src.dealCalls.Load())

	_, ok := cache.Get(ReferralsKey(portal.PeriodMTD), time.Minute)
	require.True(t, ok)
}

func TestSetPeriod_SupersedesInFlight(t *testing.T) {
	started := make(chan struct{})
	src := &fakeSource{}
	src.referrals = func(ctx context.Context, p portal.Period) ([]portal.Referral, error) {
		if p == portal.PeriodYTD {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []portal.Referral{{ID: string(p)}}, nil
	}
	d := New(Options{Source: src, Period: portal.PeriodYTD})
	defer d.Close()

	done := make(chan State, 1)
	go func() { done <- d.Load(context.Background()) }()
	<-started

	s := d.SetPeriod(context.Background(), portal.PeriodLast30)
	require.Equal(t, []portal.Referral{{ID: "last30"}}, s.Referrals)

	<-done
	s = d.State()
	require.Equal(t, []portal.Referral{{ID: "last30"}}, s.Referrals)
	require.Empty(t, s.Error)
}

func TestRefetch_BypassesCache(t *testing.T) {
	src := &fakeSource{}
	d := New(Options{Source: src, Cache: remote.NewCache(remote.CacheOptions{})})
	defer d.Close()

	d.Load(context.Background())
	d.Load(context.Background())
	require.Equal(t, int32(1), src.dealCalls.Load())
	d.Refetch(context.Background())
	require.Equal(t, int32(2), src.dealCalls.Load())
}

func TestOnChange(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	d := New(Options{Source: &fakeSource{}, OnChange: func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}})
	defer d.Close()
	d.Load(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.False(t, states[len(states)-1].Loading)
}

func TestLoad_AgainstAPI(t *testing.T) {
	srv := portaltest.New(t)
	acc := srv.AddAccount(portaltest.Account{FullName: "Ana", Email: "ana@example.com"})
	now := time.Now().UTC()
	srv.SetLeads(
		portaltest.LeadRow("1", "A", stats.StatusConvert, now.Add(-time.Hour)),
		portaltest.LeadRow("2", "B", "New", now.Add(-2*time.Hour)),
	)
	srv.SetDeals(portaltest.DealRow("d1", "Deal", "99.5", "Closed Won", now))

	store := session.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), session.Credential{Token: acc.Token}))
	tc, err := transport.New(transport.Options{BaseURL: srv.BaseURL(), Store: store})
	require.NoError(t, err)
	cache := remote.NewCache(remote.CacheOptions{})
	svc := portal.New(portal.Options{API: tc, Store: store, Cache: cache})

	d := New(Options{Source: svc, Cache: cache, Period: portal.PeriodLast30})
	defer d.Close()
	s := d.Load(context.Background())
	require.Empty(t, s.Error)
	require.Len(t, s.Referrals, 2)
	require.Equal(t, 99.5, s.Deals[0].Amount)
	require.Equal(t, 2, s.Stats.TotalReferrals)
	require.Equal(t, 50.0, s.Stats.ConversionRatePercent)

	require.Equal(t, 1, srv.Hits(http.MethodGet, "/leads/deals/by-referrer"))
	// referidos (período) + stats (todo)
	require.Equal(t, 2, srv.Hits(http.MethodGet, "/leads/by-lead-source"))
}

func TestLoad_ExpiredSessionRedirectsWithoutError(t *testing.T) {
	srv := portaltest.New(t)
	store := session.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), session.Credential{Token: "revoked"}))
	nav := session.NewViewTracker(session.ViewDashboard)
	tc, err := transport.New(transport.Options{
		BaseURL:     srv.BaseURL(),
		Store:       store,
		Invalidator: session.NewInvalidator(store, nav, nil),
	})
	require.NoError(t, err)
	svc := portal.New(portal.Options{API: tc, Store: store})

	d := New(Options{Source: svc})
	defer d.Close()
	s := d.Load(context.Background())

	require.Equal(t, session.ViewLogin, nav.Current())
	require.Empty(t, s.Error)
	require.False(t, s.Loading)
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNoCredential)
}

func TestSetPeriod_ConcurrentCallsStayConsistent(t *testing.T) {
	src := &fakeSource{}
	d := New(Options{Source: src, Cache: remote.NewCache(remote.CacheOptions{})})
	defer d.Close()
	d.Load(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		p := portal.Periods[i%len(portal.Periods)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.SetPeriod(context.Background(), p)
		}()
	}
	wg.Wait()

	s := d.State()
	require.False(t, s.Loading)
	require.Len(t, s.Referrals, 1)
	require.Equal(t, string(s.Period), s.Referrals[0].ID)
	require.Equal(t, s.Period, d.Period())
}
