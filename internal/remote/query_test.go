package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/partnerportal/internal/apierr"
	"github.com/dropDatabas3/partnerportal/internal/transport"
)

func counting[T any](v T, calls *atomic.Int32) FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestQuery_InitialStateIsLoading(t *testing.T) {
	q := NewQuery(counting("x", new(atomic.Int32)), Options[string]{DefaultValue: "def"})
	s := q.State()
	require.True(t, s.Loading)
	require.Equal(t, "def", s.Data)
}

func TestQuery_ServesValidCacheWithoutNetwork(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(CacheOptions{Now: clk.Now})
	var calls atomic.Int32

	opts := Options[[]string]{Cache: cache, CacheKey: "dashboard-deals", CacheDuration: 5 * time.Minute}
	q1 := NewQuery(counting([]string{"d1"}, &calls), opts)
	s := q1.Load(context.Background())
	require.Equal(t, []string{"d1"}, s.Data)
	require.EqualValues(t, 1, calls.Load())

	// otra vista con la misma key dentro de la ventana
	clk.Advance(4 * time.Minute)
	q2 := NewQuery(counting([]string{"d2"}, &calls), opts)
	s = q2.Load(context.Background())
	require.Equal(t, []string{"d1"}, s.Data)
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
	require.EqualValues(t, 1, calls.Load())

	// vencida => red
	clk.Advance(time.Minute)
	s = q2.Load(context.Background())
	require.Equal(t, []string{"d2"}, s.Data)
	require.EqualValues(t, 2, calls.Load())
}

func TestQuery_RefetchBypassesCacheAndStoresFresh(t *testing.T) {
	clk := newFakeClock()
	cache := NewCache(CacheOptions{Now: clk.Now})
	var calls atomic.Int32
	n := 0
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		n++
		return n, nil
	}
	q := NewQuery(fetch, Options[int]{Cache: cache, CacheKey: "k"})

	require.Equal(t, 1, q.Load(context.Background()).Data)
	require.Equal(t, 1, q.Load(context.Background()).Data)
	require.Equal(t, 2, q.Refetch(context.Background()).Data)
	require.EqualValues(t, 2, calls.Load())

	e, ok := cache.Get("k", time.Minute)
	require.True(t, ok)
	require.Equal(t, 2, e.Value)
}

// blockingFetch devuelve el valor recién cuando se libera release, ignorando
// ctx a propósito para verificar que el Query descarta el resultado.
func blockingFetch(v string, err error, started, release chan struct{}) FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return v, err
	}
}

func TestQuery_SupersededResultNeverApplied(t *testing.T) {
	for _, aErr := range []error{nil, errors.New("A failed")} {
		var changes []State[string]
		var mu sync.Mutex
		aStarted, aRelease := make(chan struct{}), make(chan struct{})

		q := NewQuery(blockingFetch("A", aErr, aStarted, aRelease), Options[string]{
			OnChange: func(s State[string]) {
				mu.Lock()
				changes = append(changes, s)
				mu.Unlock()
			},
		})

		aDone := make(chan State[string])
		go func() { aDone <- q.Load(context.Background()) }()
		<-aStarted

		bState := q.Reset(context.Background(), func(ctx context.Context) (string, error) { return "B", nil }, "k-b")
		require.Equal(t, "B", bState.Data)

		close(aRelease)
		aState := <-aDone
		require.Equal(t, "B", aState.Data)

		final := q.State()
		require.Equal(t, "B", final.Data)
		require.False(t, final.Loading)
		require.Empty(t, final.Error)

		mu.Lock()
		for _, s := range changes {
			require.NotEqual(t, "A", s.Data)
			require.NotEqual(t, "A failed", s.Error)
		}
		mu.Unlock()
	}
}

func TestQuery_NewLoadCancelsInflightContext(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{})
	first := true
	var mu sync.Mutex
	fetch := func(ctx context.Context) (string, error) {
		mu.Lock()
		isFirst := first
		first = false
		mu.Unlock()
		if !isFirst {
			return "second", nil
		}
		close(started)
		<-ctx.Done()
		close(cancelled)
		return "", transport.ErrCancelled
	}
	q := NewQuery(fetch, Options[string]{})

	go q.Load(context.Background())
	<-started
	require.Equal(t, "second", q.Refetch(context.Background()).Data)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("la request anterior no fue cancelada")
	}
	require.Equal(t, "second", q.State().Data)
}

func TestQuery_CloseStopsUpdates(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	var changes atomic.Int32
	q := NewQuery(blockingFetch("late", nil, started, release), Options[string]{
		DefaultValue: "def",
		OnChange:     func(State[string]) { changes.Add(1) },
	})

	done := make(chan State[string])
	go func() { done <- q.Load(context.Background()) }()
	<-started
	before := changes.Load()
	q.Close()
	close(release)
	<-done

	require.Equal(t, before, changes.Load())
	require.Equal(t, "def", q.State().Data)

	// después de Close nada vuelve a cargar
	var calls atomic.Int32
	q.Reset(context.Background(), counting("x", &calls), "k")
	require.EqualValues(t, 0, calls.Load())
}

func TestQuery_CallerCancelledNotApplied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQuery(func(ctx context.Context) (string, error) {
		cancel()
		return "ignored", nil
	}, Options[string]{DefaultValue: "def"})

	s := q.Load(ctx)
	require.Equal(t, "def", s.Data)
}

func TestQuery_EmptyAsSuccess(t *testing.T) {
	for _, body := range []string{`{"message":"No deals found"}`, `{"message":"You didn't refer any lead"}`, ``} {
		status := 400
		if body == "" {
			status = 404
		}
		var onErr atomic.Int32
		cache := NewCache(CacheOptions{})
		q := NewQuery(func(ctx context.Context) ([]string, error) {
			return nil, &transport.HTTPError{Status: status, Body: []byte(body)}
		}, Options[[]string]{
			DefaultValue: []string{},
			Cache:        cache,
			CacheKey:     "k",
			OnError:      func(*apierr.Error) { onErr.Add(1) },
		})

		s := q.Load(context.Background())
		require.Equal(t, []string{}, s.Data)
		require.Empty(t, s.Error)
		require.False(t, s.Loading)
		require.EqualValues(t, 0, onErr.Load())
		require.Equal(t, 0, cache.Len())
	}
}

func TestQuery_ErrorsSurfaceMessages(t *testing.T) {
	var onErr []*apierr.Error
	var onOK atomic.Int32
	var fail error = &transport.NetworkError{Err: errors.New("refused")}
	q := NewQuery(func(ctx context.Context) (int, error) {
		if fail != nil {
			return 0, fail
		}
		return 7, nil
	}, Options[int]{
		OnError:   func(e *apierr.Error) { onErr = append(onErr, e) },
		OnSuccess: func(int) { onOK.Add(1) },
	})

	s := q.Load(context.Background())
	require.Equal(t, apierr.MsgNetwork, s.Error)
	require.False(t, s.Loading)
	require.Empty(t, onErr)

	fail = &transport.HTTPError{Status: 503, Body: []byte(`{"message":"CRM down"}`)}
	s = q.Refetch(context.Background())
	require.Equal(t, "CRM down", s.Error)
	require.Len(t, onErr, 1)
	require.Equal(t, apierr.KindServer, onErr[0].Kind)

	fail = nil
	s = q.Refetch(context.Background())
	require.Equal(t, 7, s.Data)
	require.Empty(t, s.Error)
	require.EqualValues(t, 1, onOK.Load())
}

func TestQuery_UnauthorizedIsSilent(t *testing.T) {
	var onErr atomic.Int32
	q := NewQuery(func(ctx context.Context) ([]string, error) {
		return nil, &transport.HTTPError{Status: 401, Body: []byte(`{"message":"Invalid or expired token"}`)}
	}, Options[[]string]{
		DefaultValue: []string{},
		OnError:      func(*apierr.Error) { onErr.Add(1) },
	})

	s := q.Load(context.Background())
	require.False(t, s.Loading)
	require.Empty(t, s.Error)
	require.Equal(t, []string{}, s.Data)
	require.Zero(t, onErr.Load())
}

func TestQuery_OnChangeDropsSnapshotOfSupersededLoad(t *testing.T) {
	var (
		mu    sync.Mutex
		last  State[string]
		calls atomic.Int32
	)
	bStarted, bRelease := make(chan struct{}), make(chan struct{})
	q := NewQuery(func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "A", nil
		}
		close(bStarted)
		<-bRelease
		return "B", nil
	}, Options[string]{OnChange: func(s State[string]) {
		mu.Lock()
		last = s
		mu.Unlock()
	}})

	// A ya aplicó su resultado pero todavía no notificó cuando arranca B
	bDone := make(chan State[string], 1)
	var once sync.Once
	q.afterApply = func() {
		once.Do(func() {
			go func() { bDone <- q.Refetch(context.Background()) }()
			<-bStarted
		})
	}

	s := q.Load(context.Background())
	require.Equal(t, "A", s.Data)

	mu.Lock()
	require.True(t, last.Loading, "el último estado observado debe ser el de B en vuelo")
	mu.Unlock()

	close(bRelease)
	<-bDone
	mu.Lock()
	require.Equal(t, "B", last.Data)
	require.False(t, last.Loading)
	mu.Unlock()
}
