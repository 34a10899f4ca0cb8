// Package transport es el cliente HTTP autenticado contra la API del portal:
// base URL y timeout fijos, bearer token desde el session.Store, reintentos
// con backoff exponencial para fallas transitorias y teardown de sesión ante 401.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dropDatabas3/partnerportal/internal/codec"
	"github.com/dropDatabas3/partnerportal/internal/metrics"
	"github.com/dropDatabas3/partnerportal/internal/observability/logger"
	"github.com/dropDatabas3/partnerportal/internal/session"
)

const (
	DefaultTimeout = 30 * time.Second
	userAgent      = "partnerportal-cli"
	maxBodyBytes   = 10 << 20
)

// Options configura el Client. Sólo BaseURL es obligatorio.
type Options struct {
	BaseURL string
	// Timeout fijo por intento; 0 => DefaultTimeout.
	Timeout time.Duration
	Retry   RetryPolicy

	Store       session.Store
	Invalidator *session.Invalidator

	// RateLimit en requests/seg; 0 = sin límite.
	RateLimit float64
	Burst     int
	Breaker   *BreakerSettings

	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	HTTPClient *http.Client
	// JitterSeed fija la semilla del jitter (tests). 0 => time.Now.
	JitterSeed int64
}

// Client es seguro para uso concurrente.
type Client struct {
	base    *url.URL
	http    *http.Client
	retry   RetryPolicy
	store   session.Store
	inv     *session.Invalidator
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	log     *zap.Logger
	jitter  *jitterSource
}

func New(o Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(o.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("transport: base url inválida: %q", o.BaseURL)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = DefaultRetryPolicy()
	}
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	// copia: no pisar el Timeout de un cliente compartido
	cp := *hc
	cp.Timeout = o.Timeout

	seed := o.JitterSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	c := &Client{
		base:    u,
		http:    &cp,
		retry:   o.Retry,
		store:   o.Store,
		inv:     o.Invalidator,
		metrics: o.Metrics,
		log:     logger.OrNamed(o.Logger, "transport"),
		jitter:  newJitterSource(seed),
	}
	if c.inv == nil && c.store != nil {
		c.inv = session.NewInvalidator(c.store, nil, c.log)
	}
	if o.RateLimit > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), burst)
	}
	if o.Breaker != nil {
		c.cb = newBreaker(*o.Breaker, c.log)
	}
	return c, nil
}

// BaseURL devuelve la URL base sin "/" final.
func (c *Client) BaseURL() string { return c.base.String() }

// Request es una llamada lógica. Body puede ser nil, []byte o cualquier
// valor serializable a JSON.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response es la respuesta 2xx leída completa.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode deserializa el body JSON en v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := codec.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("transport: decode: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, q url.Values) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodGet, Path: path, Query: q})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodDelete, Path: path})
}

// Send ejecuta la llamada con reintentos.
//
// Reintenta sólo si no hubo respuesta HTTP o el status es 5xx, hasta
// Retry.MaxRetries veces. Un ctx cancelado corta antes de cada intento y
// durante cada espera y resuelve en ErrCancelled. Un 401 dispara el
// teardown de sesión y no se reintenta.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if r.Method == "" {
		r.Method = http.MethodGet
	}

	body, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}
	target := c.resolve(r.Path, r.Query)
	reqID := uuid.NewString()
	token := session.Token(ctx, c.store)
	log := logger.From(ctx, c.log).With(logger.Method(r.Method), logger.Path(r.Path), logger.RequestID(reqID))

	attempt := 0
	op := func() (*Response, error) {
		attempt++
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ErrCancelled)
		}
		resp, err := c.attempt(ctx, r, target, body, token, reqID, log, attempt)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	pol := &policyBackOff{p: c.retry, jitter: c.jitter}
	b := backoff.WithContext(backoff.WithMaxRetries(pol, uint64(c.retry.MaxRetries)), ctx)

	notify := func(err error, d time.Duration) {
		c.metrics.IncRetry(r.Method, r.Path)
		log.Warn("reintentando request", logger.Attempt(attempt), logger.Delay(d), logger.Err(err))
	}

	resp, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
			return nil, ErrCancelled
		}
		if StatusOf(err) == http.StatusUnauthorized {
			log.Debug("request no autorizado")
		} else {
			log.Warn("request falló", logger.Attempt(attempt), logger.Err(err))
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, r Request, target string, body []byte, token, reqID string, log *zap.Logger, n int) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ErrCancelled
			}
			// el ctx sigue vivo pero el token llegaría después del deadline
			return nil, &NetworkError{Method: r.Method, Path: r.Path, Err: fmt.Errorf("%w: %v", ErrRateLimited, err)}
		}
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, rd)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.do(req)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		c.metrics.ObserveAttempt(r.Method, r.Path, 0, elapsed)
		log.Debug("intento sin respuesta", logger.Attempt(n), logger.Duration(elapsed), logger.Err(err))
		return nil, &NetworkError{Method: r.Method, Path: r.Path, Err: err}
	}

	c.metrics.ObserveAttempt(r.Method, r.Path, resp.Status, elapsed)
	log.Debug("intento", logger.Attempt(n), logger.Status(resp.Status), logger.Duration(elapsed))

	if resp.Status >= 200 && resp.Status <= 299 {
		return resp, nil
	}
	if resp.Status == http.StatusUnauthorized && c.inv.Invalidate(ctx, token) {
		c.metrics.IncTeardown()
	}
	return nil, &HTTPError{Method: r.Method, Path: r.Path, Status: resp.Status, Body: resp.Body}
}

// do ejecuta un intento (a través del breaker si está activo) y lee el body.
func (c *Client) do(req *http.Request) (*Response, error) {
	exec := func() (*Response, error) {
		hr, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer hr.Body.Close()
		b, err := io.ReadAll(io.LimitReader(hr.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		return &Response{Status: hr.StatusCode, Header: hr.Header, Body: b}, nil
	}
	if c.cb == nil {
		return exec()
	}
	v, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := exec()
		if err != nil {
			return nil, err
		}
		if resp.Status >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	resp, _ := v.(*Response)
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}

func (c *Client) resolve(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case codec.RawMessage:
		return b, nil
	default:
		out, err := codec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("transport: encode body: %w", err)
		}
		return out, nil
	}
}

// retryable: sin respuesta o 5xx. Con el breaker abierto no se insiste.
func retryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return !errors.Is(ne.Err, gobreaker.ErrOpenState) &&
			!errors.Is(ne.Err, gobreaker.ErrTooManyRequests) &&
			!errors.Is(ne.Err, ErrRateLimited)
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	return false
}
