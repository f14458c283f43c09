// Package gateway talks to the remote catch backend: multipart creation,
// label updates, listing, lookup and deletion of catches.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/httpclient"
	"github.com/tphakala/catchsync/internal/logger"
	"github.com/tphakala/catchsync/internal/observability/metrics"
)

const (
	headerUserID = "X-User-Id"

	// maxErrorBody bounds how much of a failed response is read for its detail.
	maxErrorBody = 64 << 10
)

// ErrNoRemoteID is returned when a successful create response carries no id.
var ErrNoRemoteID = errors.NewStd("create response has no catch id")

// GetLogger returns the gateway module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("gateway")
}

// TokenSource supplies an optional bearer token. An empty token sends no header.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// Gateway is the remote catch service client.
type Gateway struct {
	client      *httpclient.Client
	baseURL     string
	createPath  string
	catchesPath string
	tokens      TokenSource
	metrics     metrics.Recorder
	now         func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTokenSource sets the bearer token provider.
func WithTokenSource(ts TokenSource) Option {
	return func(g *Gateway) { g.tokens = ts }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gateway) {
		if r != nil {
			g.metrics = r
		}
	}
}

// WithClock overrides the clock used for cache-busting query values.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New builds a Gateway from the API settings using client for transport.
func New(client *httpclient.Client, api *conf.APISettings, opts ...Option) *Gateway {
	g := &Gateway{
		client:      client,
		baseURL:     strings.TrimRight(api.URL, "/"),
		createPath:  api.CreatePath,
		catchesPath: api.CatchesPath,
		metrics:     metrics.NoOpRecorder{},
		now:         time.Now,
	}
	if g.createPath == "" {
		g.createPath = conf.DefaultCreatePath
	}
	if g.catchesPath == "" {
		g.catchesPath = conf.DefaultCatchesPath
	}
	if api.Token != "" {
		g.tokens = StaticToken(api.Token)
	}
	for _, opt := range opts {
		opt(g)
	}
	client.SetBeforeRequestHook(g.beforeRequest)
	client.SetAfterResponseHook(g.afterResponse)
	return g
}

// opTiming follows one gateway operation through the client hooks.
type opTiming struct {
	op      string
	start   time.Time
	elapsed time.Duration
}

type opTimingKey struct{}

func withOpTiming(ctx context.Context, op string) (context.Context, *opTiming) {
	t := &opTiming{op: op}
	return context.WithValue(ctx, opTimingKey{}, t), t
}

func (g *Gateway) beforeRequest(req *http.Request) {
	if t, ok := req.Context().Value(opTimingKey{}).(*opTiming); ok {
		t.start = time.Now()
	}
}

// afterResponse records the round trip duration of gateway operations.
func (g *Gateway) afterResponse(req *http.Request, _ *http.Response, _ error) {
	t, ok := req.Context().Value(opTimingKey{}).(*opTiming)
	if !ok || t.start.IsZero() {
		return
	}
	t.elapsed = time.Since(t.start)
	g.metrics.RecordDuration(t.op, t.elapsed.Seconds())
}

// NewFromSettings creates the HTTP client and Gateway from application settings.
func NewFromSettings(settings *conf.Settings, opts ...Option) *Gateway {
	cfg := httpclient.DefaultConfig()
	if settings.API.Timeout > 0 {
		cfg.DefaultTimeout = settings.API.Timeout
	}
	if settings.API.UserAgent != "" {
		cfg.UserAgent = settings.API.UserAgent
	}
	return New(httpclient.New(&cfg), &settings.API, opts...)
}

// Client returns the underlying HTTP client.
func (g *Gateway) Client() *httpclient.Client { return g.client }

func (g *Gateway) catchURL(id int64) string {
	return g.baseURL + g.catchesPath + "/" + strconv.FormatInt(id, 10)
}

// newRequest builds a request carrying the identity and auth headers.
func (g *Gateway) newRequest(ctx context.Context, method, target, contentType string, body any, uid string) (*http.Request, error) {
	req, err := httpclient.NewRequest(ctx, method, target, contentType, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if uid != "" {
		req.Header.Set(headerUserID, uid)
	}
	if g.tokens != nil {
		token, err := g.tokens(ctx)
		if err != nil {
			return nil, errors.New(err).
				Component("gateway").
				Category(errors.CategoryIdentity).
				Context("operation", "token").
				Build()
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// do executes req and returns the response when the status is 2xx.
// Transport failures become NetworkError, other statuses HTTPStatusError.
// The caller closes the body of a returned response.
func (g *Gateway) do(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	ctx, timing := withOpTiming(ctx, op)
	resp, err := g.client.Do(ctx, req)

	if err != nil {
		g.metrics.RecordOperation(op, metrics.StatusError)
		g.metrics.RecordError(op, string(errors.CategoryNetwork))
		return nil, errors.New(&errors.NetworkError{Method: req.Method, URL: redactURL(req.URL), Err: err}).
			Component("gateway").
			Category(errors.CategoryNetwork).
			NetworkContext(req.URL.String(), 0).
			Timing(op, timing.elapsed).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		statusErr := &errors.HTTPStatusError{
			Method:     req.Method,
			URL:        redactURL(req.URL),
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
		g.metrics.RecordOperation(op, metrics.StatusError)
		g.metrics.RecordError(op, string(statusErr.ErrorCategory()))
		return nil, errors.New(statusErr).
			Component("gateway").
			Category(statusErr.ErrorCategory()).
			Timing(op, timing.elapsed).
			Context("status_code", resp.StatusCode).
			Build()
	}

	g.metrics.RecordOperation(op, metrics.StatusSuccess)
	return resp, nil
}

// readDetail extracts a FastAPI-style {"detail": ...} message, or the raw body.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(body.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(data))
}

// redactURL drops the query string, which may carry the user id.
func redactURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return clean.String()
}

func decodeJSON(op string, resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.New(fmt.Errorf("failed to decode %s response: %w", op, err)).
			Component("gateway").
			Category(errors.CategoryHTTP).
			Context("operation", op).
			Build()
	}
	return nil
}

// drain discards the rest of the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// List fetches the newest remote catches of uid.
func (g *Gateway) List(ctx context.Context, uid string, limit int) ([]catch.RemoteCatch, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("user_id", uid)
	q.Set("t", strconv.FormatInt(g.now().UnixMilli(), 10))

	req, err := g.newRequest(ctx, http.MethodGet, g.baseURL+g.catchesPath+"?"+q.Encode(), "", nil, uid)
	if err != nil {
		return nil, err
	}
	resp, err := g.do(ctx, metrics.OpList, req)
	if err != nil {
		return nil, err
	}

	var items []catch.RemoteCatch
	if err := decodeJSON(metrics.OpList, resp, &items); err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].UserID == "" {
			items[i].UserID = uid
		}
	}
	if items == nil {
		items = []catch.RemoteCatch{}
	}
	return items, nil
}

// Get fetches one remote catch.
func (g *Gateway) Get(ctx context.Context, uid string, id int64) (catch.RemoteCatch, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.catchURL(id), "", nil, uid)
	if err != nil {
		return catch.RemoteCatch{}, err
	}
	resp, err := g.do(ctx, metrics.OpGet, req)
	if err != nil {
		return catch.RemoteCatch{}, err
	}

	var item catch.RemoteCatch
	if err := decodeJSON(metrics.OpGet, resp, &item); err != nil {
		return catch.RemoteCatch{}, err
	}
	return item, nil
}

// Delete removes a remote catch.
func (g *Gateway) Delete(ctx context.Context, uid string, id int64) error {
	req, err := g.newRequest(ctx, http.MethodDelete, g.catchURL(id), "", nil, uid)
	if err != nil {
		return err
	}
	resp, err := g.do(ctx, metrics.OpDelete, req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

type labelUpdate struct {
	SpeciesLabel string `json:"species_label"`
}

// UpdateLabel sets the species label of a remote catch. The request is sent as
// PATCH; a 405 answer is retried once as PUT with the same body.
func (g *Gateway) UpdateLabel(ctx context.Context, uid string, id int64, label string) error {
	body, err := json.Marshal(labelUpdate{SpeciesLabel: label})
	if err != nil {
		return err
	}

	err = g.sendLabel(ctx, http.MethodPatch, uid, id, body)
	if errors.IsMethodNotAllowed(err) {
		GetLogger().Debug("PATCH not allowed, retrying label update with PUT",
			logger.Int64("remote_id", id))
		err = g.sendLabel(ctx, http.MethodPut, uid, id, body)
	}
	return err
}

func (g *Gateway) sendLabel(ctx context.Context, method, uid string, id int64, body []byte) error {
	req, err := g.newRequest(ctx, method, g.catchURL(id), "application/json", body, uid)
	if err != nil {
		return err
	}
	resp, err := g.do(ctx, metrics.OpUpdateLabel, req)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}
