package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/catchsync/internal/catalog"
	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/feed"
	"github.com/tphakala/catchsync/internal/identity"
)

type fakeCatalog struct {
	snap       feed.Snapshot
	refreshed  bool
	captured   catalog.CaptureRequest
	imageBytes []byte
	relabeled  [2]string
	deleted    catch.RowKey
	err        error
}

func (f *fakeCatalog) Capture(_ context.Context, req catalog.CaptureRequest) (catch.LocalCatch, error) {
	if f.err != nil {
		return catch.LocalCatch{}, f.err
	}
	f.captured = req
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return catch.LocalCatch{}, err
	}
	f.imageBytes = data
	return catch.LocalCatch{LocalID: "new", LocalURI: "/images/" + filepath.Base(req.ImagePath), SpeciesLabel: req.Label}, nil
}

func (f *fakeCatalog) Relabel(_ context.Context, id, label string) error {
	f.relabeled = [2]string{id, label}
	return f.err
}

func (f *fakeCatalog) DeleteRow(_ context.Context, key catch.RowKey) error {
	f.deleted = key
	return f.err
}

func (f *fakeCatalog) UploadOne(_ context.Context, id string) (catchsync.Result, error) {
	if f.err != nil {
		return catchsync.Result{}, f.err
	}
	return catchsync.Result{Attempted: 1, Synced: 1}, nil
}

func (f *fakeCatalog) Collection(context.Context) (catalog.Collection, error) {
	return catalog.Collection{Species: []catalog.Species{{Label: "Pike", Count: 2}}, Total: 1}, f.err
}

func (f *fakeCatalog) Feed(context.Context) (feed.Snapshot, error) { return f.snap, f.err }

func (f *fakeCatalog) Refresh(ctx context.Context) (feed.Snapshot, error) {
	f.refreshed = true
	return f.Feed(ctx)
}

type fakeSync struct {
	ran bool
}

func (f *fakeSync) Status() catchsync.Status { return catchsync.StatusIdle }
func (f *fakeSync) LastResult() (catchsync.Result, bool) {
	return catchsync.Result{Attempted: 2, Failed: 1, Errors: map[string]error{"a": errors.NewStd("boom")}}, true
}
func (f *fakeSync) LastSync() time.Time { return time.Time{} }
func (f *fakeSync) TriggerSync(_ context.Context, uid string) (catchsync.Result, bool) {
	return catchsync.Result{UserID: uid}, f.ran
}

type fakeImages struct{ served string }

func (f *fakeImages) Serve(c echo.Context, rel string) error {
	f.served = rel
	return c.Blob(http.StatusOK, "image/jpeg", []byte("jpeg"))
}
func (f *fakeImages) Dir() string { return "/images" }

type testServer struct {
	srv     *Server
	catalog *fakeCatalog
	sync    *fakeSync
	images  *fakeImages
}

func newTestServer(t *testing.T, uid string) *testServer {
	t.Helper()
	ts := &testServer{catalog: &fakeCatalog{}, sync: &fakeSync{ran: true}, images: &fakeImages{}}
	settings := &conf.Settings{}
	settings.Metrics.Enabled = true
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "catchsync_sync_passes_total 1\n")
	})

	srv, err := New(settings, ts.catalog, ts.sync, identity.Static(uid),
		WithImages(ts.images), WithMetricsHandler(metrics))
	require.NoError(t, err)
	ts.srv = srv
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestListCatches(t *testing.T) {
	ts := newTestServer(t, "u1")
	rid := int64(4)
	ts.catalog.snap = feed.Snapshot{
		UserID:     "u1",
		Identified: true,
		Stale:      true,
		RemoteErr:  errors.NewStd("offline"),
		Rows: []catch.MergedRow{
			catch.LocalRow(catch.LocalCatch{LocalID: "a", SpeciesLabel: "Pike", RemoteID: &rid}),
			catch.RemoteRow(catch.RemoteCatch{ID: 9, SpeciesLabel: "Perch"}),
		},
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/catches?refresh=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.catalog.refreshed)

	var got FeedDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Stale)
	assert.Equal(t, "offline", got.RemoteError)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "local:a", got.Rows[0].Key)
	assert.Equal(t, "remote:9", got.Rows[1].Key)
	assert.Equal(t, "Perch", got.Rows[1].Label)
	assert.Nil(t, got.Rows[1].Local)
}

func TestCaptureCatchMultipart(t *testing.T) {
	ts := newTestServer(t, "")

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "fish.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, w.WriteField("species_label", "Pike"))
	require.NoError(t, w.WriteField("species_confidence", "0.8"))
	require.NoError(t, w.WriteField("latitude", "60.1"))
	require.NoError(t, w.Close())

	rec := ts.do(t, http.MethodPost, "/api/v1/catches", &body, w.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "Pike", ts.catalog.captured.Label)
	assert.InDelta(t, 0.8, ts.catalog.captured.Confidence, 1e-9)
	require.NotNil(t, ts.catalog.captured.Lat)
	assert.Nil(t, ts.catalog.captured.Lng)
	assert.Equal(t, "fish.jpg", filepath.Base(ts.catalog.captured.ImagePath))
	assert.Equal(t, []byte("jpeg-bytes"), ts.catalog.imageBytes)

	_, err = os.Stat(ts.catalog.captured.ImagePath)
	assert.True(t, os.IsNotExist(err), "spooled upload removed after capture")
}

func TestCaptureCatchValidation(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodPost, "/api/v1/catches", strings.NewReader("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(errors.CategoryValidation), resp.Category)
}

func TestRelabelCatch(t *testing.T) {
	ts := newTestServer(t, "u1")
	rec := ts.do(t, http.MethodPatch, "/api/v1/catches/local/abc", strings.NewReader(`{"species_label":"Zander"}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, [2]string{"abc", "Zander"}, ts.catalog.relabeled)
}

func TestDeleteCatch(t *testing.T) {
	ts := newTestServer(t, "u1")
	rec := ts.do(t, http.MethodDelete, "/api/v1/catches/remote:42", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, catch.RowKey{Kind: catch.RowRemote, RemoteID: 42}, ts.catalog.deleted)

	rec = ts.do(t, http.MethodDelete, "/api/v1/catches/bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errors.Newf("gone").Category(errors.CategoryNotFound).Build(), http.StatusNotFound},
		{"busy", errors.New(errors.ErrSyncInProgress).Category(errors.CategoryState).Build(), http.StatusConflict},
		{"no identity", errors.New(errors.ErrNoIdentity).Category(errors.CategoryIdentity).Build(), http.StatusUnauthorized},
		{"upstream", errors.New(&errors.HTTPStatusError{Method: "GET", URL: "x", StatusCode: 500}).Category(errors.CategoryHTTPStatus).Build(), http.StatusBadGateway},
		{"plain", errors.NewStd("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "u1")
			ts.catalog.err = tt.err
			rec := ts.do(t, http.MethodPost, "/api/v1/catches/local/x/upload", nil, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestTriggerSync(t *testing.T) {
	ts := newTestServer(t, "u1")
	rec := ts.do(t, http.MethodPost, "/api/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got SyncDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotNil(t, got.Ran)
	assert.True(t, *got.Ran)
	assert.Equal(t, "u1", got.Result.UserID)

	ts.sync.ran = false
	rec = ts.do(t, http.MethodPost, "/api/v1/sync", nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "a running pass absorbs the trigger")

	anon := newTestServer(t, "")
	rec = anon.do(t, http.MethodPost, "/api/v1/sync", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncStatus(t *testing.T) {
	ts := newTestServer(t, "u1")
	rec := ts.do(t, http.MethodGet, "/api/v1/sync", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got SyncDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, catchsync.StatusIdle, got.Status)
	assert.Equal(t, map[string]string{"a": "boom"}, got.Errors)
}

func TestCollectionImagesAndMetrics(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/collection", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Pike"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/images/fish.jpg", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fish.jpg", ts.images.served)

	rec = ts.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catchsync_sync_passes_total")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Listen = "nonsense"
	assert.Error(t, cfg.Validate())

	_, err := New(&conf.Settings{Server: conf.ServerSettings{Listen: "bad"}}, &fakeCatalog{}, &fakeSync{}, identity.Static(""))
	assert.Error(t, err)
}

func TestStartAndShutdown(t *testing.T) {
	ts := newTestServer(t, "")
	ts.srv.config.Listen = "127.0.0.1:0"
	require.NoError(t, ts.srv.Start())

	resp, err := http.Get("http://" + ts.srv.Addr() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ts.srv.Shutdown())
}

func TestResponseHeaders(t *testing.T) {
	ts := newTestServer(t, "u1")

	rec := ts.do(t, http.MethodGet, "/api/v1/catches", nil, "")
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Empty(t, rec.Header().Get(echo.HeaderStrictTransportSecurity))

	rec = ts.do(t, http.MethodGet, "/api/v1/images/2026/pike.jpg", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderCacheControl))
}
