package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/catchsync/internal/catalog"
	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/feed"
	"github.com/tphakala/catchsync/internal/logger"
)

// RowDTO is one merged feed row.
type RowDTO struct {
	Key       string             `json:"key"`
	Kind      string             `json:"kind"`
	Label     string             `json:"species_label"`
	CreatedAt string             `json:"created_at"`
	Local     *catch.LocalCatch  `json:"local,omitempty"`
	Remote    *catch.RemoteCatch `json:"remote,omitempty"`
}

// FeedDTO is the response of GET /api/v1/catches.
type FeedDTO struct {
	UserID      string    `json:"user_id,omitempty"`
	Identified  bool      `json:"identified"`
	Stale       bool      `json:"stale"`
	RemoteError string    `json:"remote_error,omitempty"`
	FetchedAt   time.Time `json:"fetched_at,omitzero"`
	Rows        []RowDTO  `json:"rows"`
}

func newFeedDTO(snap *feed.Snapshot) FeedDTO {
	out := FeedDTO{
		UserID:     snap.UserID,
		Identified: snap.Identified,
		Stale:      snap.Stale,
		FetchedAt:  snap.FetchedAt,
		Rows:       make([]RowDTO, 0, len(snap.Rows)),
	}
	if snap.RemoteErr != nil {
		out.RemoteError = snap.RemoteErr.Error()
	}
	for _, r := range snap.Rows {
		out.Rows = append(out.Rows, RowDTO{
			Key:       r.Key().String(),
			Kind:      r.Kind().String(),
			Label:     r.Label(),
			CreatedAt: r.CreatedAt(),
			Local:     r.Local,
			Remote:    r.Remote,
		})
	}
	return out
}

// SyncDTO reports engine state.
type SyncDTO struct {
	Status   catchsync.Status  `json:"status"`
	Ran      *bool             `json:"ran,omitempty"`
	LastSync time.Time         `json:"last_sync,omitzero"`
	Result   *catchsync.Result `json:"result,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

func resultErrors(r *catchsync.Result) map[string]string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Errors))
	for id, err := range r.Errors {
		out[id] = err.Error()
	}
	return out
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError
	}
	switch errors.ErrorCategory(ee.GetCategory()) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound, errors.CategoryFileMissing:
		return http.StatusNotFound
	case errors.CategoryState, errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryIdentity:
		return http.StatusUnauthorized
	case errors.CategoryNetwork, errors.CategoryHTTP, errors.CategoryHTTPStatus, errors.CategoryMethodNotAllowed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg})
		return
	}

	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		resp.Category = ee.GetCategory()
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logger.String("path", c.Path()),
			logger.Error(err))
	}
	_ = c.JSON(status, resp)
}

func badRequest(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}

func (s *Server) listCatches(c echo.Context) error {
	load := s.catalog.Feed
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		load = s.catalog.Refresh
	}
	snap, err := load(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newFeedDTO(&snap))
}

// captureCatch accepts a multipart photo upload with optional species_label,
// species_confidence, latitude and longitude fields.
func (s *Server) captureCatch(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("missing file part: %v", err)
	}

	req := catalog.CaptureRequest{Label: c.FormValue("species_label")}
	if v := c.FormValue("species_confidence"); v != "" {
		if req.Confidence, err = strconv.ParseFloat(v, 64); err != nil {
			return badRequest("invalid species_confidence %q", v)
		}
	}
	if req.Lat, err = optionalFloat(c.FormValue("latitude")); err != nil {
		return badRequest("invalid latitude: %v", err)
	}
	if req.Lng, err = optionalFloat(c.FormValue("longitude")); err != nil {
		return badRequest("invalid longitude: %v", err)
	}

	src, err := fh.Open()
	if err != nil {
		return badRequest("unreadable file part: %v", err)
	}
	defer src.Close()

	tmp, err := spoolUpload(fh.Filename, src)
	if err != nil {
		return err
	}
	defer os.RemoveAll(filepath.Dir(tmp))
	req.ImagePath = tmp

	rec, err := s.catalog.Capture(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func optionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// spoolUpload writes an uploaded part to a private temp dir so the image
// store can copy it like any other picked photo. The file keeps the upload's
// base name.
func spoolUpload(name string, src io.Reader) (string, error) {
	dir, err := os.MkdirTemp("", "catchsync-upload-")
	if err != nil {
		return "", errors.New(err).Component("api").Category(errors.CategoryFileIO).Build()
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload.jpg"
	}
	path := filepath.Join(dir, base)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err == nil {
		_, err = io.Copy(dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", errors.New(err).Component("api").Category(errors.CategoryFileIO).FileContext(path, 0).Build()
	}
	return path, nil
}

type relabelRequest struct {
	SpeciesLabel string `json:"species_label"`
}

func (s *Server) relabelCatch(c echo.Context) error {
	var body relabelRequest
	if err := c.Bind(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if err := s.catalog.Relabel(c.Request().Context(), c.Param("id"), body.SpeciesLabel); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) uploadCatch(c echo.Context) error {
	res, err := s.catalog.UploadOne(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SyncDTO{
		Status: s.sync.Status(),
		Result: &res,
		Errors: resultErrors(&res),
	})
}

func (s *Server) deleteCatch(c echo.Context) error {
	key, ok := catch.ParseRowKey(c.Param("key"))
	if !ok {
		return badRequest("invalid row key %q", c.Param("key"))
	}
	if err := s.catalog.DeleteRow(c.Request().Context(), key); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) syncStatus(c echo.Context) error {
	out := SyncDTO{Status: s.sync.Status(), LastSync: s.sync.LastSync()}
	if last, ok := s.sync.LastResult(); ok {
		out.Result = &last
		out.Errors = resultErrors(&last)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) triggerSync(c echo.Context) error {
	ctx := c.Request().Context()
	uid, ok := s.identity.CurrentID(ctx)
	if !ok {
		return errors.New(errors.ErrNoIdentity).
			Component("api").
			Category(errors.CategoryIdentity).
			Build()
	}

	res, ran := s.sync.TriggerSync(ctx, uid)
	status := http.StatusOK
	if !ran {
		status = http.StatusAccepted
	}
	return c.JSON(status, SyncDTO{
		Status:   s.sync.Status(),
		Ran:      &ran,
		LastSync: s.sync.LastSync(),
		Result:   &res,
		Errors:   resultErrors(&res),
	})
}

func (s *Server) collection(c echo.Context) error {
	col, err := s.catalog.Collection(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, col)
}

func (s *Server) serveImage(c echo.Context) error {
	rel := strings.TrimPrefix(c.Param("*"), "/")
	if rel == "" {
		return badRequest("image path required")
	}
	return s.images.Serve(c, rel)
}
