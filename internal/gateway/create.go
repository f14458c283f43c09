package gateway

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/logger"
	"github.com/tphakala/catchsync/internal/observability/metrics"
)

// Upload is one catch sent for creation.
type Upload struct {
	Image      io.Reader
	FileName   string
	Label      string
	Confidence *float64
	CreatedAt  string
	Lat        *float64
	Lng        *float64
}

// UploadFromCatch fills an Upload from a local record; the caller supplies the image.
func UploadFromCatch(c *catch.LocalCatch, image io.Reader) Upload {
	confidence := c.SpeciesConfidence
	return Upload{
		Image:      image,
		FileName:   filepath.Base(c.LocalURI),
		Label:      c.SpeciesLabel,
		Confidence: &confidence,
		CreatedAt:  c.CreatedAt,
		Lat:        c.Lat,
		Lng:        c.Lng,
	}
}

// Created is the server's answer to a creation request.
type Created struct {
	ID                  int64   `json:"id"`
	PredictedLabel      string  `json:"predicted_label,omitempty"`
	PredictedConfidence float64 `json:"predicted_confidence,omitempty"`
	SavedPath           string  `json:"saved_path,omitempty"`
}

type createResponse struct {
	ID         *int64 `json:"id"`
	CatchID    *int64 `json:"catch_id"`
	SavedPath  string `json:"saved_path"`
	Prediction *struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"prediction"`
}

// Create uploads an image with its metadata and returns the server id and the
// server's predicted label.
func (g *Gateway) Create(ctx context.Context, uid string, up Upload) (Created, error) {
	body, contentType, err := encodeUpload(uid, up)
	if err != nil {
		return Created{}, errors.New(err).
			Component("gateway").
			Category(errors.CategoryFileIO).
			Context("operation", metrics.OpCreate).
			Build()
	}

	req, err := g.newRequest(ctx, http.MethodPost, g.baseURL+g.createPath, contentType, body, uid)
	if err != nil {
		return Created{}, err
	}
	resp, err := g.do(ctx, metrics.OpCreate, req)
	if err != nil {
		return Created{}, err
	}

	var out createResponse
	if err := decodeJSON(metrics.OpCreate, resp, &out); err != nil {
		return Created{}, err
	}

	id := out.ID
	if id == nil {
		id = out.CatchID
	}
	if id == nil {
		return Created{}, errors.New(ErrNoRemoteID).
			Component("gateway").
			Category(errors.CategoryHTTP).
			Context("operation", metrics.OpCreate).
			Build()
	}

	created := Created{ID: *id, SavedPath: out.SavedPath}
	if out.Prediction != nil {
		created.PredictedLabel = strings.TrimSpace(out.Prediction.Label)
		created.PredictedConfidence = out.Prediction.Confidence
	}

	GetLogger().Debug("catch created",
		logger.Int64("remote_id", created.ID),
		logger.String("predicted_label", created.PredictedLabel))
	return created, nil
}

// encodeUpload renders the multipart form expected by the identify endpoint.
func encodeUpload(uid string, up Upload) (*bytes.Buffer, string, error) {
	if up.Image == nil {
		return nil, "", errors.NewStd("upload has no image")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := up.FileName
	if name == "" || name == "." {
		name = "catch.jpg"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", multipart.FileContentDisposition("file", name))
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, up.Image); err != nil {
		return nil, "", err
	}

	fields := make([][2]string, 0, 7)
	if label := strings.TrimSpace(up.Label); label != "" {
		fields = append(fields, [2]string{"species_label", label})
	}
	if up.Confidence != nil {
		fields = append(fields, [2]string{"species_confidence", formatFloat(*up.Confidence)})
	}
	if up.CreatedAt != "" {
		fields = append(fields, [2]string{"created_at", up.CreatedAt})
	}
	if up.Lat != nil {
		fields = append(fields, [2]string{"latitude", formatFloat(*up.Lat)})
	}
	if up.Lng != nil {
		fields = append(fields, [2]string{"longitude", formatFloat(*up.Lng)})
	}
	fields = append(fields, [2]string{"persist", "true"})
	if uid != "" {
		fields = append(fields, [2]string{"user_id", uid})
	}

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
