// Package catch defines the catch records shared by the local store, the
// remote gateway and the merged feed.
package catch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/catchsync/internal/errors"
)

// UnknownLabel is used when a catch has no species label.
const UnknownLabel = "Unknown"

// LocalCatch is a catch record persisted on the device.
//
// Synced implies RemoteID != nil. A record may carry a RemoteID and still be
// unsynced when a later local edit has not been pushed.
type LocalCatch struct {
	LocalID           string   `json:"local_id"`
	LocalURI          string   `json:"local_uri"`
	SpeciesLabel      string   `json:"species_label"`
	SpeciesConfidence float64  `json:"species_confidence"`
	CreatedAt         string   `json:"created_at"`
	RemoteID          *int64   `json:"remote_id,omitempty"`
	Synced            bool     `json:"synced"`
	Lat               *float64 `json:"lat,omitempty"`
	Lng               *float64 `json:"lng,omitempty"`
}

// Pending reports whether the record still needs work from the sync engine.
func (c *LocalCatch) Pending() bool {
	return !c.Synced
}

// HasRemote reports whether the server id is known.
func (c *LocalCatch) HasRemote() bool {
	return c.RemoteID != nil
}

// Created parses CreatedAt, returning the zero time on malformed input.
func (c *LocalCatch) Created() time.Time {
	t, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the record invariants.
func (c *LocalCatch) Validate() error {
	switch {
	case c.LocalID == "":
		return validationError("local_id is required")
	case c.SpeciesConfidence < 0 || c.SpeciesConfidence > 1:
		return validationError(fmt.Sprintf("species_confidence %v out of range [0,1]", c.SpeciesConfidence))
	case c.Synced && c.RemoteID == nil:
		return validationError("synced record without remote_id")
	}
	if c.Lat != nil && (*c.Lat < -90 || *c.Lat > 90) {
		return validationError(fmt.Sprintf("lat %v out of range", *c.Lat))
	}
	if c.Lng != nil && (*c.Lng < -180 || *c.Lng > 180) {
		return validationError(fmt.Sprintf("lng %v out of range", *c.Lng))
	}
	return nil
}

func validationError(msg string) error {
	return errors.Newf("invalid catch: %s", msg).
		Component("catch").
		Category(errors.CategoryValidation).
		Build()
}

// Patch is a partial update of a LocalCatch. Nil fields are left unchanged.
type Patch struct {
	LocalURI          *string
	SpeciesLabel      *string
	SpeciesConfidence *float64
	RemoteID          *int64
	Synced            *bool
	Lat               *float64
	Lng               *float64
}

// Apply returns c with the non-nil fields of p merged in.
func (p Patch) Apply(c LocalCatch) LocalCatch {
	if p.LocalURI != nil {
		c.LocalURI = *p.LocalURI
	}
	if p.SpeciesLabel != nil {
		c.SpeciesLabel = *p.SpeciesLabel
	}
	if p.SpeciesConfidence != nil {
		c.SpeciesConfidence = *p.SpeciesConfidence
	}
	if p.RemoteID != nil {
		id := *p.RemoteID
		c.RemoteID = &id
	}
	if p.Synced != nil {
		c.Synced = *p.Synced
	}
	if p.Lat != nil {
		lat := *p.Lat
		c.Lat = &lat
	}
	if p.Lng != nil {
		lng := *p.Lng
		c.Lng = &lng
	}
	return c
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// MarkSynced is the patch applied once the server state matches the record.
func MarkSynced(remoteID int64) Patch {
	synced := true
	return Patch{RemoteID: &remoteID, Synced: &synced}
}

// Relabel changes the label and marks the record unsynced when the label
// differs, so the next pass pushes it. c may be stale: a pass can settle the
// record between the read and the write, so pending is set even for records
// that have no remote id yet.
func Relabel(c LocalCatch, label string) Patch {
	label = strings.TrimSpace(label)
	p := Patch{SpeciesLabel: &label}
	if c.SpeciesLabel != label {
		unsynced := false
		p.Synced = &unsynced
	}
	return p
}

// RemoteCatch is a catch record as returned by the backend.
type RemoteCatch struct {
	ID                int64    `json:"id"`
	ImagePath         string   `json:"image_path"`
	SpeciesLabel      string   `json:"species_label"`
	SpeciesConfidence float64  `json:"species_confidence"`
	CreatedAt         string   `json:"created_at"`
	UserID            string   `json:"user_id,omitempty"`
	Lat               *float64 `json:"lat,omitempty"`
	Lng               *float64 `json:"lng,omitempty"`
}

// UnmarshalJSON tolerates null or missing fields the backend may send.
func (r *RemoteCatch) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                int64    `json:"id"`
		ImagePath         *string  `json:"image_path"`
		SpeciesLabel      *string  `json:"species_label"`
		SpeciesConfidence *float64 `json:"species_confidence"`
		CreatedAt         *string  `json:"created_at"`
		UserID            any      `json:"user_id"`
		Lat               *float64 `json:"lat"`
		Lng               *float64 `json:"lng"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = RemoteCatch{
		ID:           raw.ID,
		SpeciesLabel: UnknownLabel,
		Lat:          raw.Lat,
		Lng:          raw.Lng,
	}
	if raw.ImagePath != nil {
		r.ImagePath = *raw.ImagePath
	}
	if raw.SpeciesLabel != nil && strings.TrimSpace(*raw.SpeciesLabel) != "" {
		r.SpeciesLabel = *raw.SpeciesLabel
	}
	if raw.SpeciesConfidence != nil {
		r.SpeciesConfidence = *raw.SpeciesConfidence
	}
	if raw.CreatedAt != nil {
		r.CreatedAt = *raw.CreatedAt
	}
	switch v := raw.UserID.(type) {
	case string:
		r.UserID = v
	case float64:
		r.UserID = fmt.Sprintf("%.0f", v)
	}
	return nil
}

// LabelsEqual compares species labels the way the server does: whitespace-insensitive at the ends.
func LabelsEqual(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
