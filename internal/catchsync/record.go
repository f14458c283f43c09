package catchsync

import (
	"context"
	"strings"

	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/errors"
	"github.com/tphakala/catchsync/internal/gateway"
	"github.com/tphakala/catchsync/internal/logger"
)

// outcome records what happened to one pending record.
type outcome struct {
	created    bool
	reconciled bool
	synced     bool
	failed     bool
	missing    bool
}

// syncRecord brings one pending record in line with the server.
//
// A record that already has a remote id is never created again; only its
// label is pushed. A record without one is uploaded, its server label is
// reconciled, and it is marked synced.
func (e *Engine) syncRecord(ctx context.Context, uid string, rec *catch.LocalCatch) (outcome, error) {
	if rec.HasRemote() {
		return e.pushLabel(ctx, uid, rec)
	}

	exists, err := e.images.Exists(rec.LocalURI)
	if err != nil || !exists {
		missing := &errors.FileMissingError{Path: rec.LocalURI}
		if err != nil {
			e.log.Debug("image existence check failed",
				logger.String("local_id", rec.LocalID),
				logger.Error(err))
		}
		return outcome{missing: true}, missing
	}

	created, err := e.create(ctx, uid, rec)
	if err != nil {
		var missing *errors.FileMissingError
		if errors.As(err, &missing) {
			return outcome{missing: true}, err
		}
		return outcome{failed: true}, err
	}
	out := outcome{created: true}

	local := strings.TrimSpace(rec.SpeciesLabel)
	server := strings.TrimSpace(created.PredictedLabel)

	patch := catch.MarkSynced(created.ID)
	switch {
	case server == "" || catch.LabelsEqual(local, server):
		// nothing to reconcile
	case local == "" || local == catch.UnknownLabel:
		// no user-confirmed label: adopt the server's inference locally
		patch.SpeciesLabel = &server
		out.reconciled = true
	default:
		if err := e.remote.UpdateLabel(ctx, uid, created.ID, local); err != nil {
			e.recordRemoteID(ctx, rec.LocalID, created.ID)
			out.failed = true
			return out, err
		}
		out.reconciled = true
		e.log.Debug("server label corrected",
			logger.String("local_id", rec.LocalID),
			logger.String("server_label", server),
			logger.String("local_label", local))
	}

	synced, err := e.settle(ctx, rec.LocalID, local, created.ID, patch)
	if err != nil {
		e.log.Error("catch uploaded but local record not updated",
			logger.String("local_id", rec.LocalID),
			logger.Int64("remote_id", created.ID),
			logger.Error(err))
		out.failed = true
		return out, err
	}
	out.synced = synced
	return out, nil
}

// settle marks a record synced when its stored label is still the one the
// server now holds. A label edited while the request was in flight keeps the
// record pending with only the server id recorded, so the next pass pushes
// the new label.
func (e *Engine) settle(ctx context.Context, localID, sentLabel string, id int64, patch catch.Patch) (bool, error) {
	unchanged := func(cur catch.LocalCatch) bool {
		return strings.TrimSpace(cur.SpeciesLabel) == sentLabel
	}
	applied, err := e.store.UpdateIf(ctx, localID, unchanged, patch)
	if err != nil || applied {
		return applied, err
	}
	e.log.Info("label changed during sync, catch left pending",
		logger.String("local_id", localID),
		logger.Int64("remote_id", id))
	if err := e.store.Update(ctx, localID, catch.Patch{RemoteID: &id}); err != nil {
		return false, err
	}
	return false, nil
}

func (e *Engine) create(ctx context.Context, uid string, rec *catch.LocalCatch) (gateway.Created, error) {
	img, err := e.images.Open(rec.LocalURI)
	if err != nil {
		return gateway.Created{}, err
	}
	defer img.Close()

	return e.remote.Create(ctx, uid, gateway.UploadFromCatch(rec, img))
}

// pushLabel sends the local label of an already-created record.
func (e *Engine) pushLabel(ctx context.Context, uid string, rec *catch.LocalCatch) (outcome, error) {
	id := *rec.RemoteID
	label := strings.TrimSpace(rec.SpeciesLabel)
	if err := e.remote.UpdateLabel(ctx, uid, id, label); err != nil {
		return outcome{failed: true}, err
	}
	synced, err := e.settle(ctx, rec.LocalID, label, id, catch.MarkSynced(id))
	if err != nil {
		return outcome{reconciled: true, failed: true}, err
	}
	return outcome{reconciled: true, synced: synced}, nil
}

// recordRemoteID stores the server id while leaving the record pending, so the
// next pass retries only the label push.
func (e *Engine) recordRemoteID(ctx context.Context, localID string, id int64) {
	if err := e.store.Update(ctx, localID, catch.Patch{RemoteID: &id}); err != nil {
		e.log.Error("failed to record remote id after label push failure",
			logger.String("local_id", localID),
			logger.Int64("remote_id", id),
			logger.Error(err))
	}
}
