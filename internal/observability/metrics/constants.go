// Package metrics provides constants used across metric definitions.
package metrics

// Gateway operation label values.
const (
	// OpCreate is the multipart catch upload.
	OpCreate = "create"
	// OpUpdateLabel is the label push, PATCH with PUT fallback.
	OpUpdateLabel = "update_label"
	// OpList fetches the remote catch page.
	OpList = "list"
	// OpGet fetches one remote catch.
	OpGet = "get"
	// OpDelete deletes a remote catch.
	OpDelete = "delete"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sync record outcome label values.
const (
	OutcomeCreated        = "created"
	OutcomeReconciled     = "reconciled"
	OutcomeSynced         = "synced"
	OutcomeFailed         = "failed"
	OutcomeSkippedMissing = "skipped_missing"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
