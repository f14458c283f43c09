package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/catchsync/internal/catch"
)

func TestBuildCollection(t *testing.T) {
	rec := func(label, at string) catch.LocalCatch {
		return catch.LocalCatch{LocalID: label + at, SpeciesLabel: label, CreatedAt: at}
	}
	local := []catch.LocalCatch{
		rec("perch", "2024-06-03T10:00:00Z"),
		rec("Pike", "2024-06-02T10:00:00Z"),
		rec("Perch", "2024-06-01T10:00:00Z"),
		rec("Unknown", "2024-05-01T10:00:00Z"),
		rec("", "2024-05-01T10:00:00Z"),
		rec("PIKE", "2024-06-05T10:00:00Z"),
	}

	got := buildCollection(local)
	require.Equal(t, 2, got.Total)
	assert.Equal(t, "Perch", got.Species[0].Label, "named after the earliest catch")
	assert.Equal(t, 2, got.Species[0].Count)
	assert.Equal(t, "2024-06-01", got.Species[0].FirstCaught.Format("2006-01-02"))
	assert.Equal(t, "Pike", got.Species[1].Label)
	assert.Equal(t, 2, got.Species[1].Count)
}

func TestCollectionFromStore(t *testing.T) {
	fx := newFixture(t, "")
	_, err := fx.catalog.Capture(t.Context(), CaptureRequest{ImagePath: fx.picked(t, "a.jpg"), Label: "Bream"})
	require.NoError(t, err)

	got, err := fx.catalog.Collection(t.Context())
	require.NoError(t, err)
	require.Len(t, got.Species, 1)
	assert.Equal(t, "Bream", got.Species[0].Label)
}
