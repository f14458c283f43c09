package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/tphakala/catchsync/internal/catch"
)

// Species is one entry of the collection.
type Species struct {
	Label       string    `json:"label"`
	FirstCaught time.Time `json:"first_caught"`
	Count       int       `json:"count"`
}

// Collection lists every species caught, ordered by first catch.
type Collection struct {
	Species []Species `json:"species"`
	Total   int       `json:"total"`
}

// Collection builds the species collection from local records. Labels that
// differ only in case fold into one entry named after the earliest catch.
// Unlabelled catches are left out.
func (c *Catalog) Collection(ctx context.Context) (Collection, error) {
	local, err := c.store.List(ctx)
	if err != nil {
		return Collection{}, err
	}
	return buildCollection(local), nil
}

func buildCollection(local []catch.LocalCatch) Collection {
	fold := cases.Fold()
	index := map[string]int{}
	var out Collection

	for i := range local {
		rec := &local[i]
		label := strings.TrimSpace(rec.SpeciesLabel)
		if label == "" || catch.LabelsEqual(label, catch.UnknownLabel) {
			continue
		}
		caught := rec.Created()
		key := fold.String(label)

		pos, seen := index[key]
		if !seen {
			index[key] = len(out.Species)
			out.Species = append(out.Species, Species{Label: label, FirstCaught: caught, Count: 1})
			continue
		}
		sp := &out.Species[pos]
		sp.Count++
		if !caught.IsZero() && (sp.FirstCaught.IsZero() || caught.Before(sp.FirstCaught)) {
			sp.FirstCaught = caught
			sp.Label = label
		}
	}

	slices.SortStableFunc(out.Species, func(a, b Species) int {
		return a.FirstCaught.Compare(b.FirstCaught)
	})
	out.Total = len(out.Species)
	return out
}
