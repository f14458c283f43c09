// Package feed builds the single, duplicate-free list of catches shown to the
// user from local records and the remote page.
package feed

import (
	"slices"

	"github.com/tphakala/catchsync/internal/catch"
)

// Merge combines the remote page and the local records into display rows.
//
// Without an identity every local record is shown in store order. With one,
// local records that are not yet reflected on the server come first, in store
// order, followed by the remote rows, newest id first. A local record is
// reflected once it is synced or its remote id appears in the remote page.
// Rows are deduplicated by key with the first occurrence kept.
func Merge(remote []catch.RemoteCatch, local []catch.LocalCatch, identified bool) []catch.MergedRow {
	rows := make([]catch.MergedRow, 0, len(local)+len(remote))

	if !identified {
		for i := range local {
			rows = append(rows, catch.LocalRow(local[i]))
		}
		return dedupe(rows)
	}

	remoteIDs := make(map[int64]struct{}, len(remote))
	for i := range remote {
		remoteIDs[remote[i].ID] = struct{}{}
	}

	for i := range local {
		if visibleLocal(&local[i], remoteIDs) {
			rows = append(rows, catch.LocalRow(local[i]))
		}
	}

	sorted := slices.Clone(remote)
	slices.SortStableFunc(sorted, func(a, b catch.RemoteCatch) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
	for i := range sorted {
		rows = append(rows, catch.RemoteRow(sorted[i]))
	}
	return dedupe(rows)
}

func visibleLocal(c *catch.LocalCatch, remoteIDs map[int64]struct{}) bool {
	if c.Synced {
		return false
	}
	if c.RemoteID == nil {
		return true
	}
	_, onServer := remoteIDs[*c.RemoteID]
	return !onServer
}

func dedupe(rows []catch.MergedRow) []catch.MergedRow {
	seen := make(map[catch.RowKey]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
