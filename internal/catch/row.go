package catch

import "strconv"

// RowKind tags which variant a MergedRow holds.
type RowKind uint8

const (
	RowLocal RowKind = iota + 1
	RowRemote
)

func (k RowKind) String() string {
	switch k {
	case RowLocal:
		return "local"
	case RowRemote:
		return "remote"
	default:
		return "invalid"
	}
}

// RowKey identifies a merged row. Local and remote keys never collide
// because Kind is part of the key.
type RowKey struct {
	Kind     RowKind
	LocalID  string
	RemoteID int64
}

// String renders "local:{local_id}" or "remote:{id}".
func (k RowKey) String() string {
	switch k.Kind {
	case RowLocal:
		return "local:" + k.LocalID
	case RowRemote:
		return "remote:" + strconv.FormatInt(k.RemoteID, 10)
	default:
		return ""
	}
}

// ParseRowKey parses the String form of a RowKey.
func ParseRowKey(s string) (RowKey, bool) {
	switch {
	case len(s) > len("local:") && s[:len("local:")] == "local:":
		return RowKey{Kind: RowLocal, LocalID: s[len("local:"):]}, true
	case len(s) > len("remote:") && s[:len("remote:")] == "remote:":
		id, err := strconv.ParseInt(s[len("remote:"):], 10, 64)
		if err != nil {
			return RowKey{}, false
		}
		return RowKey{Kind: RowRemote, RemoteID: id}, true
	default:
		return RowKey{}, false
	}
}

// MergedRow is one entry of the merged feed. Exactly one of Local or Remote is set.
type MergedRow struct {
	Local  *LocalCatch
	Remote *RemoteCatch
}

// LocalRow wraps a local record.
func LocalRow(c LocalCatch) MergedRow {
	return MergedRow{Local: &c}
}

// RemoteRow wraps a remote record.
func RemoteRow(r RemoteCatch) MergedRow {
	return MergedRow{Remote: &r}
}

// Kind reports which variant the row holds.
func (r MergedRow) Kind() RowKind {
	if r.Local != nil {
		return RowLocal
	}
	return RowRemote
}

// Key returns the dedupe key of the row.
func (r MergedRow) Key() RowKey {
	if r.Local != nil {
		return RowKey{Kind: RowLocal, LocalID: r.Local.LocalID}
	}
	if r.Remote != nil {
		return RowKey{Kind: RowRemote, RemoteID: r.Remote.ID}
	}
	return RowKey{}
}

// Label returns the species label of whichever variant is set.
func (r MergedRow) Label() string {
	if r.Local != nil {
		return r.Local.SpeciesLabel
	}
	if r.Remote != nil {
		return r.Remote.SpeciesLabel
	}
	return ""
}

// CreatedAt returns the creation timestamp of whichever variant is set.
func (r MergedRow) CreatedAt() string {
	if r.Local != nil {
		return r.Local.CreatedAt
	}
	if r.Remote != nil {
		return r.Remote.CreatedAt
	}
	return ""
}
