package engine

import "time"

// Winner says which side's field values get rendered for a task that
// exists on both sides.
type Winner int

const (
	WinnerRemote Winner = iota
	WinnerLocal
)

func (w Winner) String() string {
	if w == WinnerLocal {
		return "local"
	}
	return "remote"
}

// TaskSnapshot is one side's current state, reduced to what the merge
// heuristic needs. ModifiedAt is only meaningful for the remote side;
// the document has no per-line timestamps.
type TaskSnapshot struct {
	Hash       string
	ModifiedAt time.Time
}

// SyncRecord is what the mapping store remembered from the last pass.
type SyncRecord struct {
	LocalHash        string
	RemoteHash       string
	RemoteModifiedAt time.Time
}

// Decision is the outcome of the merge heuristic, with the intermediate
// signals exposed for logging and tests.
type Decision struct {
	Winner        Winner
	LocalChanged  bool
	RemoteChanged bool

	// RemoteStale flags the service-side inconsistency where the remote
	// modification clock did not advance but the content hash disagrees
	// with what we last recorded. Resolved in favor of local.
	RemoteStale bool
}

// DecideWinner is the conflict-resolution heuristic. It is deterministic
// and depends only on its inputs:
//
//   - a local change always wins, regardless of remote timestamps;
//   - otherwise a remote change wins;
//   - otherwise a stale remote signal resolves local;
//   - otherwise remote is canonical (covers server-assigned defaults).
func DecideWinner(local, remote TaskSnapshot, last SyncRecord) Decision {
	d := Decision{}
	d.LocalChanged = local.Hash != last.LocalHash
	d.RemoteStale = remote.ModifiedAt.Equal(last.RemoteModifiedAt) && remote.Hash != last.RemoteHash
	d.RemoteChanged = !d.RemoteStale &&
		(remote.Hash != last.RemoteHash || remote.ModifiedAt.After(last.RemoteModifiedAt))

	switch {
	case d.LocalChanged:
		d.Winner = WinnerLocal
	case d.RemoteChanged:
		d.Winner = WinnerRemote
	case d.RemoteStale:
		d.Winner = WinnerLocal
	default:
		d.Winner = WinnerRemote
	}
	return d
}
