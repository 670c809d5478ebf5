// Package level models the total order log levels are defined over.
//
// The level registry itself — the mapping from names to numeric
// severities, and any compatibility aliasing — is an external
// collaborator and out of scope for this module (see spec §1). What
// this package owns is the narrow contract the pipeline depends on:
// levels are totally ordered by a numeric id where 0 is the highest
// severity, and the two filter-only sentinels (None, All) must never
// be written to a record.
package level

// Level is a single severity value in the total order. ID 0 is the
// highest severity; larger IDs are less severe.
type Level struct {
	ID   int
	Name string
}

// Sentinel names reserved for filter predicates. A level carrying one
// of these names matches "no level" or "every level" when used as a
// filter bound, but is never a real record's level.
const (
	SentinelNone = "None"
	SentinelAll  = "All"
)

// IsSentinel reports whether l is one of the filter-only sentinels.
func IsSentinel(l Level) bool {
	return l.Name == SentinelNone || l.Name == SentinelAll
}

// Fold maps the None/All sentinels to the highest-severity regular
// level before a record carrying l is emitted. regularAscending must
// be sorted ascending by ID (most severe first); levels that are
// already regular are returned unchanged. When regularAscending is
// empty there is nothing to fold to, and a sentinel is also returned
// unchanged. Folding only ever happens at the point a record is
// published, so once a regular level set is supplied a store file or a
// forwarded frame never carries a sentinel level.
func Fold(l Level, regularAscending []Level) Level {
	if !IsSentinel(l) || len(regularAscending) == 0 {
		return l
	}
	return regularAscending[0]
}
