package task

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Marker id prefixes. An id with any other prefix belongs to some other
// tool and is left untouched.
const (
	TaskMarkerPrefix      = "mtd_"
	ChecklistMarkerPrefix = "mtdc_"
)

// MarkerKind identifies which grammar matched a marker.
type MarkerKind string

const (
	MarkerComment       MarkerKind = "comment"        // <!-- mtd:id -->  (emitted form)
	MarkerBlockRef      MarkerKind = "block-ref"      // ^id at end of line (legacy)
	MarkerLegacyComment MarkerKind = "legacy-comment" // <!-- mstd-id:id --> (legacy)
)

// MarkerMatch is the result of running a marker grammar over a line.
type MarkerMatch struct {
	Kind  MarkerKind
	ID    string
	Start int
	End   int
}

// markerGrammar matches one embedded-marker syntax. Grammars are tried in
// priority order; the first match wins.
type markerGrammar struct {
	kind MarkerKind
	re   *regexp.Regexp
}

// Ordered by precedence: current comment form, then the caret
// block-reference, then the old comment name. Legacy forms are recognized
// on parse but never emitted.
var markerGrammars = []markerGrammar{
	{MarkerComment, regexp.MustCompile(`\s*<!--\s*mtd:([A-Za-z0-9_]+)\s*-->`)},
	{MarkerBlockRef, regexp.MustCompile(`\s+\^([A-Za-z0-9_]+)\s*$`)},
	{MarkerLegacyComment, regexp.MustCompile(`\s*<!--\s*mstd-id:([A-Za-z0-9_]+)\s*-->`)},
}

// matchMarker finds the highest-priority marker in text, or ok=false.
func matchMarker(text string) (MarkerMatch, bool) {
	for _, g := range markerGrammars {
		loc := g.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		return MarkerMatch{
			Kind:  g.kind,
			ID:    text[loc[2]:loc[3]],
			Start: loc[0],
			End:   loc[1],
		}, true
	}
	return MarkerMatch{}, false
}

// ownMarker reports whether id carries one of our prefixes. Foreign ids
// are ignored so we never adopt another tool's identity tokens.
func ownMarker(id string) bool {
	return strings.HasPrefix(id, TaskMarkerPrefix) || strings.HasPrefix(id, ChecklistMarkerPrefix)
}

// NewTaskMarkerID mints a fresh task marker id: the prefix plus 8
// lowercase characters of uuid entropy.
func NewTaskMarkerID() string {
	return TaskMarkerPrefix + shortID()
}

// NewChecklistMarkerID mints a fresh checklist-item marker id.
func NewChecklistMarkerID() string {
	return ChecklistMarkerPrefix + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// RenderMarker produces the emitted wire form for a marker id.
func RenderMarker(id string) string {
	return "<!-- mtd:" + id + " -->"
}
