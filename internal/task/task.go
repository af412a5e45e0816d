// Package task implements the task line codec: parsing document lines
// into structured records and rendering records back into lines, byte
// stable when nothing semantic changed.
package task

import (
	"regexp"
	"strings"

	"github.com/tasksync/mtd/internal/canonical"
)

var (
	// taskLineRe matches a checkbox task line: indent, bullet, box, rest.
	taskLineRe = regexp.MustCompile(`^(\s*)([-*+])\s+\[( |x|X)\]\s(.*)$`)

	headingRe = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*$`)

	// dueTokenRe matches an embedded due-date token. When duplicated, the
	// last occurrence wins and all occurrences are stripped.
	dueTokenRe = regexp.MustCompile(`\s*📅\s*(\d{4}-\d{2}-\d{2})`)
)

// Record is one parsed task or checklist line. Records are rebuilt on
// every parse; only the marker id and derived hashes outlive a pass.
type Record struct {
	Line      int    // index into the source document's lines
	Indent    string // preserved verbatim on render
	Bullet    string // "-", "*" or "+", preserved verbatim
	Completed bool
	Title     string
	DueDate   string // "YYYY-MM-DD" or empty
	Tag       string // routing tag without the leading '#', or empty
	MarkerID  string // empty means never synced
	Heading   string // enclosing heading at parse time
}

// IsChecklist reports whether the record carries a checklist marker.
func (r *Record) IsChecklist() bool {
	return strings.HasPrefix(r.MarkerID, ChecklistMarkerPrefix)
}

// LocalHash computes the record's content hash for change detection.
func (r *Record) LocalHash() string {
	return canonical.HashTask(r.Title, r.Completed, r.DueDate)
}

// ChecklistHash computes the hash at checklist granularity.
func (r *Record) ChecklistHash() string {
	return canonical.HashChecklist(r.Title, r.Completed)
}

// Render serializes the record back into a document line:
// indent + bullet + checkbox + title + due + tag + marker, the marker
// always last so repeated renders are idempotent.
func (r *Record) Render() string {
	var b strings.Builder
	b.WriteString(r.Indent)
	b.WriteString(r.Bullet)
	if r.Completed {
		b.WriteString(" [x] ")
	} else {
		b.WriteString(" [ ] ")
	}
	b.WriteString(r.Title)
	if r.DueDate != "" {
		b.WriteString(" 📅 ")
		b.WriteString(r.DueDate)
	}
	if r.Tag != "" {
		b.WriteString(" #")
		b.WriteString(r.Tag)
	}
	if r.MarkerID != "" {
		b.WriteString(" ")
		b.WriteString(RenderMarker(r.MarkerID))
	}
	return b.String()
}

// Parser parses documents with a fixed set of recognized routing tags.
// Only configured tags are extracted; anything else in the document stays
// part of the title so unrelated tags are never clobbered.
type Parser struct {
	Tags []string
}

// ParseLine parses a single line at the given index. ok is false when the
// line is not a task, or when stripping leaves an empty title (a line
// that only ever held bookkeeping is not a real task).
func (p *Parser) ParseLine(line string, index int, heading string) (Record, bool) {
	m := taskLineRe.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false
	}

	rec := Record{
		Line:      index,
		Indent:    m[1],
		Bullet:    m[2],
		Completed: m[3] == "x" || m[3] == "X",
		Heading:   heading,
	}
	rest := m[4]

	// Marker first: grammars in priority order, foreign ids left in place.
	if match, ok := matchMarker(rest); ok && ownMarker(match.ID) {
		rec.MarkerID = match.ID
		rest = rest[:match.Start] + rest[match.End:]
	}

	// Routing tag: earliest occurrence of any configured tag.
	if tag, stripped, ok := p.extractTag(rest); ok {
		rec.Tag = tag
		rest = stripped
	}

	// Due date token, last occurrence wins.
	if dates := dueTokenRe.FindAllStringSubmatch(rest, -1); dates != nil {
		rec.DueDate = dates[len(dates)-1][1]
		rest = dueTokenRe.ReplaceAllString(rest, "")
	}

	rec.Title = strings.TrimSpace(rest)
	if rec.Title == "" {
		return Record{}, false
	}
	return rec, true
}

// extractTag finds the earliest configured tag in text and removes it.
func (p *Parser) extractTag(text string) (tag, stripped string, ok bool) {
	best := -1
	var bestRe *regexp.Regexp
	for _, t := range p.Tags {
		if t == "" {
			continue
		}
		re := regexp.MustCompile(`(^|\s)#` + regexp.QuoteMeta(t) + `(\s|$)`)
		loc := re.FindStringIndex(text)
		if loc != nil && (best == -1 || loc[0] < best) {
			best = loc[0]
			tag = t
			bestRe = re
		}
	}
	if best == -1 {
		return "", text, false
	}
	stripped = bestRe.ReplaceAllString(text, " ")
	return tag, stripped, true
}

// ParseDocument parses every task line in text. Heading lines update the
// running heading context consumed by subsequent tasks.
func (p *Parser) ParseDocument(text string) []Record {
	var records []Record
	heading := ""
	for i, line := range strings.Split(text, "\n") {
		if h := headingRe.FindStringSubmatch(line); h != nil {
			heading = h[1]
			continue
		}
		if rec, ok := p.ParseLine(line, i, heading); ok {
			records = append(records, rec)
		}
	}
	return records
}

// ScrubTitle strips this system's own bookkeeping from a title before it
// is sent to the remote service: markers (any grammar, own prefixes
// only), configured routing tags, due tokens, and volatile metadata.
// Remote state must never echo document-local bookkeeping.
func (p *Parser) ScrubTitle(title string) string {
	for {
		match, ok := matchMarker(title)
		if !ok || !ownMarker(match.ID) {
			break
		}
		title = title[:match.Start] + title[match.End:]
	}
	if _, stripped, ok := p.extractTag(title); ok {
		title = stripped
	}
	title = dueTokenRe.ReplaceAllString(title, "")
	return canonical.Canonicalize(title)
}
