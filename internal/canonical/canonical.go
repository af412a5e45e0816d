// Package canonical normalizes task titles for change detection.
//
// Document titles accumulate volatile metadata (date stamps, recurrence,
// priority glyphs) that the remote service never sees. Stripping it before
// hashing lets a title coming back from the remote side compare equal to
// the document line it originated from.
package canonical

import (
	"regexp"
	"strings"
)

var (
	// Date stamps in the common task-plugin notation: completion (✅),
	// creation (➕), start (🛫), scheduled (⏳), due (📅).
	dateStampRe = regexp.MustCompile(`[✅➕🛫⏳📅]\s*\d{4}-\d{2}-\d{2}`)

	// Recurrence phrase, e.g. "🔁 every week on Monday". Runs to the next
	// metadata glyph or end of line.
	recurrenceRe = regexp.MustCompile(`🔁[^✅➕🛫⏳📅⏫🔼🔽🔺⏬#]*`)

	priorityRe = regexp.MustCompile(`[⏫🔼🔽🔺⏬]`)

	spacesRe = regexp.MustCompile(`\s{2,}`)
)

// Canonicalize strips volatile metadata tokens from a title and collapses
// the leftover whitespace. The result is what gets hashed and what gets
// sent to the remote service.
func Canonicalize(title string) string {
	s := dateStampRe.ReplaceAllString(title, "")
	s = recurrenceRe.ReplaceAllString(s, "")
	s = priorityRe.ReplaceAllString(s, "")
	s = spacesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// HashTask produces the opaque change-detection string for a task. It is
// compared for equality only; the pipe-joined form is the persisted legacy
// format, so it must stay byte-stable across releases.
func HashTask(title string, completed bool, dueDate string) string {
	bit := "0"
	if completed {
		bit = "1"
	}
	return bit + "|" + Canonicalize(title) + "|" + dueDate
}

// HashChecklist is the two-argument analogue of HashTask for nested
// checklist items, which carry no due date.
func HashChecklist(title string, checked bool) string {
	bit := "0"
	if checked {
		bit = "1"
	}
	return bit + "|" + Canonicalize(title)
}
