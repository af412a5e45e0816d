package engine

import (
	"regexp"
	"strings"
)

// docBuilder accumulates line-level edits against an original document
// and materializes the result once at pass end. Line indices always
// refer to the original text, so edits never invalidate each other.
type docBuilder struct {
	lines    []string
	replaced map[int]string
	dropped  map[int]bool
	after    map[int][]string
	appended []string
}

func newDocBuilder(text string) *docBuilder {
	return &docBuilder{
		lines:    strings.Split(text, "\n"),
		replaced: make(map[int]string),
		dropped:  make(map[int]bool),
		after:    make(map[int][]string),
	}
}

func (b *docBuilder) replaceLine(i int, line string) {
	b.replaced[i] = line
}

func (b *docBuilder) dropLine(i int) {
	b.dropped[i] = true
}

// insertAfter queues lines to appear directly after original line i,
// in insertion order.
func (b *docBuilder) insertAfter(i int, lines ...string) {
	b.after[i] = append(b.after[i], lines...)
}

func (b *docBuilder) appendLines(lines ...string) {
	b.appended = append(b.appended, lines...)
}

func (b *docBuilder) build() string {
	out := make([]string, 0, len(b.lines)+len(b.appended))
	for i, line := range b.lines {
		if !b.dropped[i] {
			if r, ok := b.replaced[i]; ok {
				out = append(out, r)
			} else {
				out = append(out, line)
			}
		}
		out = append(out, b.after[i]...)
	}
	out = append(out, b.appended...)
	return strings.Join(out, "\n")
}

var sectionHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// sectionAnchor locates the insertion point for new lines under the
// heading with the given text: the last non-blank original line of that
// heading's section. ok is false when no such heading exists.
func (b *docBuilder) sectionAnchor(heading string) (int, bool) {
	start := -1
	for i, line := range b.lines {
		m := sectionHeadingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if start >= 0 {
			// Next heading closes the section.
			return lastContentLine(b.lines, start, i), true
		}
		if strings.EqualFold(m[2], heading) {
			start = i
		}
	}
	if start >= 0 {
		return lastContentLine(b.lines, start, len(b.lines)), true
	}
	return 0, false
}

func lastContentLine(lines []string, start, end int) int {
	anchor := start
	for i := start + 1; i < end; i++ {
		if strings.TrimSpace(lines[i]) != "" {
			anchor = i
		}
	}
	return anchor
}
