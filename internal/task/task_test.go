package task

import (
	"strings"
	"testing"
)

func TestParseLine_Basic(t *testing.T) {
	p := &Parser{Tags: []string{"Work", "Home"}}

	rec, ok := p.ParseLine("- [ ] Buy milk", 3, "Inbox")
	if !ok {
		t.Fatal("expected task line to parse")
	}
	if rec.Title != "Buy milk" || rec.Completed || rec.Line != 3 || rec.Heading != "Inbox" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Bullet != "-" || rec.Indent != "" {
		t.Errorf("bullet/indent not preserved: %+v", rec)
	}
}

func TestParseLine_Completed(t *testing.T) {
	p := &Parser{}
	for _, box := range []string{"x", "X"} {
		rec, ok := p.ParseLine("- ["+box+"] Done thing", 0, "")
		if !ok || !rec.Completed {
			t.Errorf("[%s] should parse as completed", box)
		}
	}
}

func TestParseLine_NotATask(t *testing.T) {
	p := &Parser{}
	for _, line := range []string{
		"just text",
		"## Heading",
		"- bullet without box",
		"- [y] bad box char",
	} {
		if _, ok := p.ParseLine(line, 0, ""); ok {
			t.Errorf("%q should not parse as a task", line)
		}
	}
}

func TestParseLine_EmptyTitleDropped(t *testing.T) {
	p := &Parser{Tags: []string{"Work"}}
	if _, ok := p.ParseLine("- [ ] #Work <!-- mtd:mtd_abc12345 -->", 0, ""); ok {
		t.Error("line with empty title after stripping should be dropped")
	}
}

func TestParseLine_MarkerGrammarPrecedence(t *testing.T) {
	p := &Parser{}

	tests := []struct {
		name string
		line string
		want string
	}{
		{"comment form", "- [ ] Task <!-- mtd:mtd_aaaa1111 -->", "mtd_aaaa1111"},
		{"block ref form", "- [ ] Task ^mtd_bbbb2222", "mtd_bbbb2222"},
		{"legacy comment form", "- [ ] Task <!-- mstd-id:mtd_cccc3333 -->", "mtd_cccc3333"},
		{"comment beats block ref", "- [ ] Task <!-- mtd:mtd_aaaa1111 --> ^mtd_bbbb2222", "mtd_aaaa1111"},
		{"checklist prefix accepted", "  - [ ] Item <!-- mtd:mtdc_dddd4444 -->", "mtdc_dddd4444"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := p.ParseLine(tt.line, 0, "")
			if !ok {
				t.Fatal("line should parse")
			}
			if rec.MarkerID != tt.want {
				t.Errorf("marker = %q, want %q", rec.MarkerID, tt.want)
			}
		})
	}
}

func TestParseLine_ForeignMarkerIgnored(t *testing.T) {
	p := &Parser{}
	rec, ok := p.ParseLine("- [ ] Task <!-- mtd:other_tool123 -->", 0, "")
	if !ok {
		t.Fatal("line should parse")
	}
	if rec.MarkerID != "" {
		t.Errorf("foreign marker should yield empty marker id, got %q", rec.MarkerID)
	}
	if !strings.Contains(rec.Title, "other_tool123") {
		t.Errorf("foreign marker should stay in title, got %q", rec.Title)
	}
}

func TestParseLine_TagExtraction(t *testing.T) {
	p := &Parser{Tags: []string{"Work"}}

	rec, _ := p.ParseLine("- [ ] Write report #Work", 0, "")
	if rec.Tag != "Work" || rec.Title != "Write report" {
		t.Errorf("tag extraction failed: %+v", rec)
	}

	// Unconfigured tags stay in the title.
	rec, _ = p.ParseLine("- [ ] Write report #Personal", 0, "")
	if rec.Tag != "" || !strings.Contains(rec.Title, "#Personal") {
		t.Errorf("unconfigured tag should not be extracted: %+v", rec)
	}

	// A configured tag name must not match as a prefix of a longer tag.
	rec, _ = p.ParseLine("- [ ] Write report #Workout", 0, "")
	if rec.Tag != "" {
		t.Errorf("prefix of longer tag should not match: %+v", rec)
	}
}

func TestParseLine_DueDateLastWins(t *testing.T) {
	p := &Parser{}
	rec, _ := p.ParseLine("- [ ] Pay rent 📅 2024-01-01 📅 2024-02-01", 0, "")
	if rec.DueDate != "2024-02-01" {
		t.Errorf("due date = %q, want last occurrence", rec.DueDate)
	}
	if strings.Contains(rec.Title, "📅") {
		t.Errorf("due tokens should be stripped from title: %q", rec.Title)
	}
}

func TestParseDocument_HeadingContext(t *testing.T) {
	p := &Parser{}
	doc := "# Top\n- [ ] one\n## Inbox\n- [ ] two\n- [ ] three\n### Deep\n- [ ] four\n"
	recs := p.ParseDocument(doc)
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	wantHeadings := []string{"Top", "Inbox", "Inbox", "Deep"}
	for i, w := range wantHeadings {
		if recs[i].Heading != w {
			t.Errorf("record %d heading = %q, want %q", i, recs[i].Heading, w)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	p := &Parser{Tags: []string{"Work"}}
	lines := []string{
		"- [ ] Buy milk",
		"- [x] Ship release 📅 2024-03-01 #Work <!-- mtd:mtd_aaaa1111 -->",
		"  * [ ] Nested item <!-- mtd:mtdc_bbbb2222 -->",
		"\t+ [X] Tabbed thing",
	}
	for _, line := range lines {
		rec, ok := p.ParseLine(line, 0, "")
		if !ok {
			t.Fatalf("line should parse: %q", line)
		}
		rendered := rec.Render()
		rec2, ok := p.ParseLine(rendered, 0, "")
		if !ok {
			t.Fatalf("rendered line should re-parse: %q", rendered)
		}
		if rendered2 := rec2.Render(); rendered2 != rendered {
			t.Errorf("render not idempotent:\n first: %q\nsecond: %q", rendered, rendered2)
		}
	}
}

func TestMintMarkerIDs(t *testing.T) {
	id := NewTaskMarkerID()
	if !strings.HasPrefix(id, TaskMarkerPrefix) || len(id) != len(TaskMarkerPrefix)+8 {
		t.Errorf("bad task marker id: %q", id)
	}
	if id != strings.ToLower(id) {
		t.Errorf("marker id must be lowercase: %q", id)
	}
	cid := NewChecklistMarkerID()
	if !strings.HasPrefix(cid, ChecklistMarkerPrefix) || len(cid) != len(ChecklistMarkerPrefix)+8 {
		t.Errorf("bad checklist marker id: %q", cid)
	}
	if NewTaskMarkerID() == NewTaskMarkerID() {
		t.Error("marker ids should not collide")
	}
}

func TestScrubTitle(t *testing.T) {
	p := &Parser{Tags: []string{"Work"}}
	got := p.ScrubTitle("Write report #Work 📅 2024-01-01 ⏫ <!-- mtd:mtd_aaaa1111 -->")
	if got != "Write report" {
		t.Errorf("ScrubTitle = %q, want %q", got, "Write report")
	}
}
