package canonical

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "Buy milk", "Buy milk"},
		{"completion stamp", "Buy milk ✅ 2024-01-15", "Buy milk"},
		{"creation stamp", "Buy milk ➕2024-01-10", "Buy milk"},
		{"start and scheduled", "Buy milk 🛫 2024-01-11 ⏳ 2024-01-12", "Buy milk"},
		{"due stamp", "Buy milk 📅 2024-01-20", "Buy milk"},
		{"recurrence phrase", "Water plants 🔁 every week on Monday", "Water plants"},
		{"recurrence before due", "Water plants 🔁 every day 📅 2024-02-01", "Water plants"},
		{"priority glyphs", "Ship release ⏫", "Ship release"},
		{"all of it", "Ship release 🔺 🔁 every month ➕ 2024-01-01 📅 2024-03-01 ✅ 2024-03-02", "Ship release"},
		{"interior whitespace collapsed", "Buy  milk   now", "Buy milk now"},
		{"tag survives", "Write report #Work", "Write report #Work"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.input); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestHashTaskStability(t *testing.T) {
	// The same semantic task must hash identically no matter which volatile
	// decorations the raw line carried.
	base := HashTask("Buy milk", false, "2024-01-01")
	decorated := HashTask("Buy milk ➕ 2023-12-25 ⏫", false, "2024-01-01")
	if base != decorated {
		t.Errorf("hash not stable under metadata decoration: %q vs %q", base, decorated)
	}
}

func TestHashTaskDiscriminates(t *testing.T) {
	h := HashTask("Buy milk", false, "2024-01-01")
	if h == HashTask("Buy milk", true, "2024-01-01") {
		t.Error("completion flag not reflected in hash")
	}
	if h == HashTask("Buy milk", false, "") {
		t.Error("due date not reflected in hash")
	}
	if h == HashTask("Buy bread", false, "2024-01-01") {
		t.Error("title not reflected in hash")
	}
}

func TestHashChecklist(t *testing.T) {
	if HashChecklist("Pack socks", false) == HashChecklist("Pack socks", true) {
		t.Error("checked flag not reflected in checklist hash")
	}
	if HashChecklist("Pack socks ✅ 2024-01-01", true) != HashChecklist("Pack socks", true) {
		t.Error("checklist hash not canonicalized")
	}
}
