package chat

import (
	"testing"
)

func TestFilter_ContainsBanned(t *testing.T) {
	f := NewFilter([]string{"spam", "abuse"})

	cases := []struct {
		text string
		want bool
	}{
		{"this is spam", true},
		{"this is SPAM", true},
		{"spammy prefix", true},
		{"a clean message", false},
		{"", false},
		{"sp am", false},
	}

	for _, c := range cases {
		if got := f.ContainsBanned(c.text); got != c.want {
			t.Errorf("ContainsBanned(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestFilter_Redact(t *testing.T) {
	f := NewFilter([]string{"spam"})

	got := f.Redact("this is spam")
	if got != "this is ****" {
		t.Errorf("Expected 'this is ****', got %q", got)
	}

	// Mask length equals term length and the rest is untouched.
	got = f.Redact("SPAM and more Spam")
	if got != "**** and more ****" {
		t.Errorf("Expected '**** and more ****', got %q", got)
	}
}

func TestFilter_RedactFoldsMultibyteCase(t *testing.T) {
	// 'İ' (U+0130) lowercases to a shorter byte sequence, so folding must
	// happen rune by rune. Redaction and classification have to agree.
	f := NewFilter([]string{"istanbul", "über"})

	if !f.ContainsBanned("İSTANBUL here") {
		t.Fatal("Uppercase multibyte form should be classified as banned")
	}
	if got := f.Redact("İSTANBUL here"); got != "******** here" {
		t.Errorf("Expected '******** here', got %q", got)
	}
	if got := f.Redact("ÜBER alles"); got != "**** alles" {
		t.Errorf("Expected '**** alles', got %q", got)
	}
}

func TestFilter_RedactIdempotent(t *testing.T) {
	f := NewFilter([]string{"spam", "abuse"})

	once := f.Redact("spam abuse spam clean")
	twice := f.Redact(once)
	if once != twice {
		t.Errorf("Redact is not idempotent: %q != %q", once, twice)
	}
}

func TestFilter_ReplaceWords(t *testing.T) {
	f := NewFilter([]string{"spam"})

	f.ReplaceWords([]string{"BADWORD", "  ", ""})

	if f.ContainsBanned("this is spam") {
		t.Error("Old term should no longer be banned after replacement")
	}
	if !f.ContainsBanned("contains badword here") {
		t.Error("New term should be banned after replacement")
	}
	if len(f.Words()) != 1 {
		t.Errorf("Expected 1 term after replacement, got %d", len(f.Words()))
	}
}

func TestFilter_EmptySet(t *testing.T) {
	f := NewFilter(nil)

	if f.ContainsBanned("anything at all") {
		t.Error("Empty filter should never classify text as banned")
	}
	if got := f.Redact("anything at all"); got != "anything at all" {
		t.Errorf("Empty filter should not alter text, got %q", got)
	}
}
