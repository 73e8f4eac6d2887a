package token

import (
	"strings"
	"testing"
)

func TestIssue_Shape(t *testing.T) {
	tok := Issue()
	if !strings.HasPrefix(tok, Prefix) {
		t.Errorf("expected %q prefix, got %q", Prefix, tok)
	}
	if len(tok) != len(Prefix)+RandomLength {
		t.Errorf("expected length %d, got %d", len(Prefix)+RandomLength, len(tok))
	}
	for _, r := range tok[len(Prefix):] {
		if !strings.ContainsRune(Alphabet, r) {
			t.Errorf("character %q outside alphabet", r)
		}
	}
}

func TestIssue_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := Issue()
		if seen[tok] {
			t.Fatalf("duplicate token after %d issues: %s", i, tok)
		}
		seen[tok] = true
	}
}

func TestIssue_CoversAlphabet(t *testing.T) {
	// 2000 tokens × 18 chars: with uniform sampling every alphabet character
	// shows up; a missing one means the sampler skips part of the range.
	counts := make(map[rune]int, len(Alphabet))
	for i := 0; i < 2000; i++ {
		for _, r := range Issue()[len(Prefix):] {
			counts[r]++
		}
	}
	for _, r := range Alphabet {
		if counts[r] == 0 {
			t.Errorf("character %q never issued", r)
		}
	}
	if len(counts) != len(Alphabet) {
		t.Errorf("issued %d distinct characters, alphabet has %d", len(counts), len(Alphabet))
	}
}

func TestValid(t *testing.T) {
	if !Valid(Issue()) {
		t.Error("issued token should validate")
	}

	bad := []string{
		"",
		"chn",
		"chnshort",
		"xyz" + strings.Repeat("a", RandomLength),
		Prefix + strings.Repeat("a", RandomLength+1),
		Prefix + strings.Repeat("!", RandomLength),
	}
	for _, tok := range bad {
		if Valid(tok) {
			t.Errorf("expected %q invalid", tok)
		}
	}
}
