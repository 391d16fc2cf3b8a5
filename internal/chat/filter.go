package chat

import (
	"strings"
	"sync"
	"unicode"
)

// maskRune is the character banned terms are replaced with.
const maskRune = '*'

// Filter maintains the mutable set of banned terms and classifies or redacts
// message text. Matching is case-insensitive substring containment; terms are
// normalized to lowercase on entry.
type Filter struct {
	mu    sync.RWMutex
	words map[string]struct{}
}

// NewFilter creates a filter seeded with the given banned terms.
func NewFilter(words []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	f.ReplaceWords(words)
	return f
}

// ContainsBanned reports whether text contains any banned term.
func (f *Filter) ContainsBanned(text string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	lower := strings.ToLower(text)
	for w := range f.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Redact replaces every occurrence of every banned term with an equal-length
// run of the mask character. Matching folds case rune by rune, so terms whose
// uppercase form occupies a different number of bytes are still caught.
// Redact(Redact(x)) == Redact(x) since mask runs contain no banned terms.
func (f *Filter) Redact(text string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.words) == 0 {
		return text
	}

	runes := []rune(text)
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = unicode.ToLower(r)
	}

	for w := range f.words {
		wr := []rune(w)
		if len(wr) == 0 || len(wr) > len(runes) {
			continue
		}
		for i := 0; i+len(wr) <= len(runes); {
			if !runesEqual(folded[i:i+len(wr)], wr) {
				i++
				continue
			}
			for j := range wr {
				runes[i+j] = maskRune
				folded[i+j] = maskRune
			}
			i += len(wr)
		}
	}
	return string(runes)
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReplaceWords atomically swaps the whole banned-term set. Terms are
// lowercased and blank entries are dropped.
func (f *Filter) ReplaceWords(words []string) {
	next := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		next[w] = struct{}{}
	}

	f.mu.Lock()
	f.words = next
	f.mu.Unlock()
}

// Words returns the current banned-term set as a sorted-free snapshot.
func (f *Filter) Words() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.words))
	for w := range f.words {
		out = append(out, w)
	}
	return out
}
