// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// Censor holds a precomputed list of censored-word variants and answers
// substring containment queries against it. Build one at startup and pass it
// by reference; the word list never changes after construction.
//
// Each base word is expanded into every literal string reachable through the
// per-character substitution table (leetspeak-style look-alikes), so a random
// card number like "B4RD" is caught by the base word "bard".
type Censor struct {
	words []string
}

// characterVariants maps a letter to the visual look-alikes a generated
// identifier could accidentally spell it with. Non-alphanumeric substitutes
// are excluded up front since card numbers only carry [0-9A-Z].
var characterVariants = map[rune][]rune{
	'a': {'a', '4'},
	'b': {'b', '8'},
	'e': {'e', '3'},
	'g': {'g', '9'},
	'i': {'i', '1', 'l'},
	'l': {'l', '1', 'i'},
	'o': {'o', '0'},
	's': {'s', '5'},
	't': {'t', '7'},
	'z': {'z', '2'},
}

// NewCensor builds a Censor from the base word set plus any custom words.
func NewCensor(logger zerolog.Logger, customWords ...string) *Censor {
	c := &Censor{}
	c.rebuild(customWords)
	logger.Info().Int("words", len(c.words)).Msg("generated profanity wordlist")
	return c
}

// ContainsProfanity reports whether any censored variant occurs as a
// substring of s. Matching is case-insensitive.
func (c *Censor) ContainsProfanity(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range c.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Wordlist exposes the expanded variant list, mainly for tests.
func (c *Censor) Wordlist() []string {
	return c.words
}

func (c *Censor) rebuild(customWords []string) {
	seen := make(map[string]struct{})
	var words []string

	add := func(w string) {
		if _, ok := seen[w]; ok {
			return
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}

	base := append(baseCensorWords(), customWords...)
	for _, word := range base {
		for _, variant := range generateWordVariations(word) {
			add(variant)
		}
	}

	c.words = words
}

// generateWordVariations yields every literal variant of word reachable by
// substituting each character with one of its allowed look-alikes. The result
// is the cartesian product across the per-character variant tuples.
func generateWordVariations(word string) []string {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil
	}

	combos := make([][]rune, 0, len(word))
	for _, ch := range word {
		variants, ok := characterVariants[ch]
		if !ok {
			variants = []rune{ch}
		}
		allowed := make([]rune, 0, len(variants))
		for _, v := range variants {
			if unicode.IsLetter(v) || unicode.IsDigit(v) {
				allowed = append(allowed, v)
			}
		}
		if len(allowed) == 0 {
			allowed = []rune{ch}
		}
		combos = append(combos, allowed)
	}

	variations := []string{""}
	for _, options := range combos {
		next := make([]string, 0, len(variations)*len(options))
		for _, prefix := range variations {
			for _, opt := range options {
				next = append(next, prefix+string(opt))
			}
		}
		variations = next
	}

	return variations
}
