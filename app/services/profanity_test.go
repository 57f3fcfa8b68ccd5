package services_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/virtuallibrarycard/vlc/app/services"
)

func TestCensorContainsProfanity(t *testing.T) {
	censor := services.NewCensor(zerolog.Nop(), "bard")

	t.Run("PlainMatch", func(t *testing.T) {
		assert.True(t, censor.ContainsProfanity("XXBARDXX"))
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		assert.True(t, censor.ContainsProfanity("xxbardxx"))
	})

	t.Run("LeetspeakVariant", func(t *testing.T) {
		// 'a' expands to '4', so a generated number can spell the word.
		assert.True(t, censor.ContainsProfanity("00B4RD00"))
	})

	t.Run("CleanString", func(t *testing.T) {
		assert.False(t, censor.ContainsProfanity("12345678901234"))
		assert.False(t, censor.ContainsProfanity("QWXYQWXYQWXYQW"))
	})
}

func TestCensorWordlistExpansion(t *testing.T) {
	censor := services.NewCensor(zerolog.Nop(), "ale")

	// "ale" expands over a∈{a,4}, l∈{l,1,i}, e∈{e,3}.
	words := censor.Wordlist()
	for _, want := range []string{"ale", "4le", "a1e", "aie", "al3", "413"} {
		assert.Contains(t, words, want)
	}
}

func TestCensorDeduplicatesVariants(t *testing.T) {
	censor := services.NewCensor(zerolog.Nop(), "dud", "dud")

	seen := make(map[string]int)
	for _, w := range censor.Wordlist() {
		seen[w]++
	}
	for w, n := range seen {
		assert.Equal(t, 1, n, "variant %q appears more than once", w)
	}
}
