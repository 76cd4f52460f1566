package profile

import (
	"strings"
	"unicode"

	"github.com/loadgen/profiler/pkg/models"
)

const (
	// MaxPatternSamples bounds how many raw strings the miner looks at.
	MaxPatternSamples = 1000

	// maxPatternSeeds is how many sampled values are generalized.
	maxPatternSeeds = 10

	// MaxPatterns caps the returned pattern list.
	MaxPatterns = 5
)

// GeneralizeString collapses character runs into class placeholders: digit
// runs become `\d+`, lowercase runs `[a-z]+`, uppercase runs `[A-Z]+`. Other
// characters pass through unchanged.
func GeneralizeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var runClass byte // 'd', 'l', 'u' or 0
	flush := func() {
		switch runClass {
		case 'd':
			b.WriteString(`\d+`)
		case 'l':
			b.WriteString(`[a-z]+`)
		case 'u':
			b.WriteString(`[A-Z]+`)
		}
		runClass = 0
	}

	for _, r := range s {
		var class byte
		switch {
		case unicode.IsDigit(r):
			class = 'd'
		case unicode.IsLower(r):
			class = 'l'
		case unicode.IsUpper(r):
			class = 'u'
		}
		if class != runClass {
			flush()
			runClass = class
		}
		if class == 0 {
			b.WriteRune(r)
		}
	}
	flush()

	return b.String()
}

// MinePatterns generalizes the first few values of a bounded sample and
// reports each pattern with its frequency within the sample. Identical
// patterns from different seed values are not deduplicated, so the list may
// repeat entries.
func MinePatterns(sample []string) []models.StringPattern {
	if len(sample) > MaxPatternSamples {
		sample = sample[:MaxPatternSamples]
	}
	if len(sample) == 0 {
		return []models.StringPattern{}
	}

	counts := make(map[string]int, len(sample))
	for _, s := range sample {
		counts[GeneralizeString(s)]++
	}

	seeds := sample
	if len(seeds) > maxPatternSeeds {
		seeds = seeds[:maxPatternSeeds]
	}

	total := float64(len(sample))
	patterns := make([]models.StringPattern, 0, MaxPatterns)
	for _, s := range seeds {
		if len(patterns) == MaxPatterns {
			break
		}
		p := GeneralizeString(s)
		patterns = append(patterns, models.StringPattern{
			Pattern:   p,
			Frequency: float64(counts[p]) / total,
		})
	}
	return patterns
}
