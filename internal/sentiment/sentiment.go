// Package sentiment scores free text on a [-1, 1] scale.
//
// The Lexicon scorer is a small valence-word model: it is deterministic and
// good enough to order chatter as bullish or bearish, nothing more.
package sentiment

import (
	"math"
	"regexp"
	"strings"
)

// Scorer returns a sentiment score in [-1, 1] for a piece of text.
type Scorer interface {
	Score(text string) float64
}

// normalizationAlpha approximates the maximum expected sum of valences.
const normalizationAlpha = 15.0

// negationScalar dampens and flips the valence of a negated word.
const negationScalar = -0.74

var wordRegex = regexp.MustCompile(`[a-z']+|[🚀💎🙌📈📉]`)

// DefaultLexicon maps words to valences in roughly [-4, 4].
var DefaultLexicon = map[string]float64{
	"bull": 1.5, "bullish": 2.3, "moon": 1.8, "mooning": 2.0, "rocket": 1.6,
	"squeeze": 1.2, "breakout": 1.8, "undervalued": 1.6, "gain": 1.9,
	"gains": 1.9, "green": 1.0, "profit": 1.9, "buy": 0.8, "buying": 0.8,
	"long": 0.5, "love": 3.2, "great": 3.1, "good": 1.9, "strong": 2.3,
	"win": 2.8, "winning": 2.4, "up": 0.6, "rally": 1.7, "rip": 1.0,
	"hold": 0.4, "holding": 0.4, "hodl": 1.0, "upside": 1.7, "beat": 1.2,
	"🚀": 2.0, "💎": 1.5, "🙌": 1.2, "📈": 1.6,

	"bear": -1.5, "bearish": -2.3, "dump": -2.0, "dumping": -2.2,
	"crash": -2.6, "tank": -1.9, "tanking": -2.2, "red": -1.0,
	"loss": -2.1, "losses": -2.1, "sell": -0.8, "selling": -0.9,
	"short": -0.5, "scam": -3.0, "fraud": -3.2, "bag": -1.2,
	"bagholder": -1.8, "bagholding": -1.8, "dilution": -2.0,
	"overvalued": -1.6, "bad": -2.5, "terrible": -3.1, "hate": -2.7,
	"down": -0.6, "rug": -2.4, "delisted": -2.6, "bankrupt": -3.0,
	"bankruptcy": -3.0, "worthless": -2.8, "miss": -1.2, "📉": -1.6,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "isn't": true, "don't": true,
	"doesn't": true, "won't": true, "can't": true, "aint": true, "ain't": true,
}

// Lexicon is a valence-word sentiment scorer.
type Lexicon struct {
	words map[string]float64
}

// NewLexicon creates a scorer over the given word valences. A nil map
// uses DefaultLexicon.
func NewLexicon(words map[string]float64) *Lexicon {
	if words == nil {
		words = DefaultLexicon
	}
	return &Lexicon{words: words}
}

// Score sums the valences of known words (a word directly after a negation
// is flipped and dampened) and squashes the sum into [-1, 1].
func (l *Lexicon) Score(text string) float64 {
	tokens := wordRegex.FindAllString(strings.ToLower(text), -1)
	var sum float64
	for i, tok := range tokens {
		v, ok := l.words[tok]
		if !ok {
			continue
		}
		if i > 0 && negations[tokens[i-1]] {
			v *= negationScalar
		}
		sum += v
	}
	return compound(sum)
}

func compound(sum float64) float64 {
	if sum == 0 {
		return 0
	}
	c := sum / math.Sqrt(sum*sum+normalizationAlpha)
	return math.Max(-1, math.Min(1, c))
}
