package analysis

import (
	"context"
	"strings"
	"unicode"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

var defaultPositive = []string{
	"good", "great", "excellent", "love", "thanks", "awesome",
	"хорошо", "отлично", "спасибо", "супер", "класс", "люблю",
}

var defaultNegative = []string{
	"bad", "awful", "terrible", "hate", "worst", "broken",
	"плохо", "ужасно", "отстой", "ненавижу", "кошмар", "сломано",
}

// LexiconAnalyzer scores text by counting words from fixed positive and
// negative lists. It is a placeholder: it ignores negation and context.
type LexiconAnalyzer struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewLexiconAnalyzer creates an analyzer with the built-in word lists.
func NewLexiconAnalyzer() *LexiconAnalyzer {
	return &LexiconAnalyzer{
		positive: toSet(defaultPositive),
		negative: toSet(defaultNegative),
	}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var _ Analyzer = (*LexiconAnalyzer)(nil)

// Analyze returns positive or negative when one list outscores the other and
// neutral otherwise.
func (a *LexiconAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	score := 0
	for _, w := range words {
		if _, ok := a.positive[w]; ok {
			score++
		}
		if _, ok := a.negative[w]; ok {
			score--
		}
	}

	switch {
	case score > 0:
		return domain.SentimentPositive, nil
	case score < 0:
		return domain.SentimentNegative, nil
	default:
		return domain.SentimentNeutral, nil
	}
}
