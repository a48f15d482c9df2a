package keyword

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// Word boundaries are spelled out instead of using \b, which RE2 defines over
// ASCII only and would never fire inside Cyrillic text.
const (
	boundaryStart = `(?:^|[^\p{L}\p{N}_])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}_])`
)

type compiled struct {
	word    string
	pattern *regexp.Regexp
	key     int // index of the folded word in the prefilter dictionary
}

// Set is a compiled, immutable keyword set. It is safe for concurrent use.
//
// Matching runs in two steps: one Aho-Corasick pass over the case-folded text
// finds the keywords that occur anywhere as substrings, then only those are
// confirmed with their own pattern, which applies the whole-word and
// case-sensitivity rules.
type Set struct {
	entries   []compiled
	prefilter *ahocorasick.Matcher
}

// Compile builds a Set from keywords. Keyword text is escaped, so arbitrary
// user input never acts as pattern syntax. Keywords with an empty word are
// skipped, as are later duplicates of a word already in the set.
func Compile(keywords []domain.Keyword) *Set {
	s := &Set{entries: make([]compiled, 0, len(keywords))}
	seen := make(map[string]struct{}, len(keywords))
	keys := make(map[string]int, len(keywords))
	var dictionary []string

	for _, kw := range keywords {
		if strings.TrimSpace(kw.Word) == "" {
			continue
		}
		if _, dup := seen[kw.Word]; dup {
			continue
		}
		seen[kw.Word] = struct{}{}

		// Words differing only in case share one dictionary entry.
		folded := fold(kw.Word)
		key, ok := keys[folded]
		if !ok {
			key = len(dictionary)
			keys[folded] = key
			dictionary = append(dictionary, folded)
		}

		s.entries = append(s.entries, compiled{
			word:    kw.Word,
			pattern: regexp.MustCompile(buildPattern(kw)),
			key:     key,
		})
	}

	if len(dictionary) > 0 {
		s.prefilter = ahocorasick.NewStringMatcher(dictionary)
	}
	return s
}

// buildPattern never produces an invalid expression: the only variable part
// goes through QuoteMeta.
func buildPattern(kw domain.Keyword) string {
	var b strings.Builder
	if !kw.IsCaseSensitive {
		b.WriteString("(?i)")
	}
	if kw.IsWholeWord {
		b.WriteString(boundaryStart)
	}
	b.WriteString(regexp.QuoteMeta(kw.Word))
	if kw.IsWholeWord {
		b.WriteString(boundaryEnd)
	}
	return b.String()
}

// fold maps every rune to the smallest rune of its case-folding orbit, the
// same equivalence (?i) uses. Any text a pattern matches therefore contains
// the folded word as a substring of the folded text.
func fold(s string) string {
	return strings.Map(func(r rune) rune {
		least := r
		for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
			if f < least {
				least = f
			}
		}
		return least
	}, s)
}

// Len returns the number of keywords in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Match returns the words of the keywords found in text, in set order.
// The result is never nil.
func (s *Set) Match(text string) []string {
	matched := []string{}
	if s == nil || s.prefilter == nil || text == "" {
		return matched
	}

	hits := s.prefilter.MatchThreadSafe([]byte(fold(text)))
	if len(hits) == 0 {
		return matched
	}
	candidate := make(map[int]bool, len(hits))
	for _, h := range hits {
		candidate[h] = true
	}

	for _, e := range s.entries {
		if candidate[e.key] && e.pattern.MatchString(text) {
			matched = append(matched, e.word)
		}
	}
	return matched
}

// Match is the one-shot form of Compile(keywords).Match(text).
func Match(text string, keywords []domain.Keyword) []string {
	return Compile(keywords).Match(text)
}
