// Package textnorm turns free-text expense descriptions into the canonical
// form used for training and prediction: lower-cased alphanumeric tokens with
// English stopwords removed, joined by single spaces.
package textnorm

import (
	"strings"
	"sync"
	"unicode"

	"previsioni/internal/log"
)

// Normalizer holds the stopword resources. A Normalizer without stopwords
// uses the whitespace fallback. The zero value is usable and behaves that way.
type Normalizer struct {
	stopwords map[string]struct{}
	logger    *log.Logger
	warnOnce  sync.Once
}

var defaultNormalizer = &Normalizer{stopwords: DefaultStopwords()}

// Normalize normalizes raw with the built-in English stopword list.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// New returns a Normalizer using the given stopword set. A nil set marks the
// primary resources as unavailable.
func New(stopwords map[string]struct{}, logger *log.Logger) *Normalizer {
	if logger != nil {
		logger = logger.WithComponent(log.ComponentTextNorm)
	}
	return &Normalizer{stopwords: stopwords, logger: logger}
}

// FromFile builds a Normalizer from a stopword file. An empty path selects the
// built-in list. An unreadable file does not fail: the returned Normalizer
// falls back to whitespace tokenization and warns once.
func FromFile(path string, logger *log.Logger) *Normalizer {
	if path == "" {
		return New(DefaultStopwords(), logger)
	}
	set, err := LoadStopwords(path)
	if err != nil {
		if logger != nil {
			logger.Warn("Stopword list unavailable, using fallback tokenizer", "path", path, "error", err)
		}
		return New(nil, logger)
	}
	return New(set, logger)
}

// Available reports whether the primary tokenizer resources are loaded.
func (n *Normalizer) Available() bool {
	return n.stopwords != nil
}

// Normalize never fails. When the primary path yields no tokens the lower-cased
// input is returned unchanged.
func (n *Normalizer) Normalize(raw string) (out string) {
	lower := strings.ToLower(raw)
	if n.stopwords == nil {
		return orLower(fallback(lower), lower)
	}
	defer func() {
		if r := recover(); r != nil {
			n.warnFallback(r)
			out = orLower(fallback(lower), lower)
		}
	}()
	kept := make([]string, 0, 8)
	for _, tok := range tokenize(lower) {
		if !isAlnum(tok) {
			continue
		}
		if _, stop := n.stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	return orLower(strings.Join(kept, " "), lower)
}

func (n *Normalizer) warnFallback(cause any) {
	n.warnOnce.Do(func() {
		if n.logger != nil {
			n.logger.Warn("Primary tokenizer failed, using fallback", "cause", cause)
		}
	})
}

func orLower(s, lower string) string {
	if s == "" {
		return lower
	}
	return s
}

// fallback keeps whole whitespace-separated tokens that are purely alphanumeric.
func fallback(lower string) string {
	fields := strings.Fields(lower)
	kept := fields[:0]
	for _, f := range fields {
		if isAlnum(f) {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// tokenize splits text into word tokens the way a treebank word tokenizer
// does for the inputs seen here: letter/digit runs are words, each punctuation
// rune is its own token, clitics keep their leading apostrophe ("'s", "n't"),
// numbers keep inner separators ("5.50") and hyphen or slash compounds stay
// whole ("wi-fi", "uber/lyft").
func tokenize(s string) []string {
	runes := []rune(s)
	var (
		tokens []string
		cur    []rune
	)
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur = append(cur, r)
		case (r == '.' || r == ',') && i > 0 && i+1 < len(runes) &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) && len(cur) > 0:
			cur = append(cur, r)
		case (r == '-' || r == '/') && len(cur) > 0 && i+1 < len(runes) &&
			isWordRune(runes[i-1]) && isWordRune(runes[i+1]):
			cur = append(cur, r)
		case r == '\'' && len(cur) > 0 && i+1 < len(runes) && unicode.IsLetter(runes[i+1]):
			if runes[i+1] == 't' && cur[len(cur)-1] == 'n' && len(cur) > 1 {
				// "don't" -> "do" "n't"
				cur = cur[:len(cur)-1]
				flush()
				cur = append(cur, 'n')
			} else {
				flush()
			}
			cur = append(cur, r)
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens = append(tokens, string(r))
		}
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
