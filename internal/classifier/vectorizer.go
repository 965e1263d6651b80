package classifier

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// tokenPattern matches words of two or more letters, digits or underscores.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer maps documents to L2-normalized TF-IDF vectors over a fixed vocabulary.
type Vectorizer struct {
	vocab map[string]int
	terms []string
	idf   []float64
}

func analyze(doc string) []string {
	return tokenPattern.FindAllString(strings.ToLower(doc), -1)
}

// FitVectorizer learns the vocabulary and smoothed inverse document frequencies:
// idf(t) = ln((1+n)/(1+df(t))) + 1. The vocabulary is sorted alphabetically.
func FitVectorizer(docs []string) *Vectorizer {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range analyze(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	v := &Vectorizer{
		vocab: make(map[string]int, len(terms)),
		terms: terms,
		idf:   make([]float64, len(terms)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		v.vocab[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return v
}

// Features returns the vocabulary size.
func (v *Vectorizer) Features() int {
	return len(v.terms)
}

// Terms returns the vocabulary in feature order.
func (v *Vectorizer) Terms() []string {
	return v.terms
}

// Transform returns the TF-IDF vector of doc. Out-of-vocabulary terms are ignored;
// a document with no known terms maps to the zero vector.
func (v *Vectorizer) Transform(doc string) []float64 {
	vec := make([]float64, len(v.terms))
	for _, tok := range analyze(doc) {
		if i, ok := v.vocab[tok]; ok {
			vec[i]++
		}
	}
	floats.Mul(vec, v.idf)
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// cosine returns the cosine similarity of two L2-normalized vectors, clamped to [0,1].
func cosine(a, b []float64) float64 {
	s := floats.Dot(a, b)
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
