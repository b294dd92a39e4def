package main

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// BrandMatch is the result of a brand lookup inside a response text.
// Position is the 1-based index of the first matched token, 0 when the
// brand was not found.
type BrandMatch struct {
	Matched  bool
	Position int
}

// NormalizeText folds a string for comparison: NFKD, combining marks
// stripped, lowercased. "Láserum" and "laserum" normalize identically.
func NormalizeText(text string) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Tokenize splits normalized text into tokens on every non-alphanumeric
// rune, so matching is always token-boundary aware.
func Tokenize(text string) []string {
	return strings.FieldsFunc(NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsBrand reports whether brand (or any alias) occurs in text as a
// whole token sequence. "laserum" matches "Clínica Láserum" but not
// "blaserum clinic".
func ContainsBrand(text, brand string, aliases ...string) BrandMatch {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return BrandMatch{}
	}

	candidates := append([]string{brand}, aliases...)
	best := 0
	for _, candidate := range candidates {
		needle := Tokenize(candidate)
		if len(needle) == 0 {
			continue
		}
		if pos := findTokenSequence(tokens, needle); pos > 0 {
			if best == 0 || pos < best {
				best = pos
			}
		}
	}
	if best == 0 {
		return BrandMatch{}
	}
	return BrandMatch{Matched: true, Position: best}
}

// findTokenSequence returns the 1-based index of the first occurrence of
// needle as a contiguous token run, 0 when absent.
func findTokenSequence(tokens, needle []string) int {
	for i := 0; i+len(needle) <= len(tokens); i++ {
		match := true
		for j, want := range needle {
			if tokens[i+j] != want {
				match = false
				break
			}
		}
		if match {
			return i + 1
		}
	}
	return 0
}

// NormalizeDomain reduces a cited URL or bare host to its comparable
// host form: scheme, leading "www.", port, path and fragments dropped,
// lowercased.
func NormalizeDomain(raw string) string {
	host := strings.TrimSpace(strings.ToLower(raw))
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if idx := strings.Index(host, sep); idx >= 0 {
			host = host[:idx]
		}
	}
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	host = strings.TrimPrefix(host, "www.")
	return strings.TrimSuffix(host, ".")
}

// DomainsEqual compares two hosts after normalization. A subdomain of
// the target counts as the target ("blog.example.com" vs "example.com"),
// but "notexample.com" does not.
func DomainsEqual(cited, target string) bool {
	c := NormalizeDomain(cited)
	t := NormalizeDomain(target)
	if c == "" || t == "" {
		return false
	}
	return c == t || strings.HasSuffix(c, "."+t)
}

// DomainPosition returns whether target appears among the cited sources
// and its 1-based position in citation order.
func DomainPosition(sources []string, target string) (bool, int) {
	for i, source := range sources {
		if DomainsEqual(source, target) {
			return true, i + 1
		}
	}
	return false, 0
}
