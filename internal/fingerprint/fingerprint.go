// Package fingerprint canonicalizes captured page content and computes the
// stable digest used for change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// ErrMalformedContent indicates page content that cannot be canonicalized.
// It is fatal for the affected page capture only.
var ErrMalformedContent = eris.New("fingerprint: malformed content")

// Fingerprint canonicalizes content and returns the hex SHA-256 digest of
// the canonical form. Cosmetic whitespace and markup differences between two
// renders of the same underlying data produce the same digest. The function
// is deterministic and has no side effects.
func Fingerprint(content string) (string, error) {
	canonical, err := Canonicalize(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize strips markup from content and collapses all whitespace runs
// to single spaces. Returns ErrMalformedContent when nothing textual remains.
func Canonicalize(content string) (string, error) {
	text := content
	if looksLikeHTML(content) {
		if extracted, ok := extractVisibleText(content); ok {
			text = extracted
		}
	}

	canonical := normalizeWhitespace(text)
	if canonical == "" {
		return "", eris.Wrap(ErrMalformedContent, "empty canonical text")
	}
	return canonical, nil
}

// looksLikeHTML is a cheap structural check; goquery parses almost anything,
// so plain text is filtered out before paying for a full parse.
func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}

// extractVisibleText parses content as HTML and returns the visible text,
// dropping script, style, and noscript subtrees.
func extractVisibleText(content string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", false
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text(), true
}

// normalizeWhitespace collapses every run of whitespace (including NBSP and
// zero-width characters) into a single space and trims the result.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true // leading whitespace is dropped
	for _, r := range s {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			continue
		}
		if r == '\u00a0' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimRight(b.String(), " ")
}
