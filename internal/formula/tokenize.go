// Package formula parses discovered formula strings, resolves their variable
// tokens against a page's classified fields, and tags each formula with a
// type from a fixed taxonomy.
package formula

import (
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// reservedWords are operator keywords and function names that look like
// identifiers but never name a field.
var reservedWords = map[string]struct{}{
	"if":      {},
	"then":    {},
	"else":    {},
	"when":    {},
	"and":     {},
	"or":      {},
	"not":     {},
	"sum":     {},
	"min":     {},
	"max":     {},
	"round":   {},
	"abs":     {},
	"avg":     {},
	"count":   {},
	"lookup":  {},
	"vlookup": {},
	"true":    {},
	"false":   {},
	"null":    {},
}

// Tokenize extracts the distinct variable tokens of a formula in order of
// first appearance. Reserved words and numeric-looking runs are skipped.
func Tokenize(formula string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, match := range identifierRe.FindAllString(formula, -1) {
		lower := strings.ToLower(match)
		if _, reserved := reservedWords[lower]; reserved {
			continue
		}
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		tokens = append(tokens, match)
	}
	return tokens
}
