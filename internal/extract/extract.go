// Package extract pulls raw label/value pairs and formula candidates out of
// scraped page content, before any classification happens. It handles the
// two shapes the capture feed produces: markdown from the scraper and raw
// HTML fragments.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// RawField is an unclassified label/value pair as found on the page.
type RawField struct {
	Label string
	Value string
}

var (
	boldLabelRe = regexp.MustCompile(`^\*\*([^*]+?)[:：]?\*\*[:：]?\s*(.+)$`)
	plainPairRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 #/()._'-]{0,60}?)[:：]\s+(.+)$`)
	tableRowRe  = regexp.MustCompile(`^\|([^|]+)\|([^|]+)\|?\s*$`)
	sepRowRe    = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)

	identRe    = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	operatorRe = regexp.MustCompile(`[-+*/]|\bif\b|\blookup\b`)
	htmlTagRe  = regexp.MustCompile(`(?i)<(div|table|span|body|p|td|dl|label)[\s>]`)
)

// Fields extracts raw label/value pairs. HTML content goes through goquery;
// everything else is treated as markdown/plain text.
func Fields(content string) []RawField {
	if looksLikeHTML(content) {
		return htmlFields(content)
	}
	return markdownFields(content)
}

func markdownFields(content string) []RawField {
	var out []RawField
	seen := make(map[string]struct{})

	add := func(label, value string) {
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		if label == "" || value == "" {
			return
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, RawField{Label: label, Value: value})
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || sepRowRe.MatchString(line) {
			continue
		}
		if m := boldLabelRe.FindStringSubmatch(line); m != nil {
			add(m[1], m[2])
			continue
		}
		if m := tableRowRe.FindStringSubmatch(line); m != nil {
			// A row directly above a separator row is a table header.
			if i+1 < len(lines) && sepRowRe.MatchString(strings.TrimSpace(lines[i+1])) {
				continue
			}
			add(strings.Trim(m[1], "* "), strings.Trim(m[2], "* "))
			continue
		}
		if m := plainPairRe.FindStringSubmatch(line); m != nil {
			// A colon line whose value side looks like a sentence is prose,
			// not a data field.
			if len(strings.Fields(m[2])) <= 6 {
				add(m[1], m[2])
			}
		}
	}
	return out
}

func htmlFields(content string) []RawField {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return markdownFields(content)
	}

	var out []RawField
	seen := make(map[string]struct{})

	add := func(label, value string) {
		label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
		value = strings.TrimSpace(value)
		if label == "" || value == "" {
			return
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, RawField{Label: label, Value: value})
	}

	// Two-cell table rows: first cell label, second cell value.
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() == 2 {
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})

	// Definition lists.
	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.Find("dt")
		defs := dl.Find("dd")
		n := terms.Length()
		if defs.Length() < n {
			n = defs.Length()
		}
		for i := 0; i < n; i++ {
			add(terms.Eq(i).Text(), defs.Eq(i).Text())
		}
	})

	// Label elements paired with a for= input value.
	doc.Find("label[for]").Each(func(_ int, lbl *goquery.Selection) {
		id, _ := lbl.Attr("for")
		if id == "" {
			return
		}
		input := doc.Find("#" + id).First()
		if val, ok := input.Attr("value"); ok {
			add(lbl.Text(), val)
		}
	})

	// Fallback for plain-text colon pairs inside the body.
	if len(out) == 0 {
		return markdownFields(doc.Text())
	}
	return out
}

// Formulas extracts candidate formula strings: assignment lines whose right
// side carries at least two identifier tokens and an operator.
func Formulas(content string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, "=")
		if idx <= 0 || strings.Contains(line[:idx], "<") {
			continue
		}
		rhs := strings.TrimSpace(strings.Trim(line[idx+1:], "=\"' "))
		if rhs == "" {
			continue
		}
		if len(identRe.FindAllString(rhs, -1)) < 2 || !operatorRe.MatchString(rhs) {
			continue
		}
		if _, dup := seen[rhs]; dup {
			continue
		}
		seen[rhs] = struct{}{}
		out = append(out, rhs)
	}
	return out
}

// ContextSnippet returns up to limit bytes of content for use as an LLM
// prompt context block, cutting at a rune boundary so the snippet stays
// valid UTF-8.
func ContextSnippet(content string, limit int) string {
	content = strings.TrimSpace(content)
	if limit <= 0 || len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func looksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "<!") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return htmlTagRe.MatchString(trimmed)
}
