package intelligence

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	folder          = cases.Fold()
	whitespaceRun   = regexp.MustCompile(`\s+`)
	camelBoundary   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	trailingPunct   = regexp.MustCompile(`[\s:;,.*_\-–—…]+$`)
	leadingPunct    = regexp.MustCompile(`^[\s:;,.*_\-–—…]+`)
	wordSeparators  = strings.NewReplacer("_", " ", ".", " ", "[", " ", "]", " ", "(", " ", ")", " ")
	nonTokenPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// NormalizeLabel prepares a label or context snippet for taxonomy matching:
// Unicode compatibility normalization, case folding, whitespace collapsed,
// and surrounding punctuation (trailing colons, leaders) removed.
func NormalizeLabel(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	s = strings.ReplaceAll(s, "_", " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = trailingPunct.ReplaceAllString(s, "")
	s = leadingPunct.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// HumanizeName turns a widget name such as "applicant.FirstName_1" or
// "full_name" into words so it can be classified like a printed label.
func HumanizeName(name string) string {
	name = camelBoundary.ReplaceAllString(name, "$1 $2")
	name = wordSeparators.Replace(name)
	name = strings.TrimRightFunc(name, func(r rune) bool { return unicode.IsDigit(r) || unicode.IsSpace(r) })
	return NormalizeLabel(name)
}

// Tokenize splits normalized text into lowercase word tokens of at least
// two characters, dropping common English stop words.
func Tokenize(text string) []string {
	text = folder.String(norm.NFKC.String(text))
	raw := nonTokenPattern.Split(text, -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len([]rune(t)) < 2 || stopWords[t] {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "will": true, "with": true,
	"you": true, "your": true, "we": true, "our": true, "not": true, "but": true,
	"if": true, "any": true, "all": true, "so": true, "than": true, "then": true,
	"there": true, "these": true, "they": true, "which": true, "who": true, "shall": true,
	"may": true, "can": true, "have": true, "had": true, "been": true, "being": true,
}
