package intelligence

import (
	"regexp"
	"strings"

	"github.com/a3tai/mcp-form-autofill/internal/form"
)

// FieldRule maps one field type to the label patterns that identify it
type FieldRule struct {
	Type     form.FieldType
	Category string
	Patterns []*regexp.Regexp
}

// Taxonomy is an ordered list of field rules. Order is precedence: the
// first rule with a matching pattern wins, so specific rules ("date of
// birth", "first name") come before generic ones ("date", "name").
type Taxonomy struct {
	rules []FieldRule
}

func rule(t form.FieldType, category string, patterns ...string) FieldRule {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return FieldRule{Type: t, Category: category, Patterns: compiled}
}

// NewTaxonomy builds a taxonomy from rules in precedence order
func NewTaxonomy(rules []FieldRule) *Taxonomy {
	return &Taxonomy{rules: append([]FieldRule(nil), rules...)}
}

// defaultTaxonomy is immutable after package initialization
var defaultTaxonomy = NewTaxonomy([]FieldRule{
	rule(form.FieldTypeDateOfBirth, "personal_info",
		`date\s+of\s+birth`, `\bd\.?o\.?b\b`, `birth\s*date`, `\bbirthday\b`, `\bborn\s+on\b`),
	rule(form.FieldTypeSSN, "personal_info",
		`social\s+security`, `\bssn\b`, `\bs\.s\.\s*no\b`, `tax\s+id(entification)?(\s+number)?`),
	rule(form.FieldTypeStudentID, "education",
		`student\s+(id|number|no|identifier)`, `enrol+ment\s+number`, `matric(ulation)?\s+(no|number)`),
	rule(form.FieldTypePatientID, "medical",
		`patient\s+(id|number|no|identifier)`, `medical\s+record\s+number`, `\bmrn\b`),
	rule(form.FieldTypePolicyNumber, "medical",
		`policy\s+(number|no)`, `group\s+number`, `member\s+id`, `insurance\s+(id|number)`),
	rule(form.FieldTypeAccountNumber, "financial",
		`account\s+(number|no)`, `routing\s+number`, `bank\s+account`, `\biban\b`, `sort\s+code`),
	rule(form.FieldTypeEmail, "personal_info",
		`e-?\s?mail`, `electronic\s+mail`),
	rule(form.FieldTypePhone, "personal_info",
		`phone`, `telephone`, `\bmobile\b`, `\bcell\b`, `contact\s+number`, `\btel\b`, `\bfax\b`),
	rule(form.FieldTypeZipCode, "personal_info",
		`\bzip(\s*code)?\b`, `postal\s+code`, `\bpost\s*code\b`),
	rule(form.FieldTypeCity, "personal_info",
		`\bcity\b`, `\btown\b`),
	rule(form.FieldTypeState, "personal_info",
		`\bstate\b`, `\bprovince\b`),
	rule(form.FieldTypeCountry, "personal_info",
		`\bcountry\b`, `\bnationality\b`),
	rule(form.FieldTypeAddress, "personal_info",
		`address`, `\bstreet\b`, `\bresidence\b`),
	rule(form.FieldTypeFirstName, "personal_info",
		`first\s+name`, `given\s+name`, `\bforename\b`),
	rule(form.FieldTypeLastName, "personal_info",
		`last\s+name`, `\bsurname\b`, `family\s+name`),
	rule(form.FieldTypeCompany, "financial",
		`\bcompany\b`, `\bemployer\b`, `organi[sz]ation`, `business\s+name`),
	rule(form.FieldTypeInstitution, "education",
		`institution`, `\buniversity\b`, `\bcollege\b`, `\bschool\b`),
	rule(form.FieldTypeCourse, "education",
		`\bcourse\b`, `\bmajor\b`, `field\s+of\s+study`, `degree\s+program`),
	rule(form.FieldTypeGPA, "education",
		`\bgpa\b`, `grade\s+point`),
	rule(form.FieldTypeJobTitle, "financial",
		`job\s+title`, `\boccupation\b`, `\bdesignation\b`, `\bposition\b`),
	rule(form.FieldTypeSignature, "legal",
		`signature`, `\bsigned\b`, `\bsign\s+here\b`, `\bsign\b`),
	rule(form.FieldTypeName, "personal_info",
		`full\s+name`, `\bapplicant\b`, `(patient|student|employee|client|printed)\s+name`, `\bname\b`),
	rule(form.FieldTypeAmount, "financial",
		`\bamount\b`, `\btotal\b`, `\bincome\b`, `\bsalary\b`, `\bfee\b`, `\$`),
	rule(form.FieldTypeAge, "personal_info",
		`\bage\b`),
	rule(form.FieldTypeDay, "legal",
		`\bday\s+of\b`, `\bday\b`),
	rule(form.FieldTypeMonth, "legal",
		`\bmonth\b`),
	rule(form.FieldTypeYear, "legal",
		`\byear\b`, `^(19|20)$`),
	rule(form.FieldTypeDate, "personal_info",
		`\bdate[ds]?\b`, `mm\s*/\s*dd`, `dd\s*/\s*mm`),
	rule(form.FieldTypeCheckbox, "general",
		`check\s*box`, `\byes\s*/\s*no\b`, `\[\s*\]`, `☐`, `\btick\b`, `\bcheck\s+(one|all|if)\b`),
	rule(form.FieldTypeRadio, "general",
		`select\s+one`, `choose\s+one`),
	rule(form.FieldTypeDropdown, "general",
		`select\s+from`, `\bdropdown\b`, `choose\s+from`),
})

// DefaultTaxonomy returns the built-in field taxonomy
func DefaultTaxonomy() *Taxonomy {
	return defaultTaxonomy
}

// ClassifyFieldType returns the field type of a label or context string
// using the built-in taxonomy, or text when nothing matches. It is a pure
// function of its input.
func ClassifyFieldType(label string) form.FieldType {
	return defaultTaxonomy.Classify(label)
}

// Classify returns the first matching rule's type, or text
func (t *Taxonomy) Classify(label string) form.FieldType {
	ft, _ := t.match(NormalizeLabel(label))
	return ft
}

// Category returns the category of a field type, or "general"
func (t *Taxonomy) Category(ft form.FieldType) string {
	for _, r := range t.rules {
		if r.Type == ft {
			return r.Category
		}
	}
	return "general"
}

// Types returns every field type in precedence order
func (t *Taxonomy) Types() []form.FieldType {
	out := make([]form.FieldType, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r.Type)
	}
	return out
}

func (t *Taxonomy) match(normalized string) (form.FieldType, bool) {
	if normalized == "" {
		return form.FieldTypeText, false
	}
	for _, r := range t.rules {
		for _, p := range r.Patterns {
			if p.MatchString(normalized) {
				return r.Type, true
			}
		}
	}
	return form.FieldTypeText, false
}

// LabelMatch is a label found inside a line of text
type LabelMatch struct {
	Type  form.FieldType
	Label string
	// Start and End are rune offsets of the label within the line.
	Start int
	End   int
}

// segmentBreak separates label phrases on a line: colons, leader runs,
// tabs, wide gaps and empty brackets.
var segmentBreak = regexp.MustCompile(`:|_+|\.{2,}|…+|-{3,}|\t+|\s{3,}|\|`)

// MatchLine finds every label phrase on a line that the taxonomy
// recognizes. A line may yield several matches, one per phrase, in left to
// right order. Phrases classified as plain text are skipped.
func (t *Taxonomy) MatchLine(line string) []LabelMatch {
	return t.MatchLineWith(line, nil)
}

// maxFallbackLabelWords bounds the phrases handed to a fallback classifier
const maxFallbackLabelWords = 6

// MatchLineWith is MatchLine with a second opinion: a phrase the taxonomy
// does not know is passed to fallback when it is short and ends at a
// colon or leader, so document templates can name labels such as
// "Disclosing Party:".
func (t *Taxonomy) MatchLineWith(line string, fallback func(label string) form.FieldType) []LabelMatch {
	runes := []rune(line)
	matches := make([]LabelMatch, 0)

	type span struct{ start, end int }
	spans := make([]span, 0)
	prev := 0
	// Work on rune offsets; FindAllStringIndex returns byte offsets.
	for _, loc := range segmentBreak.FindAllStringIndex(line, -1) {
		s := len([]rune(line[:loc[0]]))
		spans = append(spans, span{prev, s})
		prev = len([]rune(line[:loc[1]]))
	}
	spans = append(spans, span{prev, len(runes)})

	for i, sp := range spans {
		seg := string(runes[sp.start:sp.end])
		trimmed := strings.TrimSpace(seg)
		if len([]rune(trimmed)) < 2 {
			continue
		}
		ft, ok := t.match(NormalizeLabel(trimmed))
		if !ok && fallback != nil && i < len(spans)-1 && len(strings.Fields(trimmed)) <= maxFallbackLabelWords {
			ft = fallback(trimmed)
			ok = ft != "" && ft != form.FieldTypeText
		}
		if !ok {
			continue
		}
		lead := len([]rune(seg)) - len([]rune(strings.TrimLeft(seg, " \t")))
		start := sp.start + lead
		matches = append(matches, LabelMatch{
			Type:  ft,
			Label: trimmed,
			Start: start,
			End:   start + len([]rune(trimmed)),
		})
	}
	return matches
}
