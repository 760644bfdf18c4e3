package detector

import (
	"context"
	"regexp"
	"sort"
)

// Pattern is one regex rule and the confidence assigned to its matches.
type Pattern struct {
	Type       string
	Expr       string
	Confidence float64
}

// DefaultPatterns covers the structured entity types. Names and locations
// need an NER model and are left to the Presidio detector.
var DefaultPatterns = []Pattern{
	{Type: TypeEmail, Expr: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Confidence: 1.0},
	{Type: TypeSSN, Expr: `\b\d{3}-\d{2}-\d{4}\b`, Confidence: 0.95},
	{Type: TypeCreditCard, Expr: `\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`, Confidence: 0.9},
	{Type: TypePhone, Expr: `(?:\+?1[-. ]?)?\(?\b[2-9]\d{2}\)?[-. ]\d{3}[-. ]\d{4}\b`, Confidence: 0.75},
	{Type: TypeIBAN, Expr: `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`, Confidence: 0.85},
	{Type: TypeIPAddress, Expr: `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`, Confidence: 0.95},
	{Type: TypeURL, Expr: `\bhttps?://[^\s<>"']+`, Confidence: 0.85},
	{Type: TypeDateTime, Expr: `\b(?:\d{4}-\d{2}-\d{2}|(?:0?[1-9]|1[0-2])/(?:0?[1-9]|[12]\d|3[01])/(?:19|20)\d{2})\b`, Confidence: 0.6},
	{Type: TypePassport, Expr: `\b(?i:passport)[\s#:]*([A-Z]?\d{8,9})\b`, Confidence: 0.7},
	{Type: TypeDriverLicense, Expr: `\b(?i:DL|driver'?s? licen[cs]e)[\s#:]*([A-Z]\d{7,8})\b`, Confidence: 0.7},
	{Type: TypeUSBankNumber, Expr: `\b(?i:account|acct)[\s#:]*(\d{8,17})\b`, Confidence: 0.6},
}

type compiledPattern struct {
	Pattern
	re *regexp.Regexp
}

// RegexDetector matches a fixed pattern table. When a pattern has a capture
// group the first group is reported as the span, so keyword prefixes like
// "passport:" stay in the text.
type RegexDetector struct {
	patterns []compiledPattern
}

// NewRegexDetector compiles patterns, panicking on invalid expressions since
// the table is code-defined.
func NewRegexDetector(patterns []Pattern) *RegexDetector {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, compiledPattern{Pattern: p, re: regexp.MustCompile(p.Expr)})
	}
	return &RegexDetector{patterns: compiled}
}

// Detect returns all matches sorted by start offset.
func (r *RegexDetector) Detect(ctx context.Context, text string) ([]Entity, error) {
	var entities []Entity
	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			entities = append(entities, Entity{
				Start:      start,
				End:        end,
				Type:       p.Type,
				Confidence: p.Confidence,
				Text:       text[start:end],
			})
		}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Start < entities[j].Start
	})
	return entities, nil
}
