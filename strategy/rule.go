package strategy

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dreamerjackson/leadcrawler/extract"
	"github.com/dreamerjackson/leadcrawler/selector"
)

// DetailField is one detail-page field of a RuleStrategy.
type DetailField struct {
	Rule selector.Rule
	// Exclude drops values containing any of these substrings.
	Exclude []string
	MaxLen  int
}

// RuleStrategy extracts detail fields with selector rules. Without detail
// fields it falls back to the generic routine.
type RuleStrategy struct {
	name    string
	listing *Preset
	fields  []DetailField
}

func NewRuleStrategy(name string, listing *Preset, fields ...DetailField) *RuleStrategy {
	return &RuleStrategy{name: name, listing: listing, fields: fields}
}

func (s *RuleStrategy) Name() string {
	return s.name
}

func (s *RuleStrategy) Listing() *Preset {
	return s.listing
}

func (s *RuleStrategy) Detail(doc *goquery.Document, pageURL string) (map[string]string, error) {
	if len(s.fields) == 0 {
		return genericStrategy{}.Detail(doc, pageURL)
	}

	out := make(map[string]string)
	for _, f := range s.fields {
		v, ok := f.Rule.Eval(doc.Selection)
		if !ok {
			continue
		}
		v = normalizeValue(f.Rule.Field, v, pageURL)
		if v == "" || excluded(v, f.Exclude) {
			continue
		}
		out[f.Rule.Field] = truncate(v, f.MaxLen)
	}

	return out, nil
}

func field(name, spec string, exclude ...string) DetailField {
	return DetailField{Rule: selector.MustCompile(name, spec), Exclude: exclude}
}

func longField(name, spec string, maxLen int) DetailField {
	return DetailField{Rule: selector.MustCompile(name, spec), MaxLen: maxLen}
}

// normalizeValue strips mailto:/tel: prefixes and makes URL fields absolute.
func normalizeValue(name, v, pageURL string) string {
	switch {
	case name == "email":
		return cleanEmail(v)
	case name == "phone":
		v = strings.TrimPrefix(v, "tel:")
		return strings.TrimSpace(v)
	case name == "website" || strings.HasSuffix(name, "_url"):
		return extract.ResolveURL(pageURL, v)
	}
	return v
}

func cleanEmail(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= len("mailto:") && strings.EqualFold(v[:len("mailto:")], "mailto:") {
		v = v[len("mailto:"):]
	}
	if i := strings.IndexByte(v, '?'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func excluded(v string, subs []string) bool {
	lv := strings.ToLower(v)
	for _, s := range subs {
		if strings.Contains(lv, s) {
			return true
		}
	}
	return false
}

func truncate(v string, n int) string {
	if n <= 0 || utf8.RuneCountInString(v) <= n {
		return v
	}
	return string([]rune(v)[:n])
}
