// Package selector evaluates declarative field rules against HTML.
//
// A rule is written as a comma separated list of CSS selectors tried in
// order until one yields a non-empty value. A selector may end in
// "@attribute" to read an attribute instead of the visible text, and an
// empty selector ("@href") addresses the scoped element itself:
//
//	"h3.title, h2"
//	"a.x@href, a.y@href, a@href"
//	"img[alt='logo']@src"
package selector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var ErrEmptySelector = errors.New("empty selector")

var attrName = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)

// Selector is one fallback slot: a CSS selector plus an optional attribute.
type Selector struct {
	CSS  string
	Attr string

	matcher cascadia.Selector
}

// Rule maps a field name onto an ordered fallback list of selectors.
type Rule struct {
	Field     string
	Selectors []Selector
	Regex     *regexp.Regexp
	Default   string
}

// Parse splits spec into its fallback selectors and compiles each one.
func Parse(spec string) ([]Selector, error) {
	parts := splitTopLevel(spec, ',')
	if len(parts) == 0 {
		return nil, ErrEmptySelector
	}

	sels := make([]Selector, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%q: %w", spec, ErrEmptySelector)
		}
		css, attr := splitAttr(part)
		sel := Selector{CSS: css, Attr: attr}
		if css != "" {
			m, err := cascadia.Compile(css)
			if err != nil {
				return nil, fmt.Errorf("invalid selector %q: %w", css, err)
			}
			sel.matcher = m
		} else if attr == "" {
			return nil, fmt.Errorf("%q: %w", spec, ErrEmptySelector)
		}
		sels = append(sels, sel)
	}

	return sels, nil
}

// Compile turns a field spec into a Rule. spec.Attr applies to every
// selector that does not name its own attribute.
func Compile(field string, spec Spec) (Rule, error) {
	sels, err := Parse(spec.Selector)
	if err != nil {
		return Rule{}, fmt.Errorf("field %q: %w", field, err)
	}
	if spec.Attr != "" {
		if !attrName.MatchString(spec.Attr) {
			return Rule{}, fmt.Errorf("field %q: invalid attribute %q", field, spec.Attr)
		}
		for i := range sels {
			if sels[i].Attr == "" {
				sels[i].Attr = spec.Attr
			}
		}
	}

	r := Rule{Field: field, Selectors: sels, Default: spec.Default}
	if spec.Regex != "" {
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return Rule{}, fmt.Errorf("field %q: invalid regex: %w", field, err)
		}
		r.Regex = re
	}

	return r, nil
}

// MustCompile is Compile for static rule tables.
func MustCompile(field, spec string) Rule {
	r, err := Compile(field, Spec{Selector: spec})
	if err != nil {
		panic(err)
	}
	return r
}

// Eval returns the first non-empty value the rule yields inside s. The
// boolean is false when nothing matched and no default is configured.
func (r Rule) Eval(s *goquery.Selection) (string, bool) {
	for _, sel := range r.Selectors {
		v := sel.Value(s)
		if v == "" {
			continue
		}
		if r.Regex != nil {
			if v = applyRegex(r.Regex, v); v == "" {
				continue
			}
		}
		return v, true
	}

	if r.Default != "" {
		return r.Default, true
	}

	return "", false
}

// Value reads the selector's value from the first match inside s.
func (sel Selector) Value(s *goquery.Selection) string {
	target := s
	if sel.matcher != nil {
		target = s.FindMatcher(sel.matcher).First()
	}
	if target.Length() == 0 {
		return ""
	}

	if sel.Attr != "" {
		v, _ := target.Attr(sel.Attr)
		return strings.TrimSpace(v)
	}

	return Text(target.First())
}

func (sel Selector) String() string {
	if sel.Attr == "" {
		return sel.CSS
	}
	return sel.CSS + "@" + sel.Attr
}

// Text is the visible text of s with script and style content dropped and
// whitespace runs collapsed to one space.
func Text(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Lines returns the non-empty text runs of s, one per text node, with
// script and style content dropped.
func Lines(s *goquery.Selection) []string {
	var parts []string
	for _, n := range s.Nodes {
		collectText(n, &parts)
	}
	lines := parts[:0]
	for _, p := range parts {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		*parts = append(*parts, n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

func applyRegex(re *regexp.Regexp, v string) string {
	m := re.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}
