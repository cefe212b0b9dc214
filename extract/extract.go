// Package extract turns a listing page into one field map per item.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dreamerjackson/leadcrawler/selector"
)

var (
	// ErrConfig marks configuration problems; they are fatal to a run.
	ErrConfig = errors.New("invalid extraction config")
	// ErrNoItems is returned when the item selector matches nothing.
	ErrNoItems = errors.New("no elements matched the item selector")
)

// Value is a field's extracted text. Found is false for the not-found
// marker so callers can tell an unmatched field from an empty one.
type Value struct {
	Text  string
	Found bool
}

var NotFound = Value{}

// Item holds every configured field of one matched element.
type Item map[string]Value

// Strings flattens the item, mapping not-found fields to "".
func (it Item) Strings() map[string]string {
	m := make(map[string]string, len(it))
	for k, v := range it {
		m[k] = v.Text
	}
	return m
}

type Result struct {
	Items []Item
	// Next is the absolute URL of the next page, or empty.
	Next string
}

type Extractor struct {
	itemCSS  string
	itemSel  cascadia.Selector
	rules    []selector.Rule
	nextRule *selector.Rule
}

// New validates and compiles an extraction setup. nextSelector is optional;
// selectors in it without an attribute read href.
func New(itemSelector string, rules []selector.Rule, nextSelector string) (*Extractor, error) {
	itemSelector = strings.TrimSpace(itemSelector)
	if itemSelector == "" {
		return nil, fmt.Errorf("%w: item selector is required", ErrConfig)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: at least one field rule is required", ErrConfig)
	}
	sel, err := cascadia.Compile(itemSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: item selector %q: %v", ErrConfig, itemSelector, err)
	}

	e := &Extractor{itemCSS: itemSelector, itemSel: sel, rules: rules}
	if strings.TrimSpace(nextSelector) != "" {
		next, err := selector.Compile("next_page", selector.Spec{Selector: nextSelector, Attr: "href"})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		e.nextRule = &next
	}

	return e, nil
}

// Extract parses body and applies every rule to each item element in
// document order. pageURL resolves the next-page link.
func (e *Extractor) Extract(body []byte, pageURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	res := &Result{}
	doc.FindMatcher(e.itemSel).Each(func(_ int, s *goquery.Selection) {
		item := make(Item, len(e.rules))
		for _, r := range e.rules {
			if v, ok := r.Eval(s); ok {
				item[r.Field] = Value{Text: v, Found: true}
			} else {
				item[r.Field] = NotFound
			}
		}
		res.Items = append(res.Items, item)
	})

	if len(res.Items) == 0 {
		return res, fmt.Errorf("%w: %q", ErrNoItems, e.itemCSS)
	}

	if e.nextRule != nil {
		if href, ok := e.nextRule.Eval(doc.Selection); ok {
			res.Next = nextURL(baseURL(doc, pageURL), pageURL, href)
		}
	}

	return res, nil
}

// baseURL honours a <base href> element when present.
func baseURL(doc *goquery.Document, pageURL string) string {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		if resolved := ResolveURL(pageURL, href); resolved != "" {
			return resolved
		}
	}
	return pageURL
}

func nextURL(base, current, href string) string {
	next := ResolveURL(base, href)
	if next == "" {
		return ""
	}
	cur, err := url.Parse(current)
	if err == nil {
		cur.Fragment = ""
		if cur.String() == next {
			return ""
		}
	}
	return next
}

// ResolveURL joins ref onto base and returns an absolute http(s) URL
// without fragment, or "" when that is not possible.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		r = b.ResolveReference(r)
	}
	if r.Scheme != "http" && r.Scheme != "https" {
		return ""
	}
	r.Fragment = ""
	return r.String()
}
