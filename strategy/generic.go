package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dreamerjackson/leadcrawler/selector"
)

var (
	emailRe   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe   = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\b([0-9]{3})\)?[-.\s]?([0-9]{3})[-.\s]?([0-9]{4})\b`)
	orgLeadRe = regexp.MustCompile(`(?i)organized by|hosted by|presented by|contact:`)
	orgNameRe = regexp.MustCompile(`(?i:by|:)\s*([A-Z][A-Za-z\s&]+?)(?:\.|,|\n|$)`)

	spamMarkers = []string{"noreply", "no-reply", "example", "spam"}
)

// genericStrategy scans the page text of unknown platforms for contact
// details.
type genericStrategy struct{}

func (genericStrategy) Name() string {
	return Generic
}

func (genericStrategy) Listing() *Preset {
	return &Preset{
		ItemSelector: ".item, .event, .listing, .event-item, .event-card",
		Fields: map[string]selector.Spec{
			"full_name":  {Selector: ".title, .name, h2, h3, .event-title"},
			"event_date": {Selector: ".date, .time, [datetime], .event-date"},
			"event_name": {Selector: ".description, .event-description"},
			"source_url": {Selector: "a@href, a.event-link@href"},
		},
		MaxPages:       3,
		TimeoutSeconds: 30,
	}
}

func (genericStrategy) Detail(doc *goquery.Document, pageURL string) (map[string]string, error) {
	out := make(map[string]string)
	text := strings.Join(selector.Lines(doc.Find("body")), "\n")

	if email := findEmail(doc, text); email != "" {
		out["email"] = email
	}
	if phone := findPhone(doc, text); phone != "" {
		out["phone"] = phone
	}
	if company := findOrganizer(text); company != "" {
		out["company"] = company
	}
	if desc, ok := doc.Find("meta[name='description']").First().Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			out["event_description"] = truncate(desc, 500)
		}
	}
	if site, ok := doc.Find("meta[property='og:site_name']").First().Attr("content"); ok {
		if site = strings.TrimSpace(site); site != "" {
			out["site_name"] = truncate(site, 200)
		}
	}

	return out, nil
}

func legitimateEmail(email string) bool {
	le := strings.ToLower(email)
	for _, m := range spamMarkers {
		if strings.Contains(le, m) {
			return false
		}
	}
	return true
}

func findEmail(doc *goquery.Document, text string) string {
	var found string
	doc.Find("a[href^='mailto:'], a[href^='MAILTO:']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if email := cleanEmail(href); email != "" && legitimateEmail(email) {
			found = email
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	for _, email := range emailRe.FindAllString(text, -1) {
		if legitimateEmail(email) {
			return email
		}
	}
	return ""
}

func findPhone(doc *goquery.Document, text string) string {
	if href, ok := doc.Find("a[href^='tel:']").First().Attr("href"); ok {
		if phone := strings.TrimSpace(strings.TrimPrefix(href, "tel:")); phone != "" {
			return phone
		}
	}

	m := phoneRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3])
}

func findOrganizer(text string) string {
	loc := orgLeadRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	end := loc[0] + 100
	if end > len(text) {
		end = len(text)
	}
	m := orgNameRe.FindStringSubmatch(text[loc[0]:end])
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
