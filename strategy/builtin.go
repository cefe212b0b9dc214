package strategy

import (
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/selector"
)

// Default returns a registry with every built-in platform registered.
func Default() *Registry {
	r := NewRegistry()
	for _, b := range builtins() {
		if err := r.Register(b.strategy, b.signatures...); err != nil {
			panic(err)
		}
	}
	return r
}

type builtin struct {
	strategy   Strategy
	signatures []Signature
}

func domains(names ...string) []Signature {
	sigs := make([]Signature, 0, len(names))
	for _, n := range names {
		sigs = append(sigs, Signature{Domain: n})
	}
	return sigs
}

func specs(m map[string]string) map[string]selector.Spec {
	out := make(map[string]selector.Spec, len(m))
	for k, v := range m {
		out[k] = selector.Spec{Selector: v}
	}
	return out
}

func builtins() []builtin {
	return []builtin{
		{
			strategy: NewRuleStrategy("eventbrite",
				&Preset{
					Mode:         fetcher.Static,
					ItemSelector: ".event-card, .search-event-card-wrapper, [data-testid='search-result'], .event-tile",
					Fields: specs(map[string]string{
						"full_name":  ".event-title, .event-card-title, [data-testid='event-title'], h2.event-title",
						"event_date": ".event-date, [data-testid='event-date'], .event-card-date, time",
						"event_name": ".event-description, .event-card-description, .event-summary",
						"source_url": "a.event-card-link@href, a[data-testid='event-link']@href, a.event-link@href",
					}),
					NextPageSelector: "a.pagination-next, a[aria-label='Next'], [data-testid='pagination-next'], .pagination a:contains('Next')",
					MaxPages:         5,
					TimeoutSeconds:   30,
				},
				field("company", ".organizer-name, [class*='organizer'] h2, [class*='organizer'] h3, .event-details__organizer-name"),
				longField("event_description", ".event-description, [class*='description'] [class*='text'], .structured-content-rich-text", 1000),
				field("organizer_url", "a[href*='/o/']@href"),
				field("website", "a[rel='nofollow'][target='_blank'][href^='http']@href", "eventbrite."),
				field("event_datetime", "time[datetime]@datetime, [datetime]@datetime"),
				field("location", ".event-details__location, [class*='location'] [class*='address'], [class*='venue-name']"),
			),
			signatures: domains("eventbrite.com", "eventbrite.co.uk", "eventbrite.ca", "eventbrite.com.au", "eventbrite.ie"),
		},
		{
			strategy: NewRuleStrategy("meetup",
				&Preset{
					Mode:         fetcher.Rendered,
					ItemSelector: ".eventCard, [data-testid='event-card'], .event-listing, .event-card",
					Fields: specs(map[string]string{
						"full_name":  ".eventCard-title, [data-testid='event-title'], .event-title, h3.eventCard-title",
						"event_date": ".eventCard-date, [data-testid='event-date'], .event-date, time",
						"event_name": ".eventCard-description, .event-description, .event-summary",
						"source_url": "a.eventCard-link@href, a[data-testid='event-link']@href, a.event-link@href",
					}),
					NextPageSelector: "a[data-testid='pagination-next'], .pagination-next, a.pagination-link:contains('Next')",
					MaxPages:         3,
					TimeoutSeconds:   45,
					WaitUntil:        fetcher.WaitNetworkIdle,
				},
				field("company", "[class*='groupName'], .groupName, [id*='group-name']"),
				longField("event_description", "[class*='description'], .event-description, [class*='eventDescription']", 1000),
				field("website", "a[href*='http'][rel='noopener']@href", "meetup.com", "facebook.com"),
				field("organizer_name", "[class*='host'], [class*='organizer']"),
				field("location", "[class*='venueAddress'], [class*='venue']"),
			),
			signatures: domains("meetup.com"),
		},
		{
			strategy: NewRuleStrategy("facebook", &Preset{
				Mode:         fetcher.Rendered,
				ItemSelector: "[data-testid='event-card'], .event-card, .event-item",
				Fields: specs(map[string]string{
					"full_name":  "[data-testid='event-title'], .event-title, h2, h3",
					"event_date": "[data-testid='event-date'], .event-date, time",
					"event_name": "[data-testid='event-description'], .event-description",
					"source_url": "a[data-testid='event-link']@href, a.event-link@href",
				}),
				NextPageSelector: "a[aria-label='Next'], .pagination-next",
				MaxPages:         3,
				TimeoutSeconds:   60,
				WaitUntil:        fetcher.WaitNetworkIdle,
			}),
			signatures: domains("facebook.com", "fb.com"),
		},
		{
			strategy: NewRuleStrategy("eventful", &Preset{
				Mode:         fetcher.Static,
				ItemSelector: ".event-item, .event-card, .event-listing",
				Fields: specs(map[string]string{
					"full_name":  ".event-title, h2, h3",
					"event_date": ".event-date, .date, time",
					"event_name": ".event-description, .description",
					"source_url": "a.event-link@href, a@href",
				}),
				NextPageSelector: ".pagination .next, a.next",
				MaxPages:         5,
				TimeoutSeconds:   30,
			}),
			signatures: domains("eventful.com"),
		},
		{
			strategy: NewRuleStrategy("brownpapertickets", &Preset{
				Mode:         fetcher.Static,
				ItemSelector: ".event-item, .event-listing, .event",
				Fields: specs(map[string]string{
					"full_name":  ".event-title, .title, h2",
					"event_date": ".event-date, .date",
					"event_name": ".event-description",
					"source_url": "a.event-link@href",
				}),
				NextPageSelector: ".pagination .next",
				MaxPages:         5,
				TimeoutSeconds:   30,
			}),
			signatures: domains("brownpapertickets.com"),
		},
		{
			strategy: NewRuleStrategy("ticketmaster", &Preset{
				Mode:         fetcher.Rendered,
				ItemSelector: ".event-tile, .event-card, [data-testid='event-card']",
				Fields: specs(map[string]string{
					"full_name":  ".event-title, [data-testid='event-title'], h3",
					"event_date": ".event-date, [data-testid='event-date'], time",
					"event_name": ".event-description",
					"source_url": "a.event-link@href, a[data-testid='event-link']@href",
				}),
				NextPageSelector: ".pagination-next, a[aria-label='Next']",
				MaxPages:         5,
				TimeoutSeconds:   45,
				WaitUntil:        fetcher.WaitNetworkIdle,
			}),
			signatures: domains("ticketmaster.com"),
		},
		{
			strategy: NewRuleStrategy("linkedin", nil,
				field("full_name", ".top-card-layout__title, h1[class*='name'], .pv-text-details__title"),
				field("company", ".top-card-layout__headline, [class*='headline'], .pv-text-details__subtitle"),
				longField("description", ".about-section, [class*='summary'], .pv-about-section", 1000),
				field("email", "[href^='mailto:']@href"),
				field("website", "a[data-field='website_url']@href"),
			),
			signatures: domains("linkedin.com"),
		},
		{
			strategy: NewRuleStrategy("twitter", nil,
				field("full_name", "[data-testid='UserName'] span"),
				field("description", "[data-testid='UserDescription']"),
				field("website", "a[href*='t.co'][target='_blank']@href"),
				field("location", "[data-testid='UserLocation']"),
			),
			signatures: domains("twitter.com", "x.com"),
		},
	}
}
