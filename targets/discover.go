package targets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/selector"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DiscoverIntervalMinutes = 120

// Discover builds a target for rawURL from the listing preset of the
// platform it resolves to, falling back to the generic preset. An empty
// name becomes "Auto-<Domain>".
func Discover(registry *strategy.Registry, rawURL, name string) (*spider.Target, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", fetcher.ErrInvalidURL, rawURL)
	}

	platform := registry.Resolve(rawURL)
	s, _ := registry.Get(platform)
	var preset *strategy.Preset
	if s != nil {
		preset = s.Listing()
	}
	if preset == nil {
		platform = strategy.Generic
		g, _ := registry.Get(strategy.Generic)
		preset = g.Listing()
	}

	if name == "" {
		name = "Auto-" + domainLabel(u.Hostname())
	}

	fields := make(map[string]selector.Spec, len(preset.Fields))
	for k, v := range preset.Fields {
		fields[k] = v
	}

	t := &spider.Target{
		Name:            name,
		StartURL:        rawURL,
		Mode:            preset.Mode,
		Enabled:         true,
		IntervalMinutes: DiscoverIntervalMinutes,
		Config: spider.ExtractionConfig{
			ItemSelector:     preset.ItemSelector,
			Fields:           fields,
			NextPageSelector: preset.NextPageSelector,
			MaxPages:         preset.MaxPages,
			TimeoutSeconds:   preset.TimeoutSeconds,
			WaitUntil:        string(preset.WaitUntil),
		},
	}
	t.ApplyDefaults()

	return t, platform, nil
}

func domainLabel(host string) string {
	label := strings.Split(strings.TrimPrefix(strings.ToLower(host), "www."), ".")[0]
	if label == "" {
		return "Discovered"
	}
	return cases.Title(language.Und).String(label)
}
