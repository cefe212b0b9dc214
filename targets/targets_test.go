package targets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/selector"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/sqldb"
	"github.com/dreamerjackson/leadcrawler/sqlstorage"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlTargets = `
- name: Go Meetups
  start_url: https://example.com/events
  target_type: playwright
  run_every_minutes: 30
  config:
    item_selector: .event-card
    fields:
      event_name: h2
      source_url: "a.event-link@href, a@href"
      price:
        selector: .price
        regex: '(\d+)'
        default: "0"
    max_pages: 2
- name: Quiet
  start_url: https://example.org/list
  enabled: false
  config:
    item_selector: li
    fields:
      title: span
`

const jsonTargets = `[
  {"name": "Go Meetups", "start_url": "https://example.com/events/v2",
   "fetch_mode": "static",
   "config": {"item_selector": ".card", "fields": {"event_name": "h3"}}},
  {"name": "Broken", "start_url": "https://example.net",
   "config": {"item_selector": "div", "fields": {"x": "a[href"}}}
]`

func newStore(t *testing.T) *sqlstorage.SQLStorage {
	t.Helper()
	s, err := sqlstorage.New(sqlstorage.WithDialect(sqldb.SQLite), sqlstorage.WithSQLURL(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestParseYAML(t *testing.T) {
	entries, err := Parse(strings.NewReader(yamlTargets), YAML)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	tg, err := entries[0].Target()
	require.NoError(t, err)
	assert.Equal(t, fetcher.Rendered, tg.Mode)
	assert.True(t, tg.Enabled)
	assert.Equal(t, 30, tg.IntervalMinutes)
	assert.Equal(t, "a.event-link@href, a@href", tg.Config.Fields["source_url"].Selector)
	assert.Equal(t, `(\d+)`, tg.Config.Fields["price"].Regex)
	assert.Equal(t, "0", tg.Config.Fields["price"].Default)
	require.NoError(t, tg.Validate())

	quiet, err := entries[1].Target()
	require.NoError(t, err)
	assert.False(t, quiet.Enabled)
	assert.Equal(t, fetcher.Static, quiet.Mode)
	assert.Equal(t, spider.DefaultIntervalMinutes, quiet.IntervalMinutes)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		format Format
	}{
		{name: "yaml_map", body: "name: x\n", format: YAML},
		{name: "json_object", body: `{"name": "x"}`, format: JSON},
		{name: "bad_json", body: `[{"name": }]`, format: JSON},
		{name: "bad_yaml", body: "- [", format: YAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body), tt.format)
			assert.Error(t, err)
		})
	}

	_, err := Entry{Name: "x", TargetType: "ftp"}.Target()
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonTargets), 0o600))
	assert.Equal(t, JSON, FormatOf(path))
	assert.Equal(t, YAML, FormatOf("targets.yml"))

	entries, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	first, err := Parse(strings.NewReader(yamlTargets), YAML)
	require.NoError(t, err)
	second, err := Parse(strings.NewReader(jsonTargets), JSON)
	require.NoError(t, err)

	// dry run writes nothing
	rep, err := Sync(ctx, store, first, SyncOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Count(Created))
	all, err := store.ListTargets(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)

	rep, err = Sync(ctx, store, first, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Count(Created))

	// existing targets are skipped without --update
	rep, err = Sync(ctx, store, second, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(Skipped))
	assert.Equal(t, 1, rep.Count(Invalid))
	got, err := store.GetTargetByName(ctx, "Go Meetups")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/events", got.StartURL)

	rep, err = Sync(ctx, store, second, SyncOptions{Update: true, DisableMissing: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(Updated))
	assert.Equal(t, 0, rep.Count(Disabled), "Quiet is already disabled")

	rep, err = Sync(ctx, store, second, SyncOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(Updated))
	got, err = store.GetTargetByName(ctx, "Go Meetups")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/events/v2", got.StartURL)
	assert.Equal(t, fetcher.Static, got.Mode)
	assert.Equal(t, ".card", got.Config.ItemSelector)
}

func TestSyncDisableMissing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	entries := []Entry{
		{Name: "keep", StartURL: "https://a.example.com", Config: spider.ExtractionConfig{
			ItemSelector: "li", Fields: map[string]selector.Spec{"t": {Selector: "span"}}}},
		{Name: "drop", StartURL: "https://b.example.com", Config: spider.ExtractionConfig{
			ItemSelector: "li", Fields: map[string]selector.Spec{"t": {Selector: "span"}}}},
	}
	_, err := Sync(ctx, store, entries, SyncOptions{})
	require.NoError(t, err)

	rep, err := Sync(ctx, store, entries[:1], SyncOptions{DisableMissing: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(Disabled))
	enabled, err := store.ListTargets(ctx, true)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	rep, err = Sync(ctx, store, entries[:1], SyncOptions{DisableMissing: true})
	require.NoError(t, err)
	assert.Equal(t, []Change{{Name: "keep", Action: Skipped}, {Name: "drop", Action: Disabled}}, rep.Changes)
	enabled, err = store.ListTargets(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "keep", enabled[0].Name)
}

func TestDiscover(t *testing.T) {
	reg := strategy.Default()

	tests := []struct {
		url          string
		name         string
		wantName     string
		wantPlatform string
		wantMode     fetcher.Mode
	}{
		{url: "https://www.eventbrite.com/d/ny--new-york/events/", wantName: "Auto-Eventbrite", wantPlatform: "eventbrite", wantMode: fetcher.Static},
		{url: "https://www.meetup.com/find/", wantName: "Auto-Meetup", wantPlatform: "meetup", wantMode: fetcher.Rendered},
		{url: "https://www.linkedin.com/events/", wantName: "Auto-Linkedin", wantPlatform: strategy.Generic, wantMode: fetcher.Static},
		{url: "https://gophers.dev/events", name: "Gophers", wantName: "Gophers", wantPlatform: strategy.Generic, wantMode: fetcher.Static},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			tg, platform, err := Discover(reg, tt.url, tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, tg.Name)
			assert.Equal(t, tt.wantPlatform, platform)
			assert.Equal(t, tt.wantMode, tg.Mode)
			assert.Equal(t, DiscoverIntervalMinutes, tg.IntervalMinutes)
			assert.True(t, tg.Enabled)
			assert.NoError(t, tg.Validate())
		})
	}

	_, _, err := Discover(reg, "not a url", "")
	assert.Error(t, err)
}
