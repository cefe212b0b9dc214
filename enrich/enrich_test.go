package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/notify"
	"github.com/dreamerjackson/leadcrawler/selector"
	"github.com/dreamerjackson/leadcrawler/spider"
	"github.com/dreamerjackson/leadcrawler/sqldb"
	"github.com/dreamerjackson/leadcrawler/sqlstorage"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/e/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Questions? <a href="mailto:host@gophers.dev">mail us</a></p>
			<p>This event is organized by Gopher Guild.</p></body></html>`)
	})
	mux.HandleFunc("/e/2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/e/3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Call 555-123-4567</p></body></html>`)
	})
	mux.HandleFunc("/e/4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing useful</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newStore(t *testing.T) *sqlstorage.SQLStorage {
	t.Helper()
	s, err := sqlstorage.New(sqlstorage.WithDialect(sqldb.SQLite), sqlstorage.WithSQLURL(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, store spider.Store, startURL string, paths ...string) (*spider.Target, []*spider.Record) {
	t.Helper()
	ctx := context.Background()
	tg := &spider.Target{
		Name:            "events-" + startURL,
		StartURL:        startURL,
		Mode:            fetcher.Static,
		Enabled:         true,
		IntervalMinutes: 60,
		Config: spider.ExtractionConfig{
			ItemSelector:   ".event-card",
			Fields:         map[string]selector.Spec{"event_name": {Selector: "h2"}},
			TimeoutSeconds: 5,
		},
	}
	_, err := store.SaveTarget(ctx, tg)
	require.NoError(t, err)

	var recs []*spider.Record
	for i, p := range paths {
		r, _, err := store.UpsertRecord(ctx, spider.NewRecord(tg.ID, startURL, map[string]string{
			"event_name": fmt.Sprintf("Event %d", i+1),
			"source_url": p,
		}))
		require.NoError(t, err)
		recs = append(recs, r)
	}
	return tg, recs
}

func TestEnrichIsolatesFailures(t *testing.T) {
	srv := detailSite(t)
	store := newStore(t)
	rec := &notify.Recorder{}
	_, recs := seed(t, store, srv.URL+"/events", "/e/1", "/e/2", "/e/3")

	c := New(store, fetcher.New(), strategy.Default(), WithSink(rec), WithDelay(time.Millisecond))
	res, err := c.Enrich(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Selected)
	assert.Equal(t, 2, res.Enriched)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, spider.Enriched, res.Outcomes[0].State)
	assert.Equal(t, spider.EnrichFailed, res.Outcomes[1].State)
	assert.Contains(t, res.Outcomes[1].Err, "http-error")
	assert.Equal(t, spider.Enriched, res.Outcomes[2].State)
	assert.Equal(t, strategy.Generic, res.Outcomes[0].Strategy)

	first, err := store.GetRecord(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "host@gophers.dev", first.Detail["email"])
	assert.Equal(t, "Gopher Guild", first.Detail["company"])
	assert.Equal(t, "Event 1", first.Fields["event_name"])
	assert.NotNil(t, first.EnrichedAt)

	second, err := store.GetRecord(context.Background(), recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, spider.EnrichFailed, second.EnrichState)
	assert.NotEmpty(t, second.EnrichError)

	// record 1 carries company and email; record 3 only a phone number
	events := rec.Events(notify.KindEnrichment)
	require.Len(t, events, 1)
	assert.Equal(t, recs[0].ID, events[0].RecordID)
	assert.Equal(t, 1, res.Forwarded)

	// nothing left unless failed records are retried
	res, err = c.Enrich(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Selected)
	res, err = c.Enrich(context.Background(), Request{IncludeFailed: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Selected)
}

func TestEnrichNothingExtracted(t *testing.T) {
	srv := detailSite(t)
	store := newStore(t)
	_, recs := seed(t, store, srv.URL+"/events", "/e/4")

	res, err := New(store, fetcher.New(), strategy.Default(), WithDelay(time.Millisecond)).
		Enrich(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Outcomes[0].Err, ErrNothingExtracted.Error())

	got, err := store.GetRecord(context.Background(), recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, spider.EnrichFailed, got.EnrichState)
}

// brokenSaves fails every SaveEnrichment call.
type brokenSaves struct {
	spider.Store
}

func (brokenSaves) SaveEnrichment(ctx context.Context, r *spider.Record) error {
	return errors.New("database is locked")
}

func TestEnrichSaveFailureKeepsStoredState(t *testing.T) {
	srv := detailSite(t)
	base := newStore(t)
	rec := &notify.Recorder{}
	_, recs := seed(t, base, srv.URL+"/events", "/e/1", "/e/2")

	res, err := New(brokenSaves{base}, fetcher.New(), strategy.Default(), WithSink(rec), WithDelay(time.Millisecond)).
		Enrich(context.Background(), Request{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Selected)
	assert.Equal(t, 0, res.Enriched)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, res.Unsaved)
	assert.Equal(t, 0, res.Forwarded)
	for _, o := range res.Outcomes {
		assert.True(t, o.Unsaved)
		assert.Equal(t, spider.Undetailed, o.State)
		assert.Contains(t, o.Err, spider.KindStorage)
	}
	assert.Empty(t, rec.Events(notify.KindEnrichment))

	for _, r := range recs {
		got, err := base.GetRecord(context.Background(), r.ID)
		require.NoError(t, err)
		assert.Equal(t, spider.Undetailed, got.EnrichState)
	}
}

func TestEnrichDelayFloor(t *testing.T) {
	srv := detailSite(t)
	store := newStore(t)
	seed(t, store, srv.URL+"/events", "/e/1", "/e/3", "/e/4")

	c := New(store, fetcher.New(), strategy.Default())
	start := time.Now()
	res, err := c.Enrich(context.Background(), Request{Delay: 150 * time.Millisecond})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 3)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestEnrichDryRunAndFilters(t *testing.T) {
	srv := detailSite(t)
	store := newStore(t)
	tg, _ := seed(t, store, srv.URL+"/events", "/e/1", "/e/3")
	other, _ := seed(t, store, "https://www.eventbrite.com/d/online/", "https://www.eventbrite.com/e/9")

	c := New(store, fetcher.New(), strategy.Default(), WithDelay(time.Millisecond))
	tests := []struct {
		name string
		req  Request
		want int
	}{
		{name: "all", req: Request{}, want: 3},
		{name: "limit", req: Request{Limit: 1}, want: 1},
		{name: "target", req: Request{TargetID: tg.ID}, want: 2},
		{name: "platform", req: Request{Platform: "eventbrite"}, want: 1},
		{name: "platform_and_other_target", req: Request{Platform: "eventbrite", TargetID: tg.ID}, want: 0},
		{name: "unknown_platform", req: Request{Platform: "meetup"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.DryRun = true
			res, err := c.Enrich(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Selected)
			for _, o := range res.Outcomes {
				assert.Equal(t, spider.Undetailed, o.State)
				if o.TargetID == other.ID {
					assert.Equal(t, "eventbrite", o.Strategy)
				}
			}
		})
	}
}

func TestEnrichCancelledLeavesRestUndetailed(t *testing.T) {
	srv := detailSite(t)
	store := newStore(t)
	_, recs := seed(t, store, srv.URL+"/events", "/e/1", "/e/3")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c := New(store, fetcher.New(), strategy.Default(), WithDelay(time.Hour))
	res, err := c.Enrich(ctx, Request{})
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.Len(t, res.Outcomes, 1)

	got, err := store.GetRecord(context.Background(), recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, spider.Undetailed, got.EnrichState)
}
