package runner

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `<html><body>
<div class="event-card"><h2>Go Night %[1]d</h2><a class="event-link" href="/e/%[1]d-a">more</a></div>
<div class="event-card"><h2>Rust Night %[1]d</h2><a class="event-link" href="/e/%[1]d-b">more</a></div>
%[2]s
</body></html>`

// eventSite serves two listing pages and an empty third page.
func eventSite(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprintf(w, listing, 1, `<a class="next" href="/events?page=2">next</a>`)
		case "2":
			fmt.Fprintf(w, listing, 2, `<a class="next" href="/events?page=3">next</a>`)
		default:
			fmt.Fprint(w, `<html><body><p>No more events</p><a class="next" href="/events?page=4">next</a></body></html>`)
		}
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
	})
	mux.HandleFunc("/anonymous", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="event-card"><a class="event-link" href="/x">x</a></div></body></html>`)
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

func saveTarget(t *testing.T, store spider.Store, startURL string, mutate func(*spider.Target)) *spider.Target {
	t.Helper()
	tg := &spider.Target{
		Name:            "events",
		StartURL:        startURL,
		Mode:            fetcher.Static,
		Enabled:         true,
		IntervalMinutes: 60,
		Config: spider.ExtractionConfig{
			ItemSelector: ".event-card",
			Fields: map[string]selector.Spec{
				"event_name": {Selector: "h2"},
				"source_url": {Selector: "a.event-link", Attr: "href"},
			},
			NextPageSelector: "a.next",
			MaxPages:         5,
			TimeoutSeconds:   5,
		},
	}
	if mutate != nil {
		mutate(tg)
	}
	_, err := store.SaveTarget(context.Background(), tg)
	require.NoError(t, err)
	return tg
}

func TestRunPaginatesUntilEmptyPage(t *testing.T) {
	srv := eventSite(t)
	store := newStore(t)
	rec := &notify.Recorder{}
	tg := saveTarget(t, store, srv.URL+"/events", nil)

	r := New(store, fetcher.New(), WithSink(rec))
	run, err := r.Run(context.Background(), tg.ID, spider.TriggerScheduled)
	require.NoError(t, err)

	assert.Equal(t, spider.RunSuccess, run.Status)
	assert.Equal(t, 4, run.ItemCount)
	assert.Equal(t, 4, run.CreatedCount)
	assert.Equal(t, 4, run.ForwardedCount)
	assert.Equal(t, 2, run.Stats["pages"])
	assert.Equal(t, []int{2, 2}, run.Stats["page_items"])
	assert.Len(t, run.Stats["warnings"], 1)

	events := rec.Events(notify.KindDiscovery)
	require.Len(t, events, 4)
	assert.Equal(t, "Go Night 1", events[0].Fields["event_name"])
	assert.Equal(t, srv.URL+"/e/1-a", events[0].SourceURL)
	assert.Equal(t, srv.URL+"/e/2-b", events[3].SourceURL)

	runs := rec.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, spider.RunSuccess, runs[0].Status)

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, spider.RunSuccess, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	got, err := store.GetTarget(context.Background(), tg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)

	// a second pass updates the same records
	again, err := r.Run(context.Background(), tg.ID, spider.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, again.CreatedCount)
	assert.Equal(t, 4, again.UpdatedCount)
}

func TestRunFailures(t *testing.T) {
	srv := eventSite(t)

	tests := []struct {
		name     string
		path     string
		mutate   func(*spider.Target)
		wantKind string
	}{
		{name: "zero_items_first_page", path: "/empty", wantKind: spider.KindExtraction},
		{name: "http_error", path: "/missing", wantKind: string(fetcher.KindHTTP)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			rec := &notify.Recorder{}
			tg := saveTarget(t, store, srv.URL+tt.path, tt.mutate)

			run, err := New(store, fetcher.New(), WithSink(rec)).Run(context.Background(), tg.ID, "")
			require.NoError(t, err)
			assert.Equal(t, spider.RunFailed, run.Status)
			assert.Equal(t, tt.wantKind, run.ErrorKind)
			assert.NotEmpty(t, run.ErrorMessage)
			assert.Equal(t, spider.TriggerManual, run.Trigger)

			got, err := store.GetTarget(context.Background(), tg.ID)
			require.NoError(t, err)
			assert.Nil(t, got.LastRunAt)
			assert.Len(t, rec.Runs(), 1)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer srv.Close()
	defer close(done)

	store := newStore(t)
	tg := saveTarget(t, store, srv.URL+"/slow", func(tg *spider.Target) {
		tg.Config.TimeoutSeconds = 30
		tg.Config.RunTimeoutSeconds = 1
	})

	start := time.Now()
	run, err := New(store, fetcher.New()).Run(context.Background(), tg.ID, spider.TriggerScheduled)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, spider.RunFailed, run.Status)
	assert.Equal(t, string(fetcher.KindTimeout), run.ErrorKind)
}

func TestRunGateFiltersForwarding(t *testing.T) {
	srv := eventSite(t)
	store := newStore(t)
	rec := &notify.Recorder{}
	tg := saveTarget(t, store, srv.URL+"/anonymous", nil)

	run, err := New(store, fetcher.New(), WithSink(rec)).Run(context.Background(), tg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, spider.RunSuccess, run.Status)
	assert.Equal(t, 1, run.ItemCount)
	assert.Equal(t, 1, run.CreatedCount)
	assert.Equal(t, 0, run.ForwardedCount)
	assert.Empty(t, rec.Events(""))
}

func TestRunIdentityFieldsOverride(t *testing.T) {
	srv := eventSite(t)
	store := newStore(t)
	rec := &notify.Recorder{}
	tg := saveTarget(t, store, srv.URL+"/anonymous", func(tg *spider.Target) {
		tg.Config.IdentityFields = []string{"source_url"}
	})

	run, err := New(store, fetcher.New(), WithSink(rec)).Run(context.Background(), tg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.ForwardedCount)
}

func TestRunForwardsAliasedFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="listing">
<span class="org">Acme Ltd</span><p class="blurb">Go Night</p><span class="tel">+1 650-253-0000</span>
<a href="/e/7">more</a></div></body></html>`)
	}))
	defer srv.Close()
	store := newStore(t)
	rec := &notify.Recorder{}
	tg := saveTarget(t, store, srv.URL+"/list", func(tg *spider.Target) {
		tg.Config.ItemSelector = ".listing"
		tg.Config.NextPageSelector = ""
		tg.Config.Fields = map[string]selector.Spec{
			"organization": {Selector: ".org"},
			"event_text":   {Selector: ".blurb"},
			"phone_number": {Selector: ".tel"},
			"source_url":   {Selector: "a", Attr: "href"},
		}
	})

	run, err := New(store, fetcher.New(), WithSink(rec)).Run(context.Background(), tg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, spider.RunSuccess, run.Status)
	assert.Equal(t, 1, run.CreatedCount)
	assert.Equal(t, 1, run.ForwardedCount)

	events := rec.Events(notify.KindDiscovery)
	require.Len(t, events, 1)
	assert.Equal(t, "Acme Ltd", events[0].Fields["company"])
	assert.Equal(t, "Go Night", events[0].Fields["event_name"])
	assert.Equal(t, "+16502530000", events[0].Fields["phone_e164"])
}

// flakyStore fails record upserts after the first n succeed.
type flakyStore struct {
	spider.Store
	n int
}

func (s *flakyStore) UpsertRecord(ctx context.Context, r *spider.Record) (*spider.Record, bool, error) {
	if s.n == 0 {
		return nil, false, errors.New("disk full")
	}
	s.n--
	return s.Store.UpsertRecord(ctx, r)
}

func TestRunStorageFailureKeepsPartialWrites(t *testing.T) {
	srv := eventSite(t)
	base := newStore(t)
	store := &flakyStore{Store: base, n: 1}
	tg := saveTarget(t, base, srv.URL+"/events", nil)

	run, err := New(store, fetcher.New()).Run(context.Background(), tg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, spider.RunFailed, run.Status)
	assert.Equal(t, spider.KindStorage, run.ErrorKind)
	assert.Equal(t, 2, run.ItemCount)
	assert.Equal(t, 1, run.CreatedCount)

	recs, err := base.ListUndetailed(context.Background(), spider.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestRunUnknownTarget(t *testing.T) {
	_, err := New(newStore(t), fetcher.New()).Run(context.Background(), 404, "")
	assert.ErrorIs(t, err, spider.ErrNotFound)
}
