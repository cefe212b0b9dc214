package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "leadcrawler-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Café" in latin-1
		w.Write([]byte("<html><body><h1>Caf\xe9</h1></body></html>"))
	}))
	defer srv.Close()

	f := New(WithUserAgent("leadcrawler-test"))
	page, err := f.Fetch(context.Background(), &Request{
		URL:     srv.URL,
		Mode:    Static,
		Timeout: time.Second,
		Headers: map[string]string{"X-Extra": "yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, Static, page.Mode)
	assert.Contains(t, string(page.Body), "<h1>Café</h1>")
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), &Request{URL: srv.URL, Timeout: time.Second})
	require.Error(t, err)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindHTTP, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	start := time.Now()
	_, err := New().Fetch(context.Background(), &Request{URL: srv.URL, Timeout: time.Second})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestFetchDNS(t *testing.T) {
	_, err := New().Fetch(context.Background(), &Request{
		URL:     "http://leadcrawler-does-not-exist.invalid/",
		Timeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, []Kind{KindDNS, KindTimeout}, KindOf(err))
}

func TestFetchInvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/x", "not a url", "http://"} {
		_, err := New().Fetch(context.Background(), &Request{URL: u})
		require.Error(t, err, u)
		assert.ErrorIs(t, err, ErrInvalidURL, u)
		assert.Equal(t, KindUnknown, KindOf(err), u)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "dns error", err: &net.DNSError{Err: "no such host", Name: "x.invalid"}, want: KindDNS},
		{name: "dns timeout", err: &net.DNSError{Err: "timeout", Name: "x", IsTimeout: true}, want: KindTimeout},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutErr{}}, want: KindTimeout},
		{name: "chrome dns", err: errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), want: KindDNS},
		{name: "chrome timeout", err: errors.New("page load error net::ERR_TIMED_OUT"), want: KindTimeout},
		{name: "chrome http", err: errors.New("page load error net::ERR_HTTP_RESPONSE_CODE_FAILURE"), want: KindHTTP},
		{name: "typed", err: &Error{Kind: KindHTTP, StatusCode: 500}, want: KindHTTP},
		{name: "other", err: errors.New("connection reset by peer"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: Static},
		{in: "static", want: Static},
		{in: "html", want: Static},
		{in: "Rendered", want: Rendered},
		{in: "playwright", want: Rendered},
		{in: "ftp", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseWaitCondition(t *testing.T) {
	w, err := ParseWaitCondition("")
	require.NoError(t, err)
	assert.Equal(t, WaitNetworkIdle, w)

	w, err = ParseWaitCondition("LOAD")
	require.NoError(t, err)
	assert.Equal(t, WaitLoad, w)

	_, err = ParseWaitCondition("whenever")
	assert.Error(t, err)
}

func TestHostInterval(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := New(WithHostInterval(50 * time.Millisecond))
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), &Request{URL: srv.URL, Timeout: time.Second})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hits, 3)
	assert.GreaterOrEqual(t, hits[2].Sub(hits[0]), 80*time.Millisecond)
}
