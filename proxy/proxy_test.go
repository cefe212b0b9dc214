package proxy

import (
	"net/url"
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func FuzzGetProxy(f *testing.F) {
	f.Add(uint32(1), uint32(10))
	f.Fuzz(func(t *testing.T, index uint32, urlCounts uint32) {
		if urlCounts > 1<<12 {
			t.Skip()
		}

		r := roundRobinSwitcher{}
		r.index = index
		r.proxyURLs = make([]*url.URL, urlCounts)

		for i := 0; i < int(urlCounts); i++ {
			r.proxyURLs[i] = &url.URL{}
			r.proxyURLs[i].Host = strconv.Itoa(i)
		}

		p, err := r.GetProxy(nil)
		if urlCounts == 0 {
			assert.ErrorIs(t, err, ErrEmptyProxyList)
			return
		}

		assert.Nil(t, err)

		e := r.proxyURLs[index%urlCounts]

		if !reflect.DeepEqual(p, e) {
			t.Fail()
		}
	})
}

func TestRoundRobinProxySwitcher(t *testing.T) {
	tests := []struct {
		name    string
		urls    []string
		want    []string
		wantErr bool
	}{
		{name: "empty", wantErr: true},
		{name: "bad scheme", urls: []string{"ftp://10.0.0.1:21"}, wantErr: true},
		{
			name: "rotates",
			urls: []string{"http://10.0.0.1:8080", "socks5://10.0.0.2:1080"},
			want: []string{"10.0.0.1:8080", "10.0.0.2:1080", "10.0.0.1:8080"},
		},
		{
			name: "scheme defaults to http",
			urls: []string{"10.0.0.3:3128"},
			want: []string{"10.0.0.3:3128"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := RoundRobinProxySwitcher(tt.urls...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, host := range tt.want {
				u, err := fn(nil)
				require.NoError(t, err)
				assert.Equal(t, host, u.Host)
			}
		})
	}
}
