package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
)

// Func picks the proxy for one outgoing request; it matches
// http.Transport.Proxy.
type Func func(*http.Request) (*url.URL, error)

var ErrEmptyProxyList = errors.New("proxy URL list is empty")

type roundRobinSwitcher struct {
	proxyURLs []*url.URL
	index     uint32
}

func (r *roundRobinSwitcher) GetProxy(pr *http.Request) (*url.URL, error) {
	if len(r.proxyURLs) == 0 {
		return nil, ErrEmptyProxyList
	}
	index := atomic.AddUint32(&r.index, 1) - 1
	u := r.proxyURLs[index%uint32(len(r.proxyURLs))]
	return u, nil
}

// RoundRobinProxySwitcher rotates proxyURLs on every request. Supported
// schemes are http, https and socks5; an empty scheme means http.
func RoundRobinProxySwitcher(proxyURLs ...string) (Func, error) {
	if len(proxyURLs) < 1 {
		return nil, ErrEmptyProxyList
	}
	urls := make([]*url.URL, len(proxyURLs))
	for i, u := range proxyURLs {
		parsedU, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", u, err)
		}
		if parsedU.Scheme == "" {
			if parsedU, err = url.Parse("http://" + u); err != nil {
				return nil, fmt.Errorf("parse proxy %q: %w", u, err)
			}
		}
		switch parsedU.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("proxy %q: unsupported scheme %q", u, parsedU.Scheme)
		}
		urls[i] = parsedU
	}
	return (&roundRobinSwitcher{proxyURLs: urls}).GetProxy, nil
}
