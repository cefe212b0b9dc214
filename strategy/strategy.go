// Package strategy binds platform names to listing presets and detail-page
// extraction routines, and resolves URLs to those names.
package strategy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/selector"
)

const Generic = "generic"

// Preset is a ready-made listing configuration for a platform.
type Preset struct {
	Mode             fetcher.Mode
	ItemSelector     string
	Fields           map[string]selector.Spec
	NextPageSelector string
	MaxPages         int
	TimeoutSeconds   int
	WaitUntil        fetcher.WaitCondition
}

// Strategy extracts platform specific data. Listing returns nil when the
// platform has no stage-1 preset.
type Strategy interface {
	Name() string
	Listing() *Preset
	Detail(doc *goquery.Document, pageURL string) (map[string]string, error)
}

// Signature routes URLs on Domain (and its subdomains) whose path starts
// with PathPrefix to a strategy.
type Signature struct {
	Domain     string
	PathPrefix string
	Strategy   string
}

func (s Signature) matches(host, path string) bool {
	if host != s.Domain && !strings.HasSuffix(host, "."+s.Domain) {
		return false
	}
	return s.PathPrefix == "" || strings.HasPrefix(path, s.PathPrefix)
}

type Registry struct {
	mu         sync.RWMutex
	signatures []Signature
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding only the generic strategy.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.strategies[Generic] = genericStrategy{}
	return r
}

// Register adds or replaces a strategy and routes the given domains to it.
func (r *Registry) Register(s Strategy, sigs ...Signature) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("strategy name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.strategies[name] = s
	for _, sig := range sigs {
		sig.Domain = normalizeHost(sig.Domain)
		if sig.Domain == "" {
			return fmt.Errorf("strategy %s: empty signature domain", name)
		}
		sig.Strategy = name
		r.signatures = append(r.signatures, sig)
	}
	// most specific signature first
	sort.SliceStable(r.signatures, func(i, j int) bool {
		a, b := r.signatures[i], r.signatures[j]
		return len(a.Domain)+len(a.PathPrefix) > len(b.Domain)+len(b.PathPrefix)
	})

	return nil
}

// Resolve returns the strategy name for rawURL, or Generic. It never looks
// at page content.
func (r *Registry) Resolve(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Generic
	}
	host := normalizeHost(u.Hostname())
	path := u.EscapedPath()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sig := range r.signatures {
		if sig.matches(host, path) {
			return sig.Strategy
		}
	}

	return Generic
}

// Get looks a strategy up by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// For returns the strategy serving rawURL.
func (r *Registry) For(rawURL string) Strategy {
	if s, ok := r.Get(r.Resolve(rawURL)); ok {
		return s
	}
	s, _ := r.Get(Generic)
	return s
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}
