// Package spider holds the crawler's domain model: scrape targets, their
// runs and the records they discover, plus the repository contracts the
// storage layer implements.
package spider

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/dreamerjackson/leadcrawler/extract"
	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/selector"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultIntervalMinutes = 60
	DefaultMaxPages        = 1
	DefaultTimeoutSeconds  = 30
	// pageSlackSeconds is added per page to the overall run deadline.
	pageSlackSeconds = 5
)

var ErrInvalidTarget = errors.New("invalid target")

var validate = validator.New()

type Target struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name" validate:"required,max=200"`
	StartURL        string           `json:"start_url" validate:"required,url"`
	Mode            fetcher.Mode     `json:"fetch_mode" validate:"oneof=static rendered"`
	Enabled         bool             `json:"enabled"`
	IntervalMinutes int              `json:"run_every_minutes" validate:"min=1"`
	Config          ExtractionConfig `json:"config"`
	LastRunAt       *time.Time       `json:"last_run_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ExtractionConfig is the persisted extraction contract of a target.
type ExtractionConfig struct {
	ItemSelector      string                   `json:"item_selector" validate:"required"`
	Fields            map[string]selector.Spec `json:"fields" validate:"required,min=1,dive,keys,required,endkeys"`
	NextPageSelector  string                   `json:"next_page_selector,omitempty"`
	MaxPages          int                      `json:"max_pages,omitempty" validate:"min=0"`
	TimeoutSeconds    int                      `json:"timeout_seconds,omitempty" validate:"min=0"`
	RunTimeoutSeconds int                      `json:"run_timeout_seconds,omitempty" validate:"min=0"`
	WaitUntil         string                   `json:"wait_until,omitempty" validate:"omitempty,oneof=load domcontentloaded networkidle"`
	Headers           map[string]string        `json:"headers,omitempty"`
	IdentityFields    []string                 `json:"identity_fields,omitempty"`
}

// Plan is an ExtractionConfig compiled for execution.
type Plan struct {
	Extractor      *extract.Extractor
	Rules          []selector.Rule
	MaxPages       int
	Timeout        time.Duration
	RunTimeout     time.Duration
	WaitUntil      fetcher.WaitCondition
	Headers        map[string]string
	IdentityFields []string
}

// Compile parses every selector once. Errors wrap extract.ErrConfig.
func (c ExtractionConfig) Compile() (*Plan, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("%w: fields are required", extract.ErrConfig)
	}

	names := make([]string, 0, len(c.Fields))
	for name := range c.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]selector.Rule, 0, len(names))
	for _, name := range names {
		r, err := selector.Compile(name, c.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", extract.ErrConfig, err)
		}
		rules = append(rules, r)
	}

	e, err := extract.New(c.ItemSelector, rules, c.NextPageSelector)
	if err != nil {
		return nil, err
	}

	wait, err := fetcher.ParseWaitCondition(c.WaitUntil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extract.ErrConfig, err)
	}

	p := &Plan{
		Extractor:      e,
		Rules:          rules,
		MaxPages:       c.MaxPages,
		Timeout:        time.Duration(c.TimeoutSeconds) * time.Second,
		WaitUntil:      wait,
		Headers:        c.Headers,
		IdentityFields: c.IdentityFields,
	}
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeoutSeconds * time.Second
	}
	p.RunTimeout = time.Duration(c.RunTimeoutSeconds) * time.Second
	if p.RunTimeout <= 0 {
		p.RunTimeout = time.Duration(p.MaxPages) * (p.Timeout + pageSlackSeconds*time.Second)
	}

	return p, nil
}

// ApplyDefaults fills unset fields the way imports and discovery expect.
func (t *Target) ApplyDefaults() {
	if t.Mode == "" {
		t.Mode = fetcher.Static
	}
	if t.IntervalMinutes <= 0 {
		t.IntervalMinutes = DefaultIntervalMinutes
	}
}

// Validate checks the target and compiles its selectors so malformed
// configuration is rejected at save time.
func (t *Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidTarget, t.Name, err)
	}
	u, err := url.Parse(t.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w %q: start_url must be an http(s) URL", ErrInvalidTarget, t.Name)
	}
	if _, err := t.Config.Compile(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidTarget, t.Name, err)
	}
	return nil
}

// Due reports whether the target should run at now, given the time it was
// last dispatched.
func (t *Target) Due(now time.Time, lastDispatch time.Time) bool {
	if !t.Enabled {
		return false
	}
	last := lastDispatch
	if t.LastRunAt != nil && t.LastRunAt.After(last) {
		last = *t.LastRunAt
	}
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= time.Duration(t.IntervalMinutes)*time.Minute
}
