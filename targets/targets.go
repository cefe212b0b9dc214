// Package targets imports scrape targets from JSON or YAML files and
// creates targets from platform presets.
package targets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dreamerjackson/leadcrawler/fetcher"
	"github.com/dreamerjackson/leadcrawler/spider"
	"gopkg.in/yaml.v3"
)

var ErrFormat = errors.New("targets file must contain a list of targets")

// Entry is one target as written in an import file. target_type is the
// legacy name of fetch_mode.
type Entry struct {
	Name            string                  `json:"name"`
	StartURL        string                  `json:"start_url"`
	FetchMode       string                  `json:"fetch_mode"`
	TargetType      string                  `json:"target_type"`
	Enabled         *bool                   `json:"enabled"`
	RunEveryMinutes int                     `json:"run_every_minutes"`
	Config          spider.ExtractionConfig `json:"config"`
}

// Target converts the entry, applying defaults. Validation is left to the
// repository.
func (e Entry) Target() (*spider.Target, error) {
	raw := e.FetchMode
	if raw == "" {
		raw = e.TargetType
	}
	mode, err := fetcher.ParseMode(raw)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", e.Name, err)
	}

	t := &spider.Target{
		Name:            strings.TrimSpace(e.Name),
		StartURL:        strings.TrimSpace(e.StartURL),
		Mode:            mode,
		Enabled:         e.Enabled == nil || *e.Enabled,
		IntervalMinutes: e.RunEveryMinutes,
		Config:          e.Config,
	}
	t.ApplyDefaults()
	return t, nil
}

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf picks the format from the file extension; anything that is not
// .json is read as YAML, which also accepts most JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		return JSON
	}
	return YAML
}

func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, FormatOf(path))
}

// Parse decodes a list of entries. YAML documents are converted to JSON
// first so that both formats share the JSON field contract.
func Parse(r io.Reader, format Format) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if format == YAML {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		if _, ok := doc.([]interface{}); !ok {
			return nil, ErrFormat
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if t := bytes.TrimSpace(data); len(t) == 0 || t[0] != '[' {
		return nil, ErrFormat
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	return entries, nil
}
