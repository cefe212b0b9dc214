// Package config loads the service configuration from a TOML file.
package config

import (
	"fmt"
	"time"

	"github.com/dreamerjackson/leadcrawler/limiter"
	"github.com/dreamerjackson/leadcrawler/strategy"
	"github.com/go-micro/plugins/v4/config/encoder/toml"
	"github.com/go-playground/validator/v10"
	mconfig "go-micro.dev/v4/config"
	"go-micro.dev/v4/config/reader"
	"go-micro.dev/v4/config/reader/json"
	"go-micro.dev/v4/config/source"
	"go-micro.dev/v4/config/source/file"
)

type Config struct {
	LogLevel    string                  `json:"logLevel" validate:"required"`
	LogFile     string                  `json:"logFile"`
	TargetsFile string                  `json:"targetsFile"`
	Fetcher     Fetcher                 `json:"fetcher"`
	Storage     Storage                 `json:"storage"`
	Scheduler   Scheduler               `json:"scheduler"`
	Enrichment  Enrichment              `json:"enrichment"`
	Webhook     Webhook                 `json:"webhook"`
	Strategies  []strategy.ScriptConfig `json:"strategies" validate:"dive"`
}

type Fetcher struct {
	// Timeout is in milliseconds.
	Timeout     int      `json:"timeout" validate:"min=0"`
	Proxy       []string `json:"proxy"`
	UserAgent   string   `json:"userAgent"`
	BrowserPath string   `json:"browserPath"`
	Headless    bool     `json:"headless"`
	// HostInterval is the minimum spacing in milliseconds between two
	// requests to the same host.
	HostInterval int              `json:"hostInterval" validate:"min=0"`
	Limits       []limiter.Config `json:"limits"`
}

func (f Fetcher) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout) * time.Millisecond
}

func (f Fetcher) HostIntervalDuration() time.Duration {
	return time.Duration(f.HostInterval) * time.Millisecond
}

type Storage struct {
	Type   string `json:"type" validate:"oneof=mysql sqlite sqlite3"`
	SQLURL string `json:"sqlURL" validate:"required"`
}

type Scheduler struct {
	Workers int      `json:"workers" validate:"min=1"`
	Tick    string   `json:"tick" validate:"required"`
	Etcd    []string `json:"etcd"`
	NodeIP  string   `json:"nodeIP" validate:"omitempty,ip"`
}

type Enrichment struct {
	Enabled      bool    `json:"enabled"`
	Schedule     string  `json:"schedule" validate:"required_if=Enabled true"`
	BatchSize    int     `json:"batchSize" validate:"min=1"`
	DelaySeconds float64 `json:"delaySeconds" validate:"min=0"`
	Platform     string  `json:"platform"`
}

func (e Enrichment) Delay() time.Duration {
	return time.Duration(e.DelaySeconds * float64(time.Second))
}

type Webhook struct {
	URL            string `json:"url" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeoutSeconds" validate:"min=0"`
}

func (w Webhook) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Fetcher: Fetcher{
			Timeout:  30000,
			Headless: true,
		},
		Storage: Storage{
			Type:   "sqlite",
			SQLURL: "leadcrawler.db",
		},
		Scheduler: Scheduler{
			Workers: 4,
			Tick:    "@every 1m",
		},
		Enrichment: Enrichment{
			Schedule:     "@every 30m",
			BatchSize:    50,
			DelaySeconds: 2,
		},
		Webhook: Webhook{
			TimeoutSeconds: 10,
		},
	}
}

var validate = validator.New()

// Load reads the TOML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	enc := toml.NewEncoder()
	cfg, err := mconfig.NewConfig(mconfig.WithReader(json.NewReader(reader.WithEncoder(enc))))
	if err != nil {
		return nil, err
	}
	defer cfg.Close()

	err = cfg.Load(file.NewSource(
		file.WithPath(path),
		source.WithEncoder(enc),
	))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	c := Default()
	if err := cfg.Scan(c); err != nil {
		return nil, fmt.Errorf("scan config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
