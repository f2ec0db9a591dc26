package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	orderingModel "github.com/Avi18971911/spanlife/pkg/ordering/model"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Clock         orderingModel.ClockSource `yaml:"clock"`
	SpanIndex     SpanIndexConfig           `yaml:"span-index"`
	Store         StoreConfig               `yaml:"store"`
	Elasticsearch ElasticsearchConfig       `yaml:"elasticsearch"`
	Receiver      ReceiverConfig            `yaml:"receiver"`
}

type SpanIndexConfig struct {
	// MaxClosed bounds how many closed spans stay resolvable. Zero keeps every span.
	MaxClosed int64 `yaml:"max-closed"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ElasticsearchConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Addresses        []string      `yaml:"addresses"`
	BatchSize        int           `yaml:"batch-size"`
	BootstrapRetries int           `yaml:"bootstrap-retries"`
	BootstrapDelay   time.Duration `yaml:"bootstrap-delay"`
}

type ReceiverConfig struct {
	Address     string `yaml:"address"`
	MaxBuffered int    `yaml:"max-buffered"`
}

func Default() Config {
	return Config{
		Clock: orderingModel.SpanClock,
		Store: StoreConfig{Path: "spanlife.db"},
		Elasticsearch: ElasticsearchConfig{
			Addresses:        []string{"http://localhost:9200"},
			BatchSize:        500,
			BootstrapRetries: 30,
			BootstrapDelay:   5 * time.Second,
		},
		Receiver: ReceiverConfig{
			Address:     ":4317",
			MaxBuffered: 1_000_000,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Clock != orderingModel.SpanClock && c.Clock != orderingModel.EventClock {
		return fmt.Errorf("clock %q: %w", c.Clock, ErrInvalidClock)
	}
	if c.SpanIndex.MaxClosed < 0 {
		return fmt.Errorf("span index max-closed %d: %w", c.SpanIndex.MaxClosed, ErrInvalidValue)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path is empty: %w", ErrInvalidValue)
	}
	if c.Elasticsearch.Enabled && len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch is enabled without addresses: %w", ErrInvalidValue)
	}
	return nil
}

var (
	ErrInvalidClock = errors.New("clock must be span or event")
	ErrInvalidValue = errors.New("invalid config value")
)
