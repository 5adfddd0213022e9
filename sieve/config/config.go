package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/keysieve/sieve"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset"`
	Store   StoreConfig   `mapstructure:"store"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Keygen  KeygenConfig  `mapstructure:"keygen"`
	Hits    HitsConfig    `mapstructure:"hits"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Log     LogConfig     `mapstructure:"log"`
}

// DatasetConfig describes the raw address source and how it is keyed.
type DatasetConfig struct {
	Path         string   `mapstructure:"path"`
	Delimiter    string   `mapstructure:"delimiter"`
	Prefixes     []string `mapstructure:"prefixes"`
	SuffixLength int      `mapstructure:"suffixLength"`
	TrackBalance bool     `mapstructure:"trackBalance"`
	AllowMissing bool     `mapstructure:"allowMissing"`
}

// StoreConfig stores database location details.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batchSize"`
}

// FilterConfig stores probabilistic filter sizing.
type FilterConfig struct {
	ExpectedItems     uint64  `mapstructure:"expectedItems"`
	FalsePositiveRate float64 `mapstructure:"falsePositiveRate"`
	CachePath         string  `mapstructure:"cachePath"`
}

// KeygenConfig selects the network candidate addresses are encoded for.
type KeygenConfig struct {
	Network string `mapstructure:"network"`
}

// HitsConfig stores the hit log location.
type HitsConfig struct {
	Path string `mapstructure:"path"`
}

// KafkaConfig stores the broker settings for the kafka notifier.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// NotifyConfig stores outbound alert settings.
type NotifyConfig struct {
	Kind           string      `mapstructure:"kind"`
	Endpoint       string      `mapstructure:"endpoint"`
	TokenEnv       string      `mapstructure:"tokenEnv"`
	TimeoutSeconds int         `mapstructure:"timeoutSeconds"`
	PerMinute      int         `mapstructure:"perMinute"`
	Kafka          KafkaConfig `mapstructure:"kafka"`
}

// WorkerConfig stores worker pool settings.
type WorkerConfig struct {
	Count                 int  `mapstructure:"count"`
	ReportIntervalSeconds int  `mapstructure:"reportIntervalSeconds"`
	StopOnError           bool `mapstructure:"stopOnError"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var AppConfig Config

// Workers returns the configured worker count, defaulting to the number of logical cores.
func (w WorkerConfig) Workers() int {
	if w.Count > 0 {
		return w.Count
	}
	return runtime.NumCPU()
}

// ReportInterval returns the progress report period. Zero disables reporting.
func (w WorkerConfig) ReportInterval() time.Duration {
	if w.ReportIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(w.ReportIntervalSeconds) * time.Second
}

// Timeout returns the per-notification deadline.
func (n NotifyConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Validate rejects settings that would break the pipeline invariants.
func (c *Config) Validate() error {
	if c.Filter.FalsePositiveRate <= 0 || c.Filter.FalsePositiveRate >= 1 {
		return fmt.Errorf("filter.falsePositiveRate must be in (0, 1): %v", c.Filter.FalsePositiveRate)
	}
	if c.Dataset.SuffixLength < 0 {
		return fmt.Errorf("dataset.suffixLength cannot be negative: %d", c.Dataset.SuffixLength)
	}
	if c.Dataset.Delimiter == "" {
		return fmt.Errorf("dataset.delimiter cannot be empty")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if c.Hits.Path == "" {
		return fmt.Errorf("hits.path cannot be empty")
	}
	switch c.Notify.Kind {
	case "", "none":
	case "webhook":
		if c.Notify.Endpoint == "" {
			return fmt.Errorf("notify.endpoint is required for webhook notifications")
		}
	case "kafka":
		if len(c.Notify.Kafka.Brokers) == 0 {
			return fmt.Errorf("notify.kafka.brokers is required for kafka notifications")
		}
	default:
		return fmt.Errorf("unknown notify.kind %q", c.Notify.Kind)
	}
	return nil
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("dataset.path", internal.DefaultDatasetPath)
	v.SetDefault("dataset.delimiter", "\t")
	v.SetDefault("dataset.prefixes", []string{"1"})
	v.SetDefault("dataset.suffixLength", 0)
	v.SetDefault("dataset.trackBalance", true)
	v.SetDefault("dataset.allowMissing", false)

	v.SetDefault("store.path", internal.DefaultStorePath)
	v.SetDefault("store.batchSize", internal.DefaultBatchSize)

	v.SetDefault("filter.expectedItems", 0)
	v.SetDefault("filter.falsePositiveRate", internal.DefaultFalsePositiveRate)
	v.SetDefault("filter.cachePath", "")

	v.SetDefault("keygen.network", "mainnet")

	v.SetDefault("hits.path", internal.DefaultHitLogPath)

	v.SetDefault("notify.kind", "none")
	v.SetDefault("notify.endpoint", "")
	v.SetDefault("notify.tokenEnv", internal.DefaultNotifyTokenEnv)
	v.SetDefault("notify.timeoutSeconds", 10)
	v.SetDefault("notify.perMinute", 6)
	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "keysieve-hits")

	v.SetDefault("worker.count", 0)
	v.SetDefault("worker.reportIntervalSeconds", 30)
	v.SetDefault("worker.stopOnError", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. filter.falsePositiveRate becomes FILTER_FALSEPOSITIVERATE

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	AppConfig = cfg
	return &cfg, nil
}
