package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/keysieve/sieve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	tempDir, err := os.MkdirTemp("", "keysieve-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultDatasetPath, cfg.Dataset.Path)
	assert.Equal(suite.T(), "\t", cfg.Dataset.Delimiter)
	assert.Equal(suite.T(), []string{"1"}, cfg.Dataset.Prefixes)
	assert.Equal(suite.T(), 0, cfg.Dataset.SuffixLength)
	assert.True(suite.T(), cfg.Dataset.TrackBalance)
	assert.False(suite.T(), cfg.Dataset.AllowMissing)

	assert.Equal(suite.T(), internal.DefaultStorePath, cfg.Store.Path)
	assert.Equal(suite.T(), internal.DefaultBatchSize, cfg.Store.BatchSize)
	assert.Equal(suite.T(), internal.DefaultFalsePositiveRate, cfg.Filter.FalsePositiveRate)
	assert.Equal(suite.T(), uint64(0), cfg.Filter.ExpectedItems)
	assert.Equal(suite.T(), "mainnet", cfg.Keygen.Network)
	assert.Equal(suite.T(), internal.DefaultHitLogPath, cfg.Hits.Path)

	assert.Equal(suite.T(), "none", cfg.Notify.Kind)
	assert.Equal(suite.T(), internal.DefaultNotifyTokenEnv, cfg.Notify.TokenEnv)
	assert.Equal(suite.T(), "keysieve-hits", cfg.Notify.Kafka.Topic)

	assert.True(suite.T(), cfg.Worker.StopOnError)
	assert.Equal(suite.T(), runtime.NumCPU(), cfg.Worker.Workers())
	assert.Equal(suite.T(), 30*time.Second, cfg.Worker.ReportInterval())
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
dataset:
  path: "./addresses.tsv"
  delimiter: ","
  prefixes: ["1", "3"]
  suffixLength: 8
  trackBalance: false
store:
  path: "./test.db"
  batchSize: 100
filter:
  expectedItems: 1000
  falsePositiveRate: 0.001
  cachePath: "./filter.zst"
keygen:
  network: "testnet"
hits:
  path: "./found.txt"
notify:
  kind: "webhook"
  endpoint: "https://example.invalid/hook"
  timeoutSeconds: 3
worker:
  count: 3
  reportIntervalSeconds: 0
  stopOnError: false
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), "./addresses.tsv", cfg.Dataset.Path)
	assert.Equal(suite.T(), ",", cfg.Dataset.Delimiter)
	assert.Equal(suite.T(), []string{"1", "3"}, cfg.Dataset.Prefixes)
	assert.Equal(suite.T(), 8, cfg.Dataset.SuffixLength)
	assert.False(suite.T(), cfg.Dataset.TrackBalance)
	assert.Equal(suite.T(), "./test.db", cfg.Store.Path)
	assert.Equal(suite.T(), 100, cfg.Store.BatchSize)
	assert.Equal(suite.T(), uint64(1000), cfg.Filter.ExpectedItems)
	assert.Equal(suite.T(), 0.001, cfg.Filter.FalsePositiveRate)
	assert.Equal(suite.T(), "testnet", cfg.Keygen.Network)
	assert.Equal(suite.T(), "./filter.zst", cfg.Filter.CachePath)
	assert.Equal(suite.T(), "./found.txt", cfg.Hits.Path)
	assert.Equal(suite.T(), "webhook", cfg.Notify.Kind)
	assert.Equal(suite.T(), 3*time.Second, cfg.Notify.Timeout())
	assert.Equal(suite.T(), 3, cfg.Worker.Workers())
	assert.Equal(suite.T(), time.Duration(0), cfg.Worker.ReportInterval())
	assert.False(suite.T(), cfg.Worker.StopOnError)

	// AppConfig should mirror the last successful load
	assert.Equal(suite.T(), cfg.Store.Path, AppConfig.Store.Path)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
dataset:
  path: "./x"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsBadRate() {
	configFile := filepath.Join(suite.tempDir, "rate.yaml")
	err := os.WriteFile(configFile, []byte("filter:\n  falsePositiveRate: 1.5\n"), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Dataset: DatasetConfig{Delimiter: "\t"},
			Store:   StoreConfig{Path: "a.db"},
			Filter:  FilterConfig{FalsePositiveRate: 0.01},
			Hits:    HitsConfig{Path: "hits.txt"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid defaults", mutate: func(c *Config) {}},
		{name: "zero rate", mutate: func(c *Config) { c.Filter.FalsePositiveRate = 0 }, wantErr: true},
		{name: "negative suffix", mutate: func(c *Config) { c.Dataset.SuffixLength = -1 }, wantErr: true},
		{name: "empty delimiter", mutate: func(c *Config) { c.Dataset.Delimiter = "" }, wantErr: true},
		{name: "webhook without endpoint", mutate: func(c *Config) { c.Notify.Kind = "webhook" }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Notify.Kind = "kafka" }, wantErr: true},
		{name: "kafka with brokers", mutate: func(c *Config) {
			c.Notify.Kind = "kafka"
			c.Notify.Kafka.Brokers = []string{"localhost:9092"}
		}},
		{name: "unknown kind", mutate: func(c *Config) { c.Notify.Kind = "pager" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
