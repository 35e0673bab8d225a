package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Matchflow MatchflowConfig `yaml:"matchflow"`
	Feed      FeedConfig      `yaml:"feed"`
	Queue     QueueConfig     `yaml:"queue"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Media     MediaConfig     `yaml:"media"`
	Sink      SinkConfig      `yaml:"sink"`
	Archive   ArchiveConfig   `yaml:"archive"`
	FeedsAPI  FeedsAPIConfig  `yaml:"feeds_api"`
	Processor ProcessorConfig `yaml:"processor"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type MatchflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	OutletKey      string        `yaml:"outlet_key"`
	FixtureUUID    string        `yaml:"fixture_uuid"`
	Feeds          []string      `yaml:"feeds"`
	OptaID         bool          `yaml:"opta_id"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	FrameLogDir    string        `yaml:"frame_log_dir"`
}

type QueueConfig struct {
	Backend string           `yaml:"backend"`
	Buffer  int              `yaml:"buffer"`
	Redis   RedisQueueConfig `yaml:"redis"`
}

type RedisQueueConfig struct {
	Addr     string        `yaml:"addr"`
	Stream   string        `yaml:"stream"`
	Group    string        `yaml:"group"`
	Consumer string        `yaml:"consumer"`
	Block    time.Duration `yaml:"block"`
}

type CatalogConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Token             string        `yaml:"token"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type MediaConfig struct {
	Transport string           `yaml:"transport"`
	Redis     RedisMediaConfig `yaml:"redis"`
	Kafka     KafkaMediaConfig `yaml:"kafka"`
}

type RedisMediaConfig struct {
	Addr   string `yaml:"addr"`
	Stream string `yaml:"stream"`
}

type KafkaMediaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SinkConfig struct {
	BaseURL  string        `yaml:"base_url"`
	SheetID  string        `yaml:"sheet_id"`
	Tab      string        `yaml:"tab"`
	Timeout  time.Duration `yaml:"timeout"`
	DelayMin time.Duration `yaml:"delay_min"`
	DelayMax time.Duration `yaml:"delay_max"`
}

type ArchiveConfig struct {
	LivescoreDir string        `yaml:"livescore_dir"`
	Parquet      ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled         bool          `yaml:"enabled"`
	LocalDir        string        `yaml:"local_dir"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBuffer       int           `yaml:"max_buffer"`
}

type FeedsAPIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AuthURL     string        `yaml:"auth_url"`
	Outlet      string        `yaml:"outlet"`
	Secret      string        `yaml:"secret"`
	Competition string        `yaml:"competition"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ProcessorConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type LoggingConfig struct {
	Level          string           `yaml:"level"`
	Format         string           `yaml:"format"`
	Output         string           `yaml:"output"`
	MaxAge         int              `yaml:"max_age"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoadConfig reads the YAML configuration, applies environment overrides for
// credentials and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OUTLET_KEY"); v != "" {
		cfg.Feed.OutletKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("OUTLET_SECRET"); v != "" {
		cfg.FeedsAPI.Secret = strings.TrimSpace(v)
	}
	if cfg.FeedsAPI.Outlet == "" {
		cfg.FeedsAPI.Outlet = cfg.Feed.OutletKey
	}
	if v := os.Getenv("CATALOG_TOKEN"); v != "" {
		cfg.Catalog.Token = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Queue.Redis.Addr = strings.TrimSpace(v)
		if cfg.Media.Redis.Addr == "" {
			cfg.Media.Redis.Addr = strings.TrimSpace(v)
		}
	}
	if cfg.Archive.Parquet.Enabled {
		if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
			cfg.Archive.Parquet.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
			cfg.Archive.Parquet.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_REGION"); v != "" {
			cfg.Archive.Parquet.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Archive.Parquet.Bucket = strings.TrimSpace(v)
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Matchflow.Name == "" {
		cfg.Matchflow.Name = "matchflow"
	}
	if len(cfg.Feed.Feeds) == 0 {
		cfg.Feed.Feeds = []string{"matchEvent"}
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		cfg.Feed.ReconnectDelay = 5 * time.Second
	}
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.Buffer <= 0 {
		cfg.Queue.Buffer = 256
	}
	if cfg.Queue.Redis.Stream == "" {
		cfg.Queue.Redis.Stream = "match_batches"
	}
	if cfg.Queue.Redis.Group == "" {
		cfg.Queue.Redis.Group = "match-processors"
	}
	if cfg.Queue.Redis.Block <= 0 {
		cfg.Queue.Redis.Block = 2 * time.Second
	}
	if cfg.Catalog.Timeout <= 0 {
		cfg.Catalog.Timeout = 10 * time.Second
	}
	if cfg.Catalog.RequestsPerSecond <= 0 {
		cfg.Catalog.RequestsPerSecond = 10
	}
	if cfg.Catalog.Burst <= 0 {
		cfg.Catalog.Burst = 5
	}
	if cfg.Media.Transport == "" {
		cfg.Media.Transport = "none"
	}
	if cfg.Media.Redis.Stream == "" {
		cfg.Media.Redis.Stream = "media_jobs"
	}
	if cfg.Media.Kafka.Topic == "" {
		cfg.Media.Kafka.Topic = "media-jobs"
	}
	if cfg.Sink.Timeout <= 0 {
		cfg.Sink.Timeout = 15 * time.Second
	}
	if cfg.Sink.DelayMin <= 0 {
		cfg.Sink.DelayMin = 4500 * time.Millisecond
	}
	if cfg.Sink.DelayMax <= cfg.Sink.DelayMin {
		cfg.Sink.DelayMax = 7500 * time.Millisecond
	}
	if cfg.Archive.LivescoreDir == "" {
		cfg.Archive.LivescoreDir = "logs/livescore"
	}
	if cfg.Archive.Parquet.FlushInterval <= 0 {
		cfg.Archive.Parquet.FlushInterval = time.Minute
	}
	if cfg.Archive.Parquet.MaxBuffer <= 0 {
		cfg.Archive.Parquet.MaxBuffer = 100
	}
	if cfg.FeedsAPI.Timeout <= 0 {
		cfg.FeedsAPI.Timeout = 15 * time.Second
	}
	if cfg.Processor.MaxWorkers <= 0 {
		cfg.Processor.MaxWorkers = 1
	}
	if cfg.Logging.ReportInterval <= 0 {
		cfg.Logging.ReportInterval = 30 * time.Second
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
}

func validate(cfg *Config) error {
	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if cfg.Feed.OutletKey == "" {
		return fmt.Errorf("feed.outlet_key is required (set OUTLET_KEY)")
	}
	switch cfg.Queue.Backend {
	case "memory":
	case "redis":
		if cfg.Queue.Redis.Addr == "" {
			return fmt.Errorf("queue.redis.addr is required when the redis backend is enabled")
		}
	default:
		return fmt.Errorf("queue.backend '%s' is invalid", cfg.Queue.Backend)
	}
	switch cfg.Media.Transport {
	case "none", "":
	case "redis":
		if cfg.Media.Redis.Addr == "" {
			return fmt.Errorf("media.redis.addr is required when the redis transport is enabled")
		}
	case "kafka":
		if len(cfg.Media.Kafka.Brokers) == 0 {
			return fmt.Errorf("media.kafka.brokers is required when the kafka transport is enabled")
		}
	default:
		return fmt.Errorf("media.transport '%s' is invalid", cfg.Media.Transport)
	}
	if cfg.Archive.Parquet.Enabled {
		if cfg.Archive.Parquet.Bucket == "" && cfg.Archive.Parquet.LocalDir == "" {
			return fmt.Errorf("archive.parquet needs a bucket or a local_dir when enabled")
		}
		if cfg.Archive.Parquet.Bucket != "" && cfg.Archive.Parquet.Region == "" {
			return fmt.Errorf("archive.parquet.region is required when a bucket is configured")
		}
	}
	return nil
}
