package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"linker_index/internal/models"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	LockLocal = "local"
	LockRedis = "redis"
)

type DBConfig struct {
	Store       string `yaml:"store"`
	Connection  string `yaml:"connection"`
	Database    string `yaml:"database"`
	TimeoutSec  int    `yaml:"timeout_sec"`
	Collections struct {
		WebPages string `yaml:"webpages"`
		Websites string `yaml:"websites"`
		LongURLs string `yaml:"long_urls"`
	} `yaml:"collections"`
}

type LockConfig struct {
	Kind      string `yaml:"kind"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	TTLSec    int    `yaml:"ttl_sec"`
	RetryMS   int    `yaml:"retry_ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ScheduleConfig holds cron specs for maintenance. Empty spec disables the job.
type ScheduleConfig struct {
	Renormalize      string `yaml:"renormalize"`
	Purge            string `yaml:"purge"`
	Stalled          string `yaml:"stalled"`
	StalledAfterDays int    `yaml:"stalled_after_days"`
}

type RegistryConfig struct {
	// Sites seeds the memory store. The mongo store reads the websites collection.
	Sites []models.Website `yaml:"sites"`
}

type CitationConfig struct {
	CatalogFile string `yaml:"catalog_file"`
}

type IndexConfig struct {
	DB        DBConfig       `yaml:"db"`
	Lock      LockConfig     `yaml:"lock"`
	HTTP      HTTPConfig     `yaml:"http"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Log       LogConfig      `yaml:"log"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Registry  RegistryConfig `yaml:"registry"`
	Citations CitationConfig `yaml:"citations"`
}

func LoadConfig(path string) (*IndexConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not read the environment.
func Parse(data []byte) (*IndexConfig, error) {
	var cfg IndexConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *IndexConfig) applyDefaults() {
	if c.DB.Store == "" {
		c.DB.Store = StoreMongo
	}
	if c.DB.Database == "" {
		c.DB.Database = "linker"
	}
	if c.DB.TimeoutSec <= 0 {
		c.DB.TimeoutSec = 10
	}
	if c.DB.Collections.WebPages == "" {
		c.DB.Collections.WebPages = "webpages"
	}
	if c.DB.Collections.Websites == "" {
		c.DB.Collections.Websites = "websites"
	}
	if c.DB.Collections.LongURLs == "" {
		c.DB.Collections.LongURLs = "webpages_long_urls"
	}
	if c.Lock.Kind == "" {
		c.Lock.Kind = LockLocal
	}
	if c.Lock.TTLSec <= 0 {
		c.Lock.TTLSec = 30
	}
	if c.Lock.RetryMS <= 0 {
		c.Lock.RetryMS = 50
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "linker-webpages"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "linker-index"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Schedule.StalledAfterDays <= 0 {
		c.Schedule.StalledAfterDays = 20
	}
}

func (c *IndexConfig) applyEnv() {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.DB.Connection = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Lock.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *IndexConfig) Validate() error {
	switch c.DB.Store {
	case StoreMongo:
		if c.DB.Connection == "" {
			return fmt.Errorf("db.connection is required for the %q store", StoreMongo)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown db.store %q", c.DB.Store)
	}

	switch c.Lock.Kind {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the %q lock", LockRedis)
		}
	default:
		return fmt.Errorf("unknown lock.kind %q", c.Lock.Kind)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
