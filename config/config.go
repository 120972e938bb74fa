package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	"go.yaml.in/yaml/v4"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Carrier client modes.
const (
	ModeFake     = "fake"
	ModeEmulator = "emulator"
	ModeTrack24  = "track24"
	ModeManual   = "manual"
)

type Config struct {
	Database DatabaseConfig  `yaml:"database"`
	Kafka    KafkaConfig     `yaml:"kafka"`
	Redis    RedisConfig     `yaml:"redis"`
	Tracker  TrackerConfig   `yaml:"tracker"`
	Log      LogConfig       `yaml:"log"`
	Carriers []CarrierConfig `yaml:"carriers" validate:"dive"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST, overwrite"`
	Port     int    `yaml:"port" env:"DB_PORT, overwrite"`
	Username string `yaml:"username" env:"DB_USER, overwrite"`
	Password string `yaml:"password" env:"DB_PASSWORD, overwrite"`
	DBName   string `yaml:"name" env:"DB_NAME, overwrite"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE, overwrite"`
}

// ConnString builds a pgx connection string.
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		d.Username, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.DBName, sslMode)
}

type KafkaConfig struct {
	Host               string `yaml:"host" env:"KAFKA_HOST, overwrite"`
	Port               int    `yaml:"port" env:"KAFKA_PORT, overwrite"`
	NotificationsTopic string `yaml:"notifications_topic" env:"KAFKA_NOTIFICATIONS_TOPIC, overwrite"`
	RefreshesTopic     string `yaml:"refreshes_topic" env:"KAFKA_REFRESHES_TOPIC, overwrite"`
}

// Enabled reports whether a broker is configured at all.
func (k KafkaConfig) Enabled() bool { return k.Host != "" }

func (k KafkaConfig) Brokers() []string {
	return []string{net.JoinHostPort(k.Host, strconv.Itoa(k.Port))}
}

type RedisConfig struct {
	Host        string `yaml:"host" env:"REDIS_HOST, overwrite"`
	Port        int    `yaml:"port" env:"REDIS_PORT, overwrite"`
	Password    string `yaml:"password" env:"REDIS_PASSWORD, overwrite"`
	DB          int    `yaml:"db" env:"REDIS_DB, overwrite"`
	PackagesKey string `yaml:"packages_key" env:"REDIS_PACKAGES_KEY, overwrite"`
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) }

type TrackerConfig struct {
	APIAddr        string `yaml:"api_addr" env:"TRACKER_API_ADDR, overwrite"`
	WorkerHTTPAddr string `yaml:"worker_http_addr" env:"TRACKER_WORKER_HTTP_ADDR, overwrite"`

	// Cron spec, e.g. "@every 5m" or "*/10 * * * *".
	RefreshSchedule string `yaml:"refresh_schedule" env:"TRACKER_REFRESH_SCHEDULE, overwrite"`

	Storage      string `yaml:"storage" env:"TRACKER_STORAGE, overwrite" validate:"omitempty,oneof=memory postgres"`
	PackageStore string `yaml:"package_store" env:"TRACKER_PACKAGE_STORE, overwrite" validate:"omitempty,oneof=memory redis postgres"`

	KafkaConsumerGroup string `yaml:"kafka_consumer_group" env:"TRACKER_KAFKA_CONSUMER_GROUP, overwrite"`
	RateLimitPerMinute int64  `yaml:"rate_limit_per_minute" env:"TRACKER_RATE_LIMIT_PER_MINUTE, overwrite" validate:"gte=0"`
	SwaggerPath        string `yaml:"swagger_path" env:"swaggerPath, overwrite"`
	InboxSize          int    `yaml:"inbox_size" env:"TRACKER_INBOX_SIZE, overwrite" validate:"gte=0"`
}

type LogConfig struct {
	Env          string `yaml:"env" env:"LOG_ENV, overwrite"`
	ConsoleLevel string `yaml:"console_level" env:"LOG_CONSOLE_LEVEL, overwrite" validate:"omitempty,oneof=debug info warn error"`
	FileLevel    string `yaml:"file_level" env:"LOG_FILE_LEVEL, overwrite" validate:"omitempty,oneof=debug info warn error"`
	File         string `yaml:"file" env:"LOG_FILE, overwrite"`
}

type CarrierConfig struct {
	Key         string `yaml:"key" validate:"required"`
	Mode        string `yaml:"mode" validate:"required,oneof=fake emulator track24 manual"`
	BaseURL     string `yaml:"base_url" validate:"required_if=Mode emulator,required_if=Mode track24"`
	APIKey      string `yaml:"api_key"`
	Domain      string `yaml:"domain"`
	TrackingURL string `yaml:"tracking_url"`

	// 0 means the tracker-wide limit.
	RateLimitPerMinute int64 `yaml:"rate_limit_per_minute" validate:"gte=0"`
}

var validate = validator.New()

// LoadConfig reads the YAML file, then applies .env and process environment
// overrides. ${VAR} references inside the file are expanded.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// .env is optional
	_ = godotenv.Load()

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal YAML")
	}

	if err := envconfig.Process(context.Background(), &config); err != nil {
		return nil, errors.Wrap(err, "failed to apply env overrides")
	}

	config.withDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	seen := make(map[string]struct{}, len(c.Carriers))
	for _, cc := range c.Carriers {
		if _, dup := seen[cc.Key]; dup {
			return errors.Errorf("invalid config: duplicate carrier key %q", cc.Key)
		}
		seen[cc.Key] = struct{}{}
	}

	if c.Tracker.Storage == BackendPostgres && c.Database.Host == "" {
		return errors.New("invalid config: database.host is required for postgres storage")
	}
	switch c.Tracker.PackageStore {
	case BackendRedis:
		if !c.Redis.Enabled() {
			return errors.New("invalid config: redis.host is required for redis package store")
		}
	case BackendPostgres:
		if c.Tracker.Storage != BackendPostgres {
			return errors.New("invalid config: postgres package store requires postgres storage")
		}
	}
	return nil
}

func (c *Config) withDefaults() {
	if c.Tracker.APIAddr == "" {
		c.Tracker.APIAddr = ":8080"
	}
	if c.Tracker.WorkerHTTPAddr == "" {
		c.Tracker.WorkerHTTPAddr = ":8082"
	}
	if c.Tracker.RefreshSchedule == "" {
		c.Tracker.RefreshSchedule = "@every 5m"
	}
	if c.Tracker.Storage == "" {
		c.Tracker.Storage = BackendMemory
	}
	if c.Tracker.PackageStore == "" {
		c.Tracker.PackageStore = c.Tracker.Storage
	}
	if c.Tracker.KafkaConsumerGroup == "" {
		c.Tracker.KafkaConsumerGroup = "tracker-api"
	}
	if c.Tracker.RateLimitPerMinute == 0 {
		c.Tracker.RateLimitPerMinute = 60
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "tracker.notifications"
	}
	if c.Kafka.RefreshesTopic == "" {
		c.Kafka.RefreshesTopic = "tracker.refreshes"
	}
	if c.Redis.PackagesKey == "" {
		c.Redis.PackagesKey = "delivery-tracker:packages"
	}
	for i := range c.Carriers {
		c.Carriers[i].Key = strings.ToLower(strings.TrimSpace(c.Carriers[i].Key))
		c.Carriers[i].Mode = strings.ToLower(strings.TrimSpace(c.Carriers[i].Mode))
	}
}
