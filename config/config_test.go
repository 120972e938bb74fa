package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  notifications_topic: "tracker.notes"
redis:
  host: "localhost"
  port: 6379
tracker:
  api_addr: ":9090"
  storage: "postgres"
  package_store: "redis"
carriers:
  - key: " UPS "
    mode: "Emulator"
    base_url: "http://localhost:9000"
    api_key: "k"
    rate_limit_per_minute: 10
  - key: "local"
    mode: "manual"
`)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, "tracker.notes", cfg.Kafka.NotificationsTopic)
	require.Equal(t, "tracker.refreshes", cfg.Kafka.RefreshesTopic)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, ":9090", cfg.Tracker.APIAddr)
	require.Equal(t, ":8082", cfg.Tracker.WorkerHTTPAddr)
	require.Equal(t, "@every 5m", cfg.Tracker.RefreshSchedule)
	require.EqualValues(t, 60, cfg.Tracker.RateLimitPerMinute)

	require.Len(t, cfg.Carriers, 2)
	require.Equal(t, "ups", cfg.Carriers[0].Key)
	require.Equal(t, ModeEmulator, cfg.Carriers[0].Mode)
	require.EqualValues(t, 10, cfg.Carriers[0].RateLimitPerMinute)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "carriers: []\n"))
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Tracker.Storage)
	require.Equal(t, BackendMemory, cfg.Tracker.PackageStore)
	require.Equal(t, "delivery-tracker:packages", cfg.Redis.PackagesKey)
	require.False(t, cfg.Kafka.Enabled())
	require.False(t, cfg.Redis.Enabled())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	t.Setenv("TRACKER_REFRESH_SCHEDULE", "@every 1m")
	t.Setenv("CARRIER_KEY", "secret-key")

	p := writeConfig(t, `
database:
  password: "from-file"
tracker:
  refresh_schedule: "@every 10m"
carriers:
  - key: ups
    mode: emulator
    base_url: http://localhost:9000
    api_key: "${CARRIER_KEY}"
`)
	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Database.Password)
	require.Equal(t, "@every 1m", cfg.Tracker.RefreshSchedule)
	require.Equal(t, "secret-key", cfg.Carriers[0].APIKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown mode": `
carriers:
  - key: ups
    mode: carrier-pigeon
`,
		"emulator without url": `
carriers:
  - key: ups
    mode: emulator
`,
		"duplicate key": `
carriers:
  - key: ups
    mode: fake
  - key: UPS
    mode: fake
`,
		"redis store without redis": `
tracker:
  package_store: redis
`,
		"postgres packages on memory storage": `
tracker:
  storage: memory
  package_store: postgres
`,
		"postgres without host": `
tracker:
  storage: postgres
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Example(t *testing.T) {
	cfg, err := LoadConfig("config.example.yaml")
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, cfg.Tracker.Storage)
	require.Equal(t, BackendRedis, cfg.Tracker.PackageStore)
	require.Len(t, cfg.Carriers, 4)
}
