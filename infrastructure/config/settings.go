package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Settings is the typed environment-variable contract of spec.md §6.
type Settings struct {
	DBURI      string `env:"DB_URI,required"`
	DBUser     string `env:"DB_USER,required"`
	DBPassword string `env:"DB_PASSWORD,required"`
	DBName     string `env:"DB_NAME,required"`

	MigrationStaleLockMinutes int `env:"MIGRATION_STALE_LOCK_MINUTES,default=30"`
	MigrationDefaultBatchSize int `env:"MIGRATION_DEFAULT_BATCH_SIZE,default=100"`

	LoaderCacheTTLSeconds int    `env:"LOADER_CACHE_TTL_SECONDS,default=3600"`
	LoaderCacheBackend    string `env:"LOADER_CACHE_BACKEND,default=memory"`
	LoaderRedisAddr       string `env:"LOADER_REDIS_ADDR,default=localhost:6379"`

	HealthHighDegreeThreshold int `env:"HEALTH_HIGH_DEGREE_THRESHOLD,default=10000"`

	ActorDefault string `env:"ACTOR_DEFAULT,default=pipeline"`

	DBStatementTimeoutMS int `env:"DB_STATEMENT_TIMEOUT_MS,default=30000"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// StaleLockTimeout returns MigrationStaleLockMinutes as a time.Duration.
func (s Settings) StaleLockTimeout() time.Duration {
	return time.Duration(s.MigrationStaleLockMinutes) * time.Minute
}

// LoaderCacheTTL returns LoaderCacheTTLSeconds as a time.Duration.
func (s Settings) LoaderCacheTTL() time.Duration {
	return time.Duration(s.LoaderCacheTTLSeconds) * time.Second
}

// StatementTimeout returns DBStatementTimeoutMS as a time.Duration.
func (s Settings) StatementTimeout() time.Duration {
	return time.Duration(s.DBStatementTimeoutMS) * time.Millisecond
}

// DataSourceName builds a libpq connection string from the discrete DB_* settings.
func (s Settings) DataSourceName() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
		hostFromURI(s.DBURI), s.DBUser, s.DBPassword, s.DBName)
}

func hostFromURI(uri string) string {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return "localhost"
	}
	return trimmed
}

// LoadSettings loads a .env file (if present and readable) and then decodes
// the environment into Settings. Missing .env files are not an error: in
// production the environment is populated by the deployment platform.
func LoadSettings(envFile string) (Settings, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
		}
	}

	var settings Settings
	if err := envdecode.StrictDecode(&settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}
