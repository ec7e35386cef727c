package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Sync          SyncConfig
	Replica       ReplicaConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DEBITUM_APP_ENV" required:"true"`
	Port         string `envconfig:"DEBITUM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DEBITUM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DEBITUM_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"DEBITUM_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"DEBITUM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DEBITUM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DEBITUM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DEBITUM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DEBITUM_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"DEBITUM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DEBITUM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DEBITUM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DEBITUM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DEBITUM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DEBITUM_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DEBITUM_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DEBITUM_JWT_EXPIRATION_MINUTES" default:"60"`
	SessionTTLMinutes int    `envconfig:"DEBITUM_SESSION_TTL_MINUTES" default:"43200"`
}

// SessionTTL returns the server-side session lifetime.
func (j JWTConfig) SessionTTL() time.Duration {
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DEBITUM_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DEBITUM_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DEBITUM_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DEBITUM_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DEBITUM_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow           time.Duration `envconfig:"DEBITUM_LOGIN_RATE_WINDOW" default:"1m"`
	LoginIPLimit          int           `envconfig:"DEBITUM_LOGIN_RATE_IP_LIMIT" default:"10"`
	LoginUsernameLimit    int           `envconfig:"DEBITUM_LOGIN_RATE_USERNAME_LIMIT" default:"5"`
	RegisterWindow        time.Duration `envconfig:"DEBITUM_REGISTER_RATE_WINDOW" default:"10m"`
	RegisterIPLimit       int           `envconfig:"DEBITUM_REGISTER_RATE_IP_LIMIT" default:"5"`
	RegisterUsernameLimit int           `envconfig:"DEBITUM_REGISTER_RATE_USERNAME_LIMIT" default:"3"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DEBITUM_AUTO_MIGRATE" default:"false"`
	Notifier    bool `envconfig:"DEBITUM_NOTIFIER_ENABLED" default:"true"`
}

// SyncConfig tunes the server-side sync protocol.
type SyncConfig struct {
	MaxBatchSize  int           `envconfig:"DEBITUM_SYNC_MAX_BATCH" default:"500"`
	UndoWindow    time.Duration `envconfig:"DEBITUM_SYNC_UNDO_WINDOW" default:"5s"`
	FetchPageSize int           `envconfig:"DEBITUM_SYNC_FETCH_PAGE" default:"1000"`
}

// ReplicaConfig configures the headless client replica daemon.
type ReplicaConfig struct {
	BaseURL           string        `envconfig:"DEBITUM_REPLICA_BASE_URL"`
	WalletID          string        `envconfig:"DEBITUM_REPLICA_WALLET_ID"`
	AccessToken       string        `envconfig:"DEBITUM_REPLICA_ACCESS_TOKEN"`
	StorePath         string        `envconfig:"DEBITUM_REPLICA_STORE_PATH" default:"debitum-replica.db"`
	PullPageSize      int           `envconfig:"DEBITUM_REPLICA_PULL_PAGE_SIZE" default:"500"`
	SyncInterval      time.Duration `envconfig:"DEBITUM_REPLICA_SYNC_INTERVAL" default:"30s"`
	RequestTimeout    time.Duration `envconfig:"DEBITUM_REPLICA_REQUEST_TIMEOUT" default:"30s"`
	BackoffBase       time.Duration `envconfig:"DEBITUM_REPLICA_BACKOFF_BASE" default:"1s"`
	BackoffCap        time.Duration `envconfig:"DEBITUM_REPLICA_BACKOFF_CAP" default:"2m"`
	BackoffMaxRetries uint64        `envconfig:"DEBITUM_REPLICA_BACKOFF_RETRIES" default:"5"`
	ReachabilityTTL   time.Duration `envconfig:"DEBITUM_REPLICA_REACHABILITY_TTL" default:"5s"`
}
