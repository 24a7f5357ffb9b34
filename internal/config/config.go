package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	VoteModeToggle = "toggle"
	VoteModeStrict = "strict"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP    HTTPConfig    `yaml:"http"`
	CORS    CORSConfig    `yaml:"cors"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
	Auth    AuthConfig    `yaml:"auth"`
	Votes   VotesConfig   `yaml:"votes"`
	SSE     SSEConfig     `yaml:"sse"`
	Reaper  ReaperConfig  `yaml:"reaper"`
	System  SystemConfig  `yaml:"system"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins" env:"CORS_ALLOW_ORIGINS" env-separator:","`
}

type StorageConfig struct {
	Driver          string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	DSN             string        `yaml:"dsn" env:"DATABASE_DSN"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"10"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
	Address  string `yaml:"address" env:"REDIS_ADDRESS" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env-default:"filap:events"`
}

type QueueConfig struct {
	TTL time.Duration `yaml:"ttl" env:"QUEUE_TTL" env-default:"24h"`
}

type AuthConfig struct {
	SecretPepper    string `yaml:"secret_pepper" env:"AUTH_SECRET_PEPPER"`
	TokenSigningKey string `yaml:"token_signing_key" env:"AUTH_TOKEN_SIGNING_KEY"`
	TokenIssuer     string `yaml:"token_issuer" env-default:"filap"`
}

type VotesConfig struct {
	Mode string `yaml:"mode" env:"VOTES_MODE" env-default:"toggle"`
}

type SSEConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env-default:"20s"`
	BufferSize        int           `yaml:"buffer_size" env-default:"32"`
	Retry             time.Duration `yaml:"retry" env-default:"3s"`
}

type ReaperConfig struct {
	Schedule string `yaml:"schedule" env-default:"@every 1m"`
}

type SystemConfig struct {
	AdminToken string `yaml:"admin_token" env:"SYSTEM_ADMIN_TOKEN"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"http://localhost:3000"}
	}
	if c.Env != EnvProd {
		if c.Auth.SecretPepper == "" {
			c.Auth.SecretPepper = "local-pepper"
		}
		if c.Auth.TokenSigningKey == "" {
			c.Auth.TokenSigningKey = "local-signing-key"
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Votes.Mode {
	case VoteModeToggle, VoteModeStrict:
	default:
		errs = append(errs, fmt.Errorf("unknown votes.mode %q", c.Votes.Mode))
	}

	if c.Queue.TTL <= 0 {
		errs = append(errs, errors.New("queue.ttl must be positive"))
	}
	if c.SSE.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("sse.heartbeat_interval must be positive"))
	}
	if c.SSE.BufferSize <= 0 {
		errs = append(errs, errors.New("sse.buffer_size must be positive"))
	}
	if c.Auth.SecretPepper == "" {
		errs = append(errs, errors.New("auth.secret_pepper is required"))
	}
	if c.Auth.TokenSigningKey == "" {
		errs = append(errs, errors.New("auth.token_signing_key is required"))
	}

	return errors.Join(errs...)
}
