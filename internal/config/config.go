package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Host     string `mapstructure:"DB_HOST"`
	User     string `mapstructure:"DB_USER"`
	Password string `mapstructure:"DB_PASSWORD"`
	Name     string `mapstructure:"DB_NAME"`
	DBPort   string `mapstructure:"DB_PORT"`

	ServerPort     string `mapstructure:"SERVER_PORT"`
	JWTKey         string `mapstructure:"JWT_KEY"`
	Environment    string `mapstructure:"ENVIRONMENT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	// RealtimeBackend memory для одного инстанса, redis для нескольких
	RealtimeBackend string `mapstructure:"REALTIME_BACKEND"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`

	// RabbitURL пустой - push-уведомления не публикуются
	RabbitURL   string `mapstructure:"RABBIT_URL"`
	RabbitQueue string `mapstructure:"RABBIT_QUEUE"`

	TypingIdle        time.Duration `mapstructure:"TYPING_IDLE"`
	HeartbeatInterval time.Duration `mapstructure:"HEARTBEAT_INTERVAL"`
	PresenceFreshness time.Duration `mapstructure:"PRESENCE_FRESHNESS"`
	TransitionReveal  time.Duration `mapstructure:"TRANSITION_REVEAL"`
	TransitionSettle  time.Duration `mapstructure:"TRANSITION_SETTLE"`
	ConsecutiveCap    int           `mapstructure:"CONSECUTIVE_CAP"`
	MaxMessageLength  int           `mapstructure:"MAX_MESSAGE_LENGTH"`
}

var defaults = map[string]any{
	"DB_HOST":            "localhost",
	"DB_PORT":            "5432",
	"SERVER_PORT":        "8080",
	"ENVIRONMENT":        "production",
	"ALLOWED_ORIGINS":    "http://localhost:3000,http://localhost:8080",
	"REALTIME_BACKEND":   BackendMemory,
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"RABBIT_URL":         "",
	"RABBIT_QUEUE":       "notifications.push",
	"JWT_KEY":            "",
	"DB_USER":            "",
	"DB_PASSWORD":        "",
	"DB_NAME":            "",
	"TYPING_IDLE":        "3s",
	"HEARTBEAT_INTERVAL": "3s",
	"PRESENCE_FRESHNESS": "5s",
	"TRANSITION_REVEAL":  "300ms",
	"TRANSITION_SETTLE":  "800ms",
	"CONSECUTIVE_CAP":    3,
	"MAX_MESSAGE_LENGTH": 500,
}

// Load читает .env из path (если есть) и переменные окружения
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("DB_USER is required")
	}

	if c.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.JWTKey == "" {
		return fmt.Errorf("JWT_KEY is required")
	}

	switch c.RealtimeBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("REALTIME_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.RealtimeBackend)
	}

	if c.TransitionSettle <= c.TransitionReveal {
		return fmt.Errorf("TRANSITION_SETTLE must be longer than TRANSITION_REVEAL")
	}

	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.DBPort)
}

// Origins список разрешенных origin для CORS и WebSocket
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
