package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"timeline/internal/pkg/jwt"
	"timeline/internal/pkg/ratelimit"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultJWTSecret = "change-me-jwt-secret-change-me-jwt-secret"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	App       AppConfig                  `mapstructure:"app"`
	Server    ServerConfig               `mapstructure:"server"`
	DB        DBConfig                   `mapstructure:"db"`
	Auth      AuthConfig                 `mapstructure:"auth"`
	Store     StoreConfig                `mapstructure:"store"`
	Redis     RedisConfig                `mapstructure:"redis"`
	Log       LogConfig                  `mapstructure:"log"`
	CORS      CORSConfig                 `mapstructure:"cors"`
	Google    GoogleConfig               `mapstructure:"google"`
	Metrics   MetricsConfig              `mapstructure:"metrics"`
	RateLimit map[string]RateLimitConfig `mapstructure:"ratelimit"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTTL       time.Duration `mapstructure:"access_ttl"`
	RefreshTTL      time.Duration `mapstructure:"refresh_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	PublicPrefixes  []string      `mapstructure:"public_prefixes"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type GoogleConfig struct {
	ClientID string `mapstructure:"client_id"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	Scope       string        `mapstructure:"scope"`
	Message     string        `mapstructure:"message"`
}

// Policy converts the named entry into a limiter policy, falling back to
// limiter defaults for unset fields.
func (c *Config) Policy(operation string) ratelimit.Policy {
	rl := c.RateLimit[operation]
	return ratelimit.Policy{
		Operation:   operation,
		MaxRequests: rl.MaxRequests,
		Window:      rl.Window,
		Scope:       ratelimit.Scope(strings.ToLower(rl.Scope)),
		Message:     rl.Message,
	}.WithDefaults()
}

var defaultPolicies = map[string]RateLimitConfig{
	"login":    {MaxRequests: 5, Window: time.Minute, Scope: "ip", Message: "Too many login attempts."},
	"register": {MaxRequests: 3, Window: time.Hour, Scope: "ip", Message: "Too many sign-ups from this address."},
	"google":   {MaxRequests: 10, Window: time.Minute, Scope: "ip", Message: "Too many sign-in attempts."},
	"verify":   {MaxRequests: 30, Window: time.Minute, Scope: "ip", Message: "Too many verification requests."},
	"refresh":  {MaxRequests: 10, Window: time.Minute, Scope: "ip", Message: "Too many refresh requests."},
	"upgrade":  {MaxRequests: 3, Window: time.Hour, Scope: "user", Message: "Too many upgrade attempts."},
}

// LoadDotEnv reads a .env file into the environment when one exists.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads defaults, an optional YAML file and the environment, in
// increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetDefault("app.name", "timeline")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("db.dsn", "timeline.db")

	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.cleanup_interval", "10m")
	v.SetDefault("auth.public_prefixes", []string{
		"/api/auth/",
		"/public/",
		"/api/publico/public/",
		"/api/publico/info/",
		"/api/publico/validar/",
	})

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "timeline:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("cors.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	})
	v.SetDefault("google.client_id", "")
	v.SetDefault("metrics.enabled", true)

	for name, p := range defaultPolicies {
		v.SetDefault("ratelimit."+name+".max_requests", p.MaxRequests)
		v.SetDefault("ratelimit."+name+".window", p.Window.String())
		v.SetDefault("ratelimit."+name+".scope", p.Scope)
		v.SetDefault("ratelimit."+name+".message", p.Message)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// older deployment variable names
	_ = v.BindEnv("app.env", "APP_ENV", "ENV")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.access_ttl", "AUTH_ACCESS_TTL", "JWT_ACCESS_TTL")
	_ = v.BindEnv("auth.refresh_ttl", "AUTH_REFRESH_TTL", "REFRESH_TTL")
	_ = v.BindEnv("db.dsn", "DB_DSN", "DATABASE_URL")
	_ = v.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Auth.PublicPrefixes = trimAll(c.Auth.PublicPrefixes)
	c.CORS.AllowedOrigins = trimAll(c.CORS.AllowedOrigins)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.Auth.AccessTTL < jwt.MinTTL {
		return fmt.Errorf("auth.access_ttl must be at least %s", jwt.MinTTL)
	}
	if cfg.Auth.RefreshTTL < jwt.MinTTL {
		return fmt.Errorf("auth.refresh_ttl must be at least %s", jwt.MinTTL)
	}
	if len(cfg.Auth.JWTSecret) < jwt.MinSecretLength {
		return &jwt.ConfigurationError{
			Field: "auth.jwt_secret",
			Err:   fmt.Errorf("%w: need at least %d bytes", jwt.ErrSecretTooShort, jwt.MinSecretLength),
		}
	}
	if cfg.Store.Backend != StoreMemory && cfg.Store.Backend != StoreRedis {
		return fmt.Errorf("store.backend must be one of: %s, %s", StoreMemory, StoreRedis)
	}
	if cfg.Store.Backend == StoreRedis && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return fmt.Errorf("redis.addr must be set when store.backend=redis")
	}
	for name, p := range cfg.RateLimit {
		if p.MaxRequests <= 0 {
			return fmt.Errorf("ratelimit.%s.max_requests must be > 0", name)
		}
		if p.Window <= 0 {
			return fmt.Errorf("ratelimit.%s.window must be > 0", name)
		}
		if !ratelimit.Scope(strings.ToLower(p.Scope)).Valid() {
			return fmt.Errorf("ratelimit.%s.scope must be one of: ip, user, global", name)
		}
	}

	if isProdLike(cfg.App.Env) {
		if isEmptyOrDefault(cfg.Auth.JWTSecret, DefaultJWTSecret) {
			return fmt.Errorf("in prod/release auth.jwt_secret must be set and not default")
		}
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
