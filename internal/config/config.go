package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr       string   `mapstructure:"HTTP_ADDR"`
	GRPCAddr       string   `mapstructure:"GRPC_ADDR"`
	AllowedOrigins []string `mapstructure:"ALLOWED_ORIGINS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	PgHost      string `mapstructure:"PG_HOST"`
	PgPort      string `mapstructure:"PG_PORT"`
	PgUser      string `mapstructure:"PG_USER"`
	PgPassword  string `mapstructure:"PG_PASSWORD"`
	PgName      string `mapstructure:"PG_NAME"`
	PgSSLMode   string `mapstructure:"PG_SSLMODE"`

	SupabaseURL       string `mapstructure:"VITE_SUPABASE_URL"`
	SupabaseKey       string `mapstructure:"VITE_SUPABASE_KEY"`
	SupabaseJWTSecret string `mapstructure:"SUPABASE_JWT_SECRET"`
	StorageBucket     string `mapstructure:"STORAGE_BUCKET"`

	DifyBaseURL string `mapstructure:"VITE_DIFY_API_BASE_URL"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	ParametersTTL time.Duration `mapstructure:"PARAMETERS_TTL"`

	MirrorConcurrency  int    `mapstructure:"MIRROR_CONCURRENCY"`
	MaxDownloadSize    int64  `mapstructure:"MAX_DOWNLOAD_SIZE"`
	MirrorPrivateHosts bool   `mapstructure:"MIRROR_ALLOW_PRIVATE_HOSTS"`
	ToolsFile          string `mapstructure:"TOOLS_FILE"`

	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UploadTimeout   time.Duration `mapstructure:"UPLOAD_TIMEOUT"`
	DownloadTimeout time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	GatewayTimeout  time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	v *viper.Viper
}

var defaults = map[string]any{
	"HTTP_ADDR":                  ":5641",
	"GRPC_ADDR":                  ":5642",
	"ALLOWED_ORIGINS":            []string{"http://localhost:3000"},
	"DATABASE_URL":               "",
	"PG_HOST":                    "localhost",
	"PG_PORT":                    "5432",
	"PG_USER":                    "postgres",
	"PG_PASSWORD":                "",
	"PG_NAME":                    "postgres",
	"PG_SSLMODE":                 "disable",
	"VITE_SUPABASE_URL":          "",
	"VITE_SUPABASE_KEY":          "",
	"SUPABASE_JWT_SECRET":        "",
	"STORAGE_BUCKET":             "dify-images",
	"VITE_DIFY_API_BASE_URL":     "https://api.dify.ai/v1",
	"REDIS_ADDR":                 "",
	"PARAMETERS_TTL":             10 * time.Minute,
	"MIRROR_CONCURRENCY":         4,
	"MAX_DOWNLOAD_SIZE":          20 << 20,
	"MIRROR_ALLOW_PRIVATE_HOSTS": false,
	"TOOLS_FILE":                 "",
	"REQUEST_TIMEOUT":            60 * time.Second,
	"UPLOAD_TIMEOUT":             30 * time.Second,
	"DOWNLOAD_TIMEOUT":           60 * time.Second,
	"GATEWAY_TIMEOUT":            2 * time.Minute,
}

// NewConfig подгружает .env (если есть) в окружение процесса и собирает конфигурацию.
// Переменные окружения имеют приоритет над .env.
func NewConfig(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
			}
			log.Printf("WARN: [Config] %s not found, using environment only", envPath)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DifyBaseURL = strings.TrimRight(cfg.DifyBaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.SupabaseURL == "" {
		missing = append(missing, "VITE_SUPABASE_URL")
	}
	if c.SupabaseKey == "" {
		missing = append(missing, "VITE_SUPABASE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.MirrorConcurrency < 1 {
		c.MirrorConcurrency = 1
	}
	return nil
}

// Lookup возвращает значение произвольной переменной, включая ключи инструментов,
// которые заранее не известны.
func (c *Config) Lookup(name string) string {
	return strings.TrimSpace(c.v.GetString(name))
}

// PostgresDSN - DATABASE_URL, либо DSN из отдельных PG_* параметров.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PgHost, c.PgPort, c.PgUser, c.PgPassword, c.PgName, c.PgSSLMode)
}
