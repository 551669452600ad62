package infra

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Store drivers understood by LoadConfig.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Backup modes understood by LoadConfig.
const (
	BackupBridge = "bridge"
	BackupLocal  = "local"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	OperatorSecret string
	StorageBaseURL string
	StoragePath    string
	GeoIPDBPath    string
	DefaultLocale  string
	AllowedOrigins []string

	StoreDriver     string
	StoreDSN        string
	StoreQuotaBytes int

	CatalogPath      string
	AssetsDir        string
	PromptConfigPath string

	VertexProject     string
	VertexRegion      string
	ConsultRegion     string
	VertexBaseURL     string
	AttireModel       string
	ConsultModel      string
	TryOnModel        string
	GoogleAccessToken string
	GoogleUseADC      bool
	BridgeURL         string

	FalKey     string
	FalBaseURL string
	FalModel   string

	BackupMode        string
	GatewayTimeout    time.Duration
	BackupTimeout     time.Duration
	BackupRetention   time.Duration
	FrameContentScale float64

	CostBaseUSD  float64
	CostInputUSD float64
	CostTaxRate  float64
	CostFXRate   float64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		OperatorSecret: os.Getenv("OPERATOR_SECRET"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		StoragePath:    getEnv("STORAGE_PATH", "./data/backups"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		StoreDSN:        getEnv("STORE_DSN", "file:kiosk.db?_pragma=busy_timeout(5000)"),
		StoreQuotaBytes: getEnvInt("STORE_QUOTA_BYTES", 5*1024*1024),

		CatalogPath:      os.Getenv("CATALOG_PATH"),
		AssetsDir:        getEnv("ASSETS_DIR", "./assets"),
		PromptConfigPath: os.Getenv("PROMPT_CONFIG_PATH"),

		VertexProject:     os.Getenv("VERTEX_PROJECT"),
		VertexRegion:      getEnv("VERTEX_REGION", "asia-southeast1"),
		ConsultRegion:     getEnv("CONSULT_REGION", "us-central1"),
		VertexBaseURL:     os.Getenv("VERTEX_BASE_URL"),
		AttireModel:       getEnv("ATTIRE_MODEL", "gemini-2.0-flash-001"),
		ConsultModel:      getEnv("CONSULT_MODEL", "gemini-2.5-flash"),
		TryOnModel:        getEnv("TRYON_MODEL", "virtual-try-on-001"),
		GoogleAccessToken: os.Getenv("GOOGLE_ACCESS_TOKEN"),
		GoogleUseADC:      getEnvBool("GOOGLE_USE_ADC", false),
		BridgeURL:         os.Getenv("BRIDGE_URL"),

		FalKey:     os.Getenv("FAL_KEY"),
		FalBaseURL: getEnv("FAL_BASE_URL", "https://queue.fal.run"),
		FalModel:   getEnv("FAL_MODEL", "fal-ai/bytedance/seedream/v4.5/edit"),

		BackupMode:        strings.ToLower(getEnv("BACKUP_MODE", BackupBridge)),
		GatewayTimeout:    time.Second * time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 120)),
		BackupTimeout:     time.Second * time.Duration(getEnvInt("BACKUP_TIMEOUT_SECONDS", 60)),
		BackupRetention:   24 * time.Hour * time.Duration(getEnvInt("BACKUP_RETENTION_DAYS", 30)),
		FrameContentScale: getEnvFloat("FRAME_CONTENT_SCALE", 1),

		CostBaseUSD:  getEnvFloat("COST_BASE_USD", 0.12),
		CostInputUSD: getEnvFloat("COST_INPUT_USD", 0.0011),
		CostTaxRate:  getEnvFloat("COST_TAX_RATE", 0.08),
		CostFXRate:   getEnvFloat("COST_FX_RATE_MYR", 3.95),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres, StoreRedis:
		if os.Getenv("STORE_DSN") == "" {
			return nil, fmt.Errorf("STORE_DSN is required for store driver %q", cfg.StoreDriver)
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.BackupMode != BackupBridge && cfg.BackupMode != BackupLocal {
		return nil, fmt.Errorf("unsupported BACKUP_MODE %q", cfg.BackupMode)
	}

	if cfg.FrameContentScale <= 0 {
		return nil, fmt.Errorf("FRAME_CONTENT_SCALE must be positive")
	}

	return cfg, nil
}

// DirectVertex reports whether gateway calls go straight to Vertex AI rather than through the bridge.
func (c *Config) DirectVertex() bool {
	return strings.TrimSpace(c.BridgeURL) == ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	sort.Strings(out)
	return out
}
