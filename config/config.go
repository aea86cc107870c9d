package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	scraper "github.com/tourlens/scraper"
)

// Config represents the application configuration
type Config struct {
	// Browser configuration
	Headless    bool
	ChromePath  string
	UserDataDir string
	NoSandbox   bool
	BaseURL     string

	// Wait budgets
	ResponseTimeout time.Duration
	TabTimeout      time.Duration
	RecordTimeout   time.Duration

	// Export configuration
	FailureLog       string
	OutputDir        string
	MaxResetFailures int

	LogLevel string

	// Redis configuration, progress events are published when RedisAddr is set
	RedisAddr   string
	RedisDB     int
	RedisStream string

	// Memcache configuration, option lists are cached when MemcacheAddr is set
	MemcacheAddr   string
	OptionCacheTTL time.Duration

	// Collaborators
	SeoulAPIKey       string
	SeoulAPIService   string
	NaverClientID     string
	NaverClientSecret string
	CookieFile        string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Headless:    getEnvBool("TOURLENS_HEADLESS", true),
		ChromePath:  getEnv("TOURLENS_CHROME_PATH", ""),
		UserDataDir: getEnv("TOURLENS_USER_DATA_DIR", ""),
		NoSandbox:   getEnvBool("TOURLENS_NO_SANDBOX", false),
		BaseURL:     getEnv("TOURLENS_BASE_URL", scraper.DefaultBaseURL),

		ResponseTimeout: getEnvDuration("TOURLENS_RESPONSE_TIMEOUT", scraper.DefaultResponseTimeout),
		TabTimeout:      getEnvDuration("TOURLENS_TAB_TIMEOUT", scraper.DefaultTabTimeout),
		RecordTimeout:   getEnvDuration("TOURLENS_RECORD_TIMEOUT", scraper.DefaultRecordTimeout),

		FailureLog:       getEnv("TOURLENS_FAILURE_LOG", "logs/export_failures.log"),
		OutputDir:        getEnv("TOURLENS_OUTPUT_DIR", "Temp"),
		MaxResetFailures: getEnvInt("TOURLENS_MAX_RESET_FAILURES", scraper.DefaultMaxResetFailures),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisStream: getEnv("REDIS_STREAM", "tourlens:progress"),

		MemcacheAddr:   getEnv("MEMCACHE_ADDR", ""),
		OptionCacheTTL: getEnvDuration("OPTION_CACHE_TTL", scraper.DefaultOptionTTL),

		SeoulAPIKey:       getEnv("SEOUL_API_KEY", ""),
		SeoulAPIService:   getEnv("SEOUL_API_SERVICE", "TbVwAttractions"),
		NaverClientID:     getEnv("NAVER_CLIENT_ID", ""),
		NaverClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
		CookieFile:        getEnv("TOURLENS_COOKIE_FILE", ""),
	}
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"TOURLENS_RESPONSE_TIMEOUT", c.ResponseTimeout},
		{"TOURLENS_TAB_TIMEOUT", c.TabTimeout},
		{"TOURLENS_RECORD_TIMEOUT", c.RecordTimeout},
		{"OPTION_CACHE_TTL", c.OptionCacheTTL},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("%v must be positive, got %v", t.name, t.value)
		}
	}
	if c.MaxResetFailures <= 0 {
		return fmt.Errorf("TOURLENS_MAX_RESET_FAILURES must be positive, got %v", c.MaxResetFailures)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative, got %v", c.RedisDB)
	}
	return nil
}

func (c *Config) BrowserOptions() scraper.BrowserOptions {
	return scraper.BrowserOptions{
		Headless:        c.Headless,
		ExecPath:        c.ChromePath,
		UserDataDir:     c.UserDataDir,
		NoSandbox:       c.NoSandbox,
		ResponseTimeout: c.ResponseTimeout,
	}
}

func (c *Config) ExportOptions() scraper.ExportOptions {
	return scraper.ExportOptions{
		RecordTimeout:    c.RecordTimeout,
		TabTimeout:       c.TabTimeout,
		MaxResetFailures: c.MaxResetFailures,
	}
}

func (c *Config) Routes() scraper.Routes {
	return scraper.DefaultRoutes(c.BaseURL)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("90s") and plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
