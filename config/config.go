package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ErrMissingAPIKey is returned by Load when the model provider secret is absent.
var ErrMissingAPIKey = errors.New("missing model API key")

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// DefaultSiteOrigin is the business website the assistant answers for.
const DefaultSiteOrigin = "https://www.hcmakers.com"

// Config holds every tunable of the assistant.
type Config struct {
	// Model provider
	Provider string
	APIKey   string
	Model    string
	BaseURL  string

	// Scraping
	SiteOrigin    string
	Pages         []string
	ResourcesURL  string
	FetchTimeout  time.Duration
	PageTextLimit int
	ExtractFormat string

	// Documents
	MaxDocuments      int
	ZipMemberPatterns []string
	PollAttempts      int
	PollInterval      time.Duration
	EnablePreviews    bool
	PdftoppmPath      string

	// Cache and files
	CacheTTL  time.Duration
	WorkDir   string
	RenderDir string
	FactsFile string

	// Process
	LogLevel   string
	LogFile    string
	LogFormat  string
	ListenAddr string

	// HTTP sessions
	MaxSessions int
	SessionTTL  time.Duration
}

// Load reads configuration from the process environment.
// The API key is checked first; without it nothing else is worth starting.
func Load() (*Config, error) {
	provider := strings.ToLower(GetEnv("MODEL_PROVIDER", ProviderGemini))

	var apiKey, keyName string
	switch provider {
	case ProviderGemini:
		keyName = "GOOGLE_API_KEY"
		apiKey = GetEnv(keyName, os.Getenv("GEMINI_API_KEY"))
	case ProviderOpenAI:
		keyName = "API_KEY"
		apiKey = os.Getenv(keyName)
	default:
		return nil, fmt.Errorf("unknown MODEL_PROVIDER %q (want %s or %s)", provider, ProviderGemini, ProviderOpenAI)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: set %s in the environment or in a .env file before starting the assistant", ErrMissingAPIKey, keyName)
	}

	origin := strings.TrimSuffix(GetEnv("SITE_ORIGIN", DefaultSiteOrigin), "/")
	cfg := &Config{
		Provider: provider,
		APIKey:   apiKey,
		Model:    GetEnv("MODEL", defaultModel(provider)),
		BaseURL:  os.Getenv("BASE_URL"),

		SiteOrigin:    origin,
		Pages:         GetEnvList("SITE_PAGES", DefaultPages(origin)),
		ResourcesURL:  GetEnv("RESOURCES_URL", origin+"/resources/"),
		FetchTimeout:  GetEnvDuration("FETCH_TIMEOUT", 8*time.Second),
		PageTextLimit: GetEnvInt("PAGE_TEXT_LIMIT", 4000),
		ExtractFormat: GetEnv("EXTRACT_FORMAT", "text"),

		MaxDocuments:      GetEnvInt("MAX_DOCUMENTS", 5),
		ZipMemberPatterns: GetEnvList("ZIP_MEMBER_PATTERNS", DefaultZipMemberPatterns()),
		PollAttempts:      GetEnvInt("POLL_ATTEMPTS", 10),
		PollInterval:      GetEnvDuration("POLL_INTERVAL", time.Second),
		EnablePreviews:    GetEnvBool("ENABLE_PREVIEWS", true),
		PdftoppmPath:      GetEnv("PDFTOPPM_PATH", "pdftoppm"),

		CacheTTL:  GetEnvDuration("CACHE_TTL", time.Hour),
		WorkDir:   GetEnv("WORK_DIR", "."),
		RenderDir: os.Getenv("RENDER_DIR"),
		FactsFile: os.Getenv("FACTS_FILE"),

		LogLevel:   GetEnv("LOG_LEVEL", "info"),
		LogFile:    GetEnv("LOG_FILE", "salesrep.log"),
		LogFormat:  GetEnv("LOG_FORMAT", "text"),
		ListenAddr: GetEnv("LISTEN_ADDR", ":8080"),

		MaxSessions: GetEnvInt("MAX_SESSIONS", 1000),
		SessionTTL:  GetEnvDuration("SESSION_TTL", 30*time.Minute),
	}
	return cfg, nil
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return "glm-4-flash"
	}
	return "gemini-2.0-flash"
}

// DefaultPages is the scrape allow-list for an origin.
func DefaultPages(origin string) []string {
	return []string{
		origin + "/",
		origin + "/about-us/",
		origin + "/products/",
		origin + "/food-service/",
		origin + "/recipes/",
		origin + "/contact-us/",
	}
}

// DefaultZipMemberPatterns keeps sell sheets and spec sheets of the core SKUs.
func DefaultZipMemberPatterns() []string {
	return []string{
		"**/*fresco*.pdf",
		"**/*panela*.pdf",
		"**/*oaxaca*.pdf",
		"**/*cotija*.pdf",
		"**/*blanco*.pdf",
		"**/*sell*sheet*.pdf",
	}
}

// LoadEnv loads .env files into the process environment when they exist.
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.local"}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil && logger != nil {
			logger.WithError(err).Warnf("Failed to load %s", file)
		}
	}
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetEnvList splits a comma separated variable, dropping empty items.
func GetEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// GetLogLevel maps a level name to a logrus level.
func GetLogLevel(name string) logrus.Level {
	switch strings.ToLower(name) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
