// Package config defines the configuration contract and loads and validates environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken    = "TELEGRAM_TOKEN"
	KeyBotOwner         = "BOT_OWNER"
	KeyMongoURI         = "MONGO_URI"
	KeyMongoDB          = "MONGO_DB"
	KeyAppEnv           = "APP_ENV"
	KeyLogLevel         = "LOG_LEVEL"
	KeyHTTPPort         = "HTTP_PORT"
	KeySessionStore     = "SESSION_STORE"
	KeyRedisURL         = "REDIS_URL"
	KeySessionTTL       = "SESSION_TTL"
	KeyEmailMaxAttempts = "EMAIL_MAX_ATTEMPTS"
	KeyStoreTimeout     = "STORE_TIMEOUT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Allowed session store drivers.
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	// Defaults for optional settings.
	DefaultAppEnv           = EnvProduction
	DefaultLogLevel         = "info"
	DefaultHTTPPort         = 8080
	DefaultSessionStore     = SessionStoreMemory
	DefaultSessionTTL       = 24 * time.Hour
	DefaultEmailMaxAttempts = 5
	DefaultStoreTimeout     = 5 * time.Second

	// Recommended database names by environment.
	DefaultMongoDBProd = "affiliate_bot"
	DefaultMongoDBDev  = "affiliate_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string for the identity store and merchant catalog.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyBotOwner,
		Example:     "123456789",
		Description: "Telegram user_id allowed to run /stats.",
		Notes:       "Leave unset to disable owner commands.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
	{
		Key:         KeySessionStore,
		Example:     SessionStoreMemory + " / " + SessionStoreRedis,
		Default:     DefaultSessionStore,
		Description: "Conversation state backend.",
		Notes:       "memory state is lost on restart; redis requires " + KeyRedisURL + ".",
	},
	{
		Key:         KeyRedisURL,
		Example:     "redis://localhost:6379/0",
		Description: "Redis connection URL for the redis session store.",
	},
	{
		Key:         KeySessionTTL,
		Example:     DefaultSessionTTL.String(),
		Default:     DefaultSessionTTL.String(),
		Description: "Expiry of conversation state in the redis session store.",
	},
	{
		Key:         KeyEmailMaxAttempts,
		Example:     strconv.Itoa(DefaultEmailMaxAttempts),
		Default:     strconv.Itoa(DefaultEmailMaxAttempts),
		Description: "Invalid email replies allowed before the registration prompt is disarmed.",
		Notes:       "0 keeps prompting forever.",
	},
	{
		Key:         KeyStoreTimeout,
		Example:     DefaultStoreTimeout.String(),
		Default:     DefaultStoreTimeout.String(),
		Description: "Timeout applied to each identity store call made while handling an update.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken    string
	BotOwnerID       int64
	MongoURI         string
	MongoDB          string
	AppEnv           string
	LogLevel         string
	HTTPPort         int
	SessionStore     string
	RedisURL         string
	SessionTTL       time.Duration
	EmailMaxAttempts int
	StoreTimeout     time.Duration
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:           firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:    strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:         strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:          strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:         firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:         DefaultHTTPPort,
		SessionStore:     firstNonEmpty(normalizeEnv(os.Getenv(KeySessionStore)), DefaultSessionStore),
		RedisURL:         strings.TrimSpace(os.Getenv(KeyRedisURL)),
		SessionTTL:       DefaultSessionTTL,
		EmailMaxAttempts: DefaultEmailMaxAttempts,
		StoreTimeout:     DefaultStoreTimeout,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if cfg.SessionStore == SessionStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, KeyRedisURL)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(cfg.MongoURI, "mongodb://") && !strings.HasPrefix(cfg.MongoURI, "mongodb+srv://") {
		return Config{}, fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
	}

	if cfg.SessionStore != SessionStoreMemory && cfg.SessionStore != SessionStoreRedis {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeySessionStore, SessionStoreMemory, SessionStoreRedis)
	}

	if ownerRaw := strings.TrimSpace(os.Getenv(KeyBotOwner)); ownerRaw != "" {
		ownerID, parseErr := strconv.ParseInt(ownerRaw, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyBotOwner, parseErr)
		}
		cfg.BotOwnerID = ownerID
	}

	if port, ok, err := positiveInt(KeyHTTPPort); err != nil {
		return Config{}, err
	} else if ok {
		cfg.HTTPPort = port
	}

	if raw := strings.TrimSpace(os.Getenv(KeyEmailMaxAttempts)); raw != "" {
		attempts, parseErr := strconv.Atoi(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyEmailMaxAttempts, parseErr)
		}
		if attempts < 0 {
			return Config{}, fmt.Errorf("%s must not be negative", KeyEmailMaxAttempts)
		}
		cfg.EmailMaxAttempts = attempts
	}

	if ttl, ok, err := positiveDuration(KeySessionTTL); err != nil {
		return Config{}, err
	} else if ok {
		cfg.SessionTTL = ttl
	}

	if timeout, ok, err := positiveDuration(KeyStoreTimeout); err != nil {
		return Config{}, err
	} else if ok {
		cfg.StoreTimeout = timeout
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// OwnerEnabled reports whether owner-only commands are configured.
func (c Config) OwnerEnabled() bool {
	return c.BotOwnerID != 0
}

// FormatRedacted renders the configuration for diagnostics with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + redactToken(cfg.TelegramToken),
		"bot_owner: " + strconv.FormatInt(cfg.BotOwnerID, 10),
		"mongo_uri: " + redactURL(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"session_store: " + cfg.SessionStore,
		"redis_url: " + redactURL(cfg.RedisURL),
		"session_ttl: " + cfg.SessionTTL.String(),
		"email_max_attempts: " + strconv.Itoa(cfg.EmailMaxAttempts),
		"store_timeout: " + cfg.StoreTimeout.String(),
	}

	return strings.Join(lines, "\n")
}

func redactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "...redacted"
	}
	return token[:4] + "...redacted"
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "redacted"
	}
	parsed.User = nil

	return parsed.String()
}

func positiveInt(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, false, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, true, nil
}

func positiveDuration(key string) (time.Duration, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, false, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, true, nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
