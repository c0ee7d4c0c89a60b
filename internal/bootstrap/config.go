package bootstrap

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/dictation/internal/capability"
	"github.com/eleven-am/dictation/internal/client"
	"github.com/eleven-am/dictation/internal/dictation"
	"github.com/eleven-am/dictation/internal/mailbox"
	"github.com/eleven-am/dictation/internal/supervisor"
	"github.com/eleven-am/dictation/internal/worker"
	"github.com/joho/godotenv"
)

const (
	MailboxDir    = "dir"
	MailboxRedis  = "redis"
	MailboxMemory = "memory"
)

type Config struct {
	LogLevel string

	MailboxBackend string
	RequestDir     string
	ResponseDir    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	CapabilityBackend string
	ModelCommand      string
	ModelArgs         []string
	ModelWorkDir      string
	ModelLoadTimeout  time.Duration

	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
	Language      string

	PollInterval       time.Duration
	ClientPollInterval time.Duration
	ReadGrace          time.Duration
	RequestTimeout     time.Duration
	PingTimeout        time.Duration

	StartupTimeout time.Duration
	StopGrace      time.Duration
	WorkerBinary   string
	WorkerArgs     []string
	WorkerLog      string

	FallbackBinary    string
	FallbackTimeout   time.Duration
	FallbackOnTimeout bool
	UseAPI            bool

	HistoryDSN string
	StatusAddr string
	SocketPath string

	RemoveTrailingPeriod bool
	AddTrailingSpace     bool
	RemoveCapitalization bool
}

// LoadConfig reads the environment, after merging an optional .env file from
// the working directory.
func LoadConfig() *Config {
	_ = godotenv.Load()

	requestDir, responseDir := mailbox.DefaultDirs()

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MailboxBackend: getEnv("MAILBOX_BACKEND", MailboxDir),
		RequestDir:     getEnv("REQUEST_DIR", requestDir),
		ResponseDir:    getEnv("RESPONSE_DIR", responseDir),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "dictation"),

		CapabilityBackend: getEnv("CAPABILITY_BACKEND", capability.BackendProcess),
		ModelCommand:      getEnv("MODEL_COMMAND", ""),
		ModelArgs:         getEnvFields("MODEL_ARGS"),
		ModelWorkDir:      getEnv("MODEL_WORKDIR", ""),
		ModelLoadTimeout:  getEnvDuration("MODEL_LOAD_TIMEOUT", 5*time.Minute),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		Language:      getEnv("LANGUAGE", ""),

		PollInterval:       getEnvDuration("POLL_INTERVAL", 50*time.Millisecond),
		ClientPollInterval: getEnvDuration("CLIENT_POLL_INTERVAL", 100*time.Millisecond),
		ReadGrace:          getEnvDuration("READ_GRACE", 50*time.Millisecond),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		PingTimeout:        getEnvDuration("PING_TIMEOUT", 3*time.Second),

		StartupTimeout: getEnvDuration("STARTUP_TIMEOUT", 30*time.Second),
		StopGrace:      getEnvDuration("STOP_GRACE", 5*time.Second),
		WorkerBinary:   getEnv("WORKER_BINARY", "dictation-worker"),
		WorkerArgs:     getEnvFields("WORKER_ARGS"),
		WorkerLog:      getEnv("WORKER_LOG", filepath.Join(os.TempDir(), "dictation-worker.log")),

		FallbackBinary:    getEnv("FALLBACK_BINARY", "dictation-transcribe"),
		FallbackTimeout:   getEnvDuration("FALLBACK_TIMEOUT", 60*time.Second),
		FallbackOnTimeout: getEnvBool("FALLBACK_ON_TIMEOUT", true),
		UseAPI:            getEnvBool("USE_API", false),

		HistoryDSN: getEnv("HISTORY_DSN", ""),
		StatusAddr: getEnv("STATUS_ADDR", ""),
		SocketPath: getEnv("SOCKET_PATH", ""),

		RemoveTrailingPeriod: getEnvBool("REMOVE_TRAILING_PERIOD", false),
		AddTrailingSpace:     getEnvBool("ADD_TRAILING_SPACE", false),
		RemoveCapitalization: getEnvBool("REMOVE_CAPITALIZATION", false),
	}
}

func (c *Config) CapabilityConfig() capability.Config {
	return capability.Config{
		Backend:        c.CapabilityBackend,
		Command:        c.ModelCommand,
		Args:           c.ModelArgs,
		WorkDir:        c.ModelWorkDir,
		LoadTimeout:    c.ModelLoadTimeout,
		RequestTimeout: c.RequestTimeout,
		OpenAIKey:      c.OpenAIKey,
		OpenAIModel:    c.OpenAIModel,
		OpenAIBaseURL:  c.OpenAIBaseURL,
		Language:       c.Language,
	}
}

func (c *Config) WorkerConfig() worker.Config {
	cfg := worker.DefaultConfig()
	cfg.PollInterval = c.PollInterval
	cfg.ReadGrace = c.ReadGrace
	return cfg
}

func (c *Config) ClientConfig() client.Config {
	return client.Config{
		PollInterval: c.ClientPollInterval,
		Timeout:      c.RequestTimeout,
		PingTimeout:  c.PingTimeout,
	}
}

func (c *Config) SupervisorConfig() supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.StartupTimeout = c.StartupTimeout
	cfg.StopGrace = c.StopGrace
	return cfg
}

func (c *Config) DictationOptions() dictation.Options {
	return dictation.Options{
		UseAPI:               c.UseAPI,
		FallbackOnTimeout:    c.FallbackOnTimeout,
		RequestTimeout:       c.RequestTimeout,
		RemoveTrailingPeriod: c.RemoveTrailingPeriod,
		AddTrailingSpace:     c.AddTrailingSpace,
		RemoveCapitalization: c.RemoveCapitalization,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms", "2m") and bare integers as
// seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if s, err := strconv.Atoi(value); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	return defaultValue
}

func getEnvFields(key string) []string {
	return strings.Fields(os.Getenv(key))
}
