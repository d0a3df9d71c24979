package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string        `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate"`
		QueryTimeout        time.Duration `mapstructure:"queryTimeout"`
	} `mapstructure:"database"`
	NATS struct {
		URL          string `mapstructure:"url"`
		Enabled      bool   `mapstructure:"enabled"`
		LeadStream   string `mapstructure:"leadStream"`   // JetStream stream for lead events
		LeadSubject  string `mapstructure:"leadSubject"`  // Subject for accepted-lead events
		AuditSubject string `mapstructure:"auditSubject"` // Subject for assignment/override audit events
		MaxAgeDays   int    `mapstructure:"maxAgeDays"`   // Stream retention in days
	} `mapstructure:"nats"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"` // Use the shared redis counter store for rate limiting
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	RateLimit   RateLimitConfig   `mapstructure:"rateLimit"`
	Classifier  ClassifierConfig  `mapstructure:"classifier"`
	Quarantine  QuarantineConfig  `mapstructure:"quarantine"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Intake      struct {
		AsyncAssignment bool `mapstructure:"asyncAssignment"` // Route assignment through the worker pool
	} `mapstructure:"intake"`
	WorkerPools struct {
		Assignment AssignmentWorkerPoolConfig `mapstructure:"assignment"`
	} `mapstructure:"workerPools"`
}

// RateLimitConfig holds sliding-window limiter settings
type RateLimitConfig struct {
	MaxRequests        int `mapstructure:"maxRequests"`        // Max submissions per identity per window
	WindowSeconds      int `mapstructure:"windowSeconds"`      // Long window length
	BurstLimit         int `mapstructure:"burstLimit"`         // Max submissions in the burst window
	BurstWindowSeconds int `mapstructure:"burstWindowSeconds"` // Short burst window length
	MaxIdentities      int `mapstructure:"maxIdentities"`      // Bound on tracked identities
}

// ClassifierConfig holds trust-scoring thresholds
type ClassifierConfig struct {
	SpamThreshold  float64 `mapstructure:"spamThreshold"`  // Confidence at which isSpam flips true
	BlockThreshold float64 `mapstructure:"blockThreshold"` // Confidence at which the recommendation becomes block
}

// QuarantineConfig holds velocity and duplicate detection settings
type QuarantineConfig struct {
	EmailVelocityLimit  int           `mapstructure:"emailVelocityLimit"`  // Submissions per email per window
	EmailVelocityWindow time.Duration `mapstructure:"emailVelocityWindow"` // Rolling velocity window
	DuplicateWindow     time.Duration `mapstructure:"duplicateWindow"`     // Near-duplicate lookback window
}

// IdempotencyConfig holds the guard's key derivation and retention settings
type IdempotencyConfig struct {
	Retention  time.Duration `mapstructure:"retention"`  // How long recorded outcomes are honored
	BucketSize time.Duration `mapstructure:"bucketSize"` // Coarse time bucket used in derived keys
}

// AssignmentWorkerPoolConfig holds configuration for the assignment worker pool
type AssignmentWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("database.queryTimeout", 5*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.leadStream", "leads")
	v.SetDefault("nats.leadSubject", "v1.leads.accepted")
	v.SetDefault("nats.auditSubject", "v1.leads.audit")
	v.SetDefault("nats.maxAgeDays", 7)

	v.SetDefault("rateLimit.maxRequests", 10)
	v.SetDefault("rateLimit.windowSeconds", 3600)
	v.SetDefault("rateLimit.burstLimit", 3)
	v.SetDefault("rateLimit.burstWindowSeconds", 60)
	v.SetDefault("rateLimit.maxIdentities", 100000)

	v.SetDefault("classifier.spamThreshold", 0.5)
	v.SetDefault("classifier.blockThreshold", 0.8)

	v.SetDefault("quarantine.emailVelocityLimit", 2)
	v.SetDefault("quarantine.emailVelocityWindow", time.Hour)
	v.SetDefault("quarantine.duplicateWindow", time.Hour)

	v.SetDefault("idempotency.retention", 24*time.Hour)
	v.SetDefault("idempotency.bucketSize", 5*time.Minute)

	v.SetDefault("intake.asyncAssignment", false)
	v.SetDefault("workerPools.assignment.poolSize", 8)
	v.SetDefault("workerPools.assignment.queueSize", 4096)
	v.SetDefault("workerPools.assignment.maxBlock", time.Second)
	v.SetDefault("workerPools.assignment.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.lead-intake-service")
	v.AddConfigPath("/etc/lead-intake-service")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("redis.addr", addr)
		v.Set("redis.enabled", true)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
