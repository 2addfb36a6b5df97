package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	JWT           JWTConfig           `yaml:"jwt"`
	SendGrid      SendGridConfig      `yaml:"sendgrid"`
	Payment       PaymentConfig       `yaml:"payment"`
	Redis         RedisConfig         `yaml:"redis"`
	Log           LogConfig           `yaml:"log"`
	Loans         LoansConfig         `yaml:"loans"`
	Contributions ContributionsConfig `yaml:"contributions"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "postgres" or "memory"
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// SendGridConfig contains email delivery settings. An empty API key disables delivery.
type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// PaymentConfig contains mobile-money gateway settings
type PaymentConfig struct {
	Provider       string        `yaml:"provider"` // "mpesa" or "mock"
	BaseURL        string        `yaml:"base_url"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret"`
	ShortCode      string        `yaml:"short_code"`
	PassKey        string        `yaml:"pass_key"`
	CallbackURL    string        `yaml:"callback_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the payment gateway
type BreakerConfig struct {
	MaxRequests         uint32 `yaml:"max_requests"`
	IntervalSeconds     int    `yaml:"interval_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
}

// RedisConfig enables the distributed job lock when Address is set
type RedisConfig struct {
	Address           string `yaml:"address"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	LockExpirySeconds int    `yaml:"lock_expiry_seconds"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "pretty"
}

// LoansConfig contains loan sweep settings
type LoansConfig struct {
	ReminderDaysAhead    int   `yaml:"reminder_days_ahead"`
	OverdueGraceDays     int   `yaml:"overdue_grace_days"`
	DefaultDurationWeeks int32 `yaml:"default_duration_weeks"`
}

// ContributionsConfig contains mobile-money contribution settings
type ContributionsConfig struct {
	PendingExpiryHours int `yaml:"pending_expiry_hours"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	MarkOverdueLoans         string `yaml:"mark_overdue_loans"`
	SendLoanReminders        string `yaml:"send_loan_reminders"`
	ExpireStaleContributions string `yaml:"expire_stale_contributions"`
	ReconcileGroupBalances   string `yaml:"reconcile_group_balances"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// SendGrid
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// Payment
	if val := os.Getenv("MPESA_CONSUMER_KEY"); val != "" {
		c.Payment.ConsumerKey = val
	}
	if val := os.Getenv("MPESA_CONSUMER_SECRET"); val != "" {
		c.Payment.ConsumerSecret = val
	}
	if val := os.Getenv("MPESA_PASSKEY"); val != "" {
		c.Payment.PassKey = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Address = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 15
	}

	// Database validation
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Payment validation
	c.Payment.Provider = strings.ToLower(c.Payment.Provider)
	if c.Payment.Provider == "" {
		c.Payment.Provider = "mock"
	}
	switch c.Payment.Provider {
	case "mpesa":
		if c.Payment.ConsumerKey == "" || c.Payment.ConsumerSecret == "" {
			return fmt.Errorf("mpesa consumer key and secret are required")
		}
		if c.Payment.ShortCode == "" || c.Payment.PassKey == "" {
			return fmt.Errorf("mpesa short code and pass key are required")
		}
		if c.Payment.CallbackURL == "" {
			return fmt.Errorf("mpesa callback url is required")
		}
		if c.Payment.BaseURL == "" {
			c.Payment.BaseURL = "https://sandbox.safaricom.co.ke"
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported payment provider: %s", c.Payment.Provider)
	}
	if c.Payment.TimeoutSeconds == 0 {
		c.Payment.TimeoutSeconds = 30
	}
	if c.Payment.Breaker.MaxRequests == 0 {
		c.Payment.Breaker.MaxRequests = 1
	}
	if c.Payment.Breaker.IntervalSeconds == 0 {
		c.Payment.Breaker.IntervalSeconds = 60
	}
	if c.Payment.Breaker.TimeoutSeconds == 0 {
		c.Payment.Breaker.TimeoutSeconds = 30
	}
	if c.Payment.Breaker.ConsecutiveFailures == 0 {
		c.Payment.Breaker.ConsecutiveFailures = 5
	}

	// Redis defaults
	if c.Redis.LockExpirySeconds == 0 {
		c.Redis.LockExpirySeconds = 300
	}

	// Loan defaults
	if c.Loans.ReminderDaysAhead == 0 {
		c.Loans.ReminderDaysAhead = 3
	}
	if c.Loans.OverdueGraceDays < 0 {
		return fmt.Errorf("overdue grace days cannot be negative")
	}
	if c.Loans.OverdueGraceDays == 0 {
		c.Loans.OverdueGraceDays = 1
	}
	if c.Loans.DefaultDurationWeeks == 0 {
		c.Loans.DefaultDurationWeeks = 8
	}

	// Contribution defaults
	if c.Contributions.PendingExpiryHours == 0 {
		c.Contributions.PendingExpiryHours = 24
	}

	// Scheduler defaults
	if c.Scheduler.MarkOverdueLoans == "" {
		c.Scheduler.MarkOverdueLoans = "0 0 1 * * *" // 1 AM UTC
	}
	if c.Scheduler.SendLoanReminders == "" {
		c.Scheduler.SendLoanReminders = "0 0 9 * * *" // 9 AM UTC
	}
	if c.Scheduler.ExpireStaleContributions == "" {
		c.Scheduler.ExpireStaleContributions = "0 */30 * * * *" // Every 30 minutes
	}
	if c.Scheduler.ReconcileGroupBalances == "" {
		c.Scheduler.ReconcileGroupBalances = "0 30 2 * * *" // 2:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
