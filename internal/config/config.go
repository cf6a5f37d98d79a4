package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	API       APIConfig       `mapstructure:"api"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// CryptoConfig holds the token vault key. EncryptionKey must be a
// base64-encoded 32-byte value; the vault rejects anything else at startup.
type CryptoConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// OAuthConfig holds Google OAuth client configuration
type OAuthConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

// TrackingConfig holds the externally reachable base URL embedded into
// tracking pixels and click redirects.
type TrackingConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SchedulerConfig holds periodic job configuration
type SchedulerConfig struct {
	QueueIntervalMinutes   int `mapstructure:"queue_interval_minutes"`
	RefreshIntervalMinutes int `mapstructure:"refresh_interval_minutes"`
	BatchSize              int `mapstructure:"batch_size"`
	MaxConcurrentRefreshes int `mapstructure:"max_concurrent_refreshes"`
	RetentionDays          int `mapstructure:"retention_days"`
}

// APIConfig holds authentication for the job-trigger and management API
type APIConfig struct {
	AuthToken string `mapstructure:"auth_token"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)

	viper.SetDefault("oauth.redirect_url", "http://localhost:8080/api/accounts/oauth/callback")
	viper.SetDefault("oauth.send_timeout", "30s")

	viper.SetDefault("tracking.base_url", "http://localhost:8080")

	viper.SetDefault("scheduler.queue_interval_minutes", 5)
	viper.SetDefault("scheduler.refresh_interval_minutes", 30)
	viper.SetDefault("scheduler.batch_size", 50)
	viper.SetDefault("scheduler.max_concurrent_refreshes", 5)
	viper.SetDefault("scheduler.retention_days", 30)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")

	viper.BindEnv("crypto.encryption_key", "TOKEN_ENCRYPTION_KEY")

	viper.BindEnv("oauth.client_id", "GOOGLE_CLIENT_ID")
	viper.BindEnv("oauth.client_secret", "GOOGLE_CLIENT_SECRET")
	viper.BindEnv("oauth.redirect_url", "OAUTH_REDIRECT_URL")
	viper.BindEnv("oauth.send_timeout", "OAUTH_SEND_TIMEOUT")

	viper.BindEnv("tracking.base_url", "TRACKING_BASE_URL")

	viper.BindEnv("scheduler.queue_interval_minutes", "SCHEDULER_QUEUE_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.refresh_interval_minutes", "SCHEDULER_REFRESH_INTERVAL_MINUTES")
	viper.BindEnv("scheduler.batch_size", "SCHEDULER_BATCH_SIZE")
	viper.BindEnv("scheduler.max_concurrent_refreshes", "SCHEDULER_MAX_CONCURRENT_REFRESHES")
	viper.BindEnv("scheduler.retention_days", "SCHEDULER_RETENTION_DAYS")

	viper.BindEnv("api.auth_token", "API_AUTH_TOKEN")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host, user, and dbname are required")
	}

	if c.Crypto.EncryptionKey == "" {
		return fmt.Errorf("token encryption key is required")
	}

	if c.OAuth.ClientID == "" || c.OAuth.ClientSecret == "" {
		return fmt.Errorf("OAuth client credentials are required")
	}

	if c.API.AuthToken == "" {
		return fmt.Errorf("API auth token is required")
	}

	if c.Scheduler.QueueIntervalMinutes <= 0 || c.Scheduler.RefreshIntervalMinutes <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}

	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler batch size must be greater than 0")
	}

	return nil
}
