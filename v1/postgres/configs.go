package postgres

import (
	"fmt"
	"time"
)

// Config defines the Postgres connection and recovery settings.
type Config struct {
	Connection        Connection        `yaml:"connection"`
	ConnectionDetails ConnectionDetails `yaml:"connection_details"`

	// ReadFallback bounds how often a read is retried on a fresh connection
	// after the current one turned out to be broken.
	ReadFallback ReadFallback `yaml:"read_fallback"`

	// HealthCheckInterval is the period of the background connection monitor.
	// Default: 10 seconds
	HealthCheckInterval time.Duration `yaml:"health_check_interval" envconfig:"POSTGRES_HEALTH_CHECK_INTERVAL"`
}

type Connection struct {
	Host     string `yaml:"host" envconfig:"POSTGRES_HOST"`
	Port     string `yaml:"port" envconfig:"POSTGRES_PORT"`
	User     string `yaml:"user" envconfig:"POSTGRES_USER"`
	Password string `yaml:"password" envconfig:"POSTGRES_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"POSTGRES_DB"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"POSTGRES_SSL_MODE"`
}

type ConnectionDetails struct {
	// Default: 50
	MaxOpenConns int `yaml:"max_open_conns" envconfig:"POSTGRES_MAX_OPEN_CONNS"`
	// Default: 25
	MaxIdleConns int `yaml:"max_idle_conns" envconfig:"POSTGRES_MAX_IDLE_CONNS"`
	// Default: 1 minute
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"POSTGRES_CONN_MAX_LIFETIME"`
}

type ReadFallback struct {
	// MaxAttempts counts the first try. Default: 2
	MaxAttempts int `yaml:"max_attempts" envconfig:"POSTGRES_READ_FALLBACK_ATTEMPTS"`
	// Wait is the pause before retrying on the fresh connection. Default: 100ms
	Wait time.Duration `yaml:"wait" envconfig:"POSTGRES_READ_FALLBACK_WAIT"`
}

const (
	DefaultMaxOpenConns        = 50
	DefaultMaxIdleConns        = 25
	DefaultConnMaxLifetime     = time.Minute
	DefaultReadFallbackRetries = 2
	DefaultReadFallbackWait    = 100 * time.Millisecond
	DefaultHealthCheckInterval = 10 * time.Second
)

// DefaultConfig returns a configuration for a local Postgres with package defaults.
func DefaultConfig() Config {
	return Config{
		Connection: Connection{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DbName:  "postgres",
			SSLMode: "disable",
		},
		ConnectionDetails: ConnectionDetails{
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: DefaultConnMaxLifetime,
		},
		ReadFallback: ReadFallback{
			MaxAttempts: DefaultReadFallbackRetries,
			Wait:        DefaultReadFallbackWait,
		},
		HealthCheckInterval: DefaultHealthCheckInterval,
	}
}

// WithConnection sets the connection target.
func (c Config) WithConnection(conn Connection) Config {
	c.Connection = conn
	return c
}

// WithReadFallback sets the read fallback policy.
func (c Config) WithReadFallback(maxAttempts int, wait time.Duration) Config {
	c.ReadFallback = ReadFallback{MaxAttempts: maxAttempts, Wait: wait}
	return c
}

// applyDefaults fills every zero field with its package default.
func (c Config) applyDefaults() Config {
	if c.ConnectionDetails.MaxOpenConns == 0 {
		c.ConnectionDetails.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.ConnectionDetails.MaxIdleConns == 0 {
		c.ConnectionDetails.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.ConnectionDetails.ConnMaxLifetime == 0 {
		c.ConnectionDetails.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.ReadFallback.MaxAttempts == 0 {
		c.ReadFallback.MaxAttempts = DefaultReadFallbackRetries
	}
	if c.ReadFallback.Wait == 0 {
		c.ReadFallback.Wait = DefaultReadFallbackWait
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.Connection.SSLMode == "" {
		c.Connection.SSLMode = "disable"
	}
	return c
}

// DSN renders the key/value connection string understood by pgx.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Connection.Host,
		c.Connection.Port,
		c.Connection.User,
		c.Connection.Password,
		c.Connection.DbName,
		c.Connection.SSLMode)
}
