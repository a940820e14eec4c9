package pgvector

import "time"

// Default values for configuration
const (
	DefaultLockMaxAttempts         = 5
	DefaultLockWait                = time.Second
	DefaultOptimizationConcurrency = 4
	DefaultLanguage                = "english"
	DefaultBatchSize               = 500
)

// Config tunes the pgvector engine. Zero values fall back to the defaults above.
type Config struct {
	// Lock bounds LockObjects retries when rows are held by another transaction.
	Lock LockConfig `yaml:"lock"`

	// OptimizationConcurrency is how many collections ApplyOptimizations works on at once.
	// Default: 4
	OptimizationConcurrency int `yaml:"optimization_concurrency" envconfig:"PGVECTOR_OPTIMIZATION_CONCURRENCY"`

	// Language is the text search configuration used by match and wildcard filters.
	// Default: "english"
	Language string `yaml:"language" envconfig:"PGVECTOR_LANGUAGE"`

	// BatchSize caps the rows sent per INSERT statement.
	// Default: 500
	BatchSize int `yaml:"batch_size" envconfig:"PGVECTOR_BATCH_SIZE"`
}

type LockConfig struct {
	// MaxAttempts is the total number of lock attempts, including the first.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts" envconfig:"PGVECTOR_LOCK_MAX_ATTEMPTS"`

	// Wait is the pause between attempts.
	// Default: 1s
	Wait time.Duration `yaml:"wait" envconfig:"PGVECTOR_LOCK_WAIT"`
}

func DefaultConfig() Config {
	return Config{
		Lock: LockConfig{
			MaxAttempts: DefaultLockMaxAttempts,
			Wait:        DefaultLockWait,
		},
		OptimizationConcurrency: DefaultOptimizationConcurrency,
		Language:                DefaultLanguage,
		BatchSize:               DefaultBatchSize,
	}
}

// WithLock returns a copy of the config with the lock retry policy replaced.
func (c Config) WithLock(maxAttempts int, wait time.Duration) Config {
	c.Lock = LockConfig{MaxAttempts: maxAttempts, Wait: wait}
	return c
}

// WithLanguage returns a copy of the config using the given text search configuration.
func (c Config) WithLanguage(language string) Config {
	c.Language = language
	return c
}

func (c *Config) applyDefaults() {
	if c.Lock.MaxAttempts <= 0 {
		c.Lock.MaxAttempts = DefaultLockMaxAttempts
	}
	if c.Lock.Wait <= 0 {
		c.Lock.Wait = DefaultLockWait
	}
	if c.OptimizationConcurrency <= 0 {
		c.OptimizationConcurrency = DefaultOptimizationConcurrency
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
}
