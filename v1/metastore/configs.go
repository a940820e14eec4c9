package metastore

// Backend selects the DocumentStore implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Config controls where collection metadata lives and how changes reach
// other processes.
type Config struct {
	// Backend is the durable store for collection documents and blue pointers.
	// Default: "postgres"
	Backend Backend `yaml:"backend" envconfig:"METASTORE_BACKEND"`

	// InvalidationChannel is the Redis channel for metadata change events.
	// Default: "vc:invalidate"
	InvalidationChannel string `yaml:"invalidation_channel" envconfig:"METASTORE_INVALIDATION_CHANNEL"`

	// EnableInvalidation broadcasts changes over Redis. Requires a Redis client.
	EnableInvalidation bool `yaml:"enable_invalidation" envconfig:"METASTORE_ENABLE_INVALIDATION"`
}
