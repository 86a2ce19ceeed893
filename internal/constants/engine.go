package constants

// Engine defaults, overridable through MONGOSCAN_* variables.
const (
	DefaultConnectionTimeoutSeconds = 30
	DefaultMaxConnections           = 10
	DefaultIdleTimeoutSeconds       = 300
	DefaultCleanupIntervalSeconds   = 60
	DefaultSchemaCacheTTLSeconds    = 300
	DefaultSchemaSampleSize         = 100
	DefaultMaxFieldMappings         = 1000
)

// Scan modes reported by the API and the CLI.
const (
	ScanModeRows  = "rows"
	ScanModeCount = "count"
)

// Maximum rows a single API scan may return.
const MaxScanLimit = 10000
