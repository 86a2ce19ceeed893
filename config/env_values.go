package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mongoscan/internal/constants"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/scan"
	"mongoscan/pkg/schema"
)

type Environment struct {
	// Server configs
	IsDocker          bool
	Port              string
	Environment       string
	CorsAllowedOrigin string

	// Auth configs
	JWTSecret                 string
	JWTExpirationMilliseconds int

	// Engine configs
	ConnectionTimeoutSeconds int
	MaxConnections           int
	IdleTimeoutSeconds       int
	CleanupIntervalSeconds   int
	EnablePushdown           bool
	DefaultRowEstimate       int
	BatchSize                int

	// Schema configs
	EnableSchemaCache     bool
	SchemaCacheTTLSeconds int
	SchemaSampleSize      int
	MaxFieldMappings      int
	SchemaNestedDepth     int

	CatalogPath string

	// Redis configs
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
}

var Env Environment

// LoadEnv loads environment variables from .env file if present
// and validates them
func LoadEnv() error {
	// Check if running in Docker
	Env.IsDocker = os.Getenv("IS_DOCKER") == "true"

	// Load .env file only if not running in Docker
	if !Env.IsDocker {
		if err := godotenv.Load(); err != nil {
			fmt.Printf("Warning: .env file not found: %v\n", err)
		}
	}

	// Server configs
	Env.Port = getEnvWithDefault("PORT", "3000")
	Env.Environment = getEnvWithDefault("ENVIRONMENT", "DEVELOPMENT")
	Env.CorsAllowedOrigin = getEnvWithDefault("CORS_ALLOWED_ORIGIN", "*")

	// Auth configs, an empty secret leaves the API open
	Env.JWTSecret = getEnvWithDefault("JWT_SECRET", "")
	Env.JWTExpirationMilliseconds = getIntEnvWithDefault("JWT_EXPIRATION_MILLISECONDS", 1000*60*60*24) // 1 day default

	// Engine configs
	Env.ConnectionTimeoutSeconds = getIntEnvWithDefault("MONGOSCAN_CONNECTION_TIMEOUT", constants.DefaultConnectionTimeoutSeconds)
	Env.MaxConnections = getIntEnvWithDefault("MONGOSCAN_MAX_CONNECTIONS", constants.DefaultMaxConnections)
	Env.IdleTimeoutSeconds = getIntEnvWithDefault("MONGOSCAN_IDLE_TIMEOUT", constants.DefaultIdleTimeoutSeconds)
	Env.CleanupIntervalSeconds = getIntEnvWithDefault("MONGOSCAN_CLEANUP_INTERVAL", constants.DefaultCleanupIntervalSeconds)
	Env.EnablePushdown = getBoolEnvWithDefault("MONGOSCAN_ENABLE_PUSHDOWN", true)
	Env.DefaultRowEstimate = getIntEnvWithDefault("MONGOSCAN_DEFAULT_ROW_ESTIMATE", scan.DefaultRowEstimate)
	Env.BatchSize = getIntEnvWithDefault("MONGOSCAN_BATCH_SIZE", 0)

	// Schema configs
	Env.EnableSchemaCache = getBoolEnvWithDefault("MONGOSCAN_ENABLE_SCHEMA_CACHE", true)
	Env.SchemaCacheTTLSeconds = getIntEnvWithDefault("MONGOSCAN_SCHEMA_CACHE_TTL", constants.DefaultSchemaCacheTTLSeconds)
	Env.SchemaSampleSize = getIntEnvWithDefault("MONGOSCAN_SCHEMA_SAMPLE_SIZE", constants.DefaultSchemaSampleSize)
	Env.MaxFieldMappings = getIntEnvWithDefault("MONGOSCAN_MAX_FIELD_MAPPINGS", constants.DefaultMaxFieldMappings)
	Env.SchemaNestedDepth = getIntEnvWithDefault("MONGOSCAN_SCHEMA_NESTED_DEPTH", 0)

	Env.CatalogPath = getEnvWithDefault("MONGOSCAN_CATALOG_PATH", "catalog.yaml")

	// Redis configs
	Env.RedisEnabled = getBoolEnvWithDefault("MONGOSCAN_REDIS_ENABLED", false)
	Env.RedisHost = getEnvWithDefault("MONGOSCAN_REDIS_HOST", "localhost")
	Env.RedisPort = getEnvWithDefault("MONGOSCAN_REDIS_PORT", "6379")
	Env.RedisPassword = getEnvWithDefault("MONGOSCAN_REDIS_PASSWORD", "")

	return validateConfig()
}

// PoolOptions converts the environment into connection pool options.
func (e Environment) PoolOptions() dbmanager.PoolOptions {
	return dbmanager.PoolOptions{
		MaxConnections:  e.MaxConnections,
		IdleTimeout:     time.Duration(e.IdleTimeoutSeconds) * time.Second,
		ConnectTimeout:  time.Duration(e.ConnectionTimeoutSeconds) * time.Second,
		CleanupInterval: time.Duration(e.CleanupIntervalSeconds) * time.Second,
	}
}

// SchemaOptions converts the environment into schema registry options.
func (e Environment) SchemaOptions() schema.Options {
	opts := schema.DefaultOptions()
	opts.SampleSize = e.SchemaSampleSize
	opts.TTL = time.Duration(e.SchemaCacheTTLSeconds) * time.Second
	opts.CacheEnabled = e.EnableSchemaCache
	opts.MaxFieldMappings = e.MaxFieldMappings
	opts.NestedDepth = e.SchemaNestedDepth
	return opts
}

// EngineOptions converts the environment into scan engine options.
func (e Environment) EngineOptions() scan.Options {
	opts := scan.DefaultOptions()
	opts.PushdownEnabled = e.EnablePushdown
	opts.DefaultRowEstimate = int64(e.DefaultRowEstimate)
	opts.BatchSize = int32(e.BatchSize)
	return opts
}

// Helper functions to get environment variables with defaults
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(strValue)
	if err != nil {
		fmt.Printf("Warning: Invalid value for %s, using default: %d\n", key, defaultValue)
		return defaultValue
	}
	return value
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	strValue := strings.ToLower(os.Getenv(key))
	switch strValue {
	case "":
		return defaultValue
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	}
	fmt.Printf("Warning: Invalid value for %s, using default: %t\n", key, defaultValue)
	return defaultValue
}

func validateConfig() error {
	if err := checkRange("MONGOSCAN_CONNECTION_TIMEOUT", Env.ConnectionTimeoutSeconds, 1, 300); err != nil {
		return err
	}
	if err := checkRange("MONGOSCAN_MAX_CONNECTIONS", Env.MaxConnections, 1, 100); err != nil {
		return err
	}
	if Env.IdleTimeoutSeconds < 1 {
		return fmt.Errorf("MONGOSCAN_IDLE_TIMEOUT must be positive, got: %d", Env.IdleTimeoutSeconds)
	}
	if Env.CleanupIntervalSeconds < 0 {
		return fmt.Errorf("MONGOSCAN_CLEANUP_INTERVAL must not be negative, got: %d", Env.CleanupIntervalSeconds)
	}
	if err := checkRange("MONGOSCAN_SCHEMA_CACHE_TTL", Env.SchemaCacheTTLSeconds, 60, 3600); err != nil {
		return err
	}
	if err := checkRange("MONGOSCAN_SCHEMA_SAMPLE_SIZE", Env.SchemaSampleSize, 1, 10000); err != nil {
		return err
	}
	if Env.MaxFieldMappings < 1 {
		return fmt.Errorf("MONGOSCAN_MAX_FIELD_MAPPINGS must be positive, got: %d", Env.MaxFieldMappings)
	}
	if Env.SchemaNestedDepth < 0 {
		return fmt.Errorf("MONGOSCAN_SCHEMA_NESTED_DEPTH must not be negative, got: %d", Env.SchemaNestedDepth)
	}
	if Env.DefaultRowEstimate < 1 {
		return fmt.Errorf("MONGOSCAN_DEFAULT_ROW_ESTIMATE must be positive, got: %d", Env.DefaultRowEstimate)
	}
	if Env.BatchSize < 0 {
		return fmt.Errorf("MONGOSCAN_BATCH_SIZE must not be negative, got: %d", Env.BatchSize)
	}

	// Validate JWT expiration
	if Env.JWTSecret != "" && Env.JWTExpirationMilliseconds <= 0 {
		return fmt.Errorf("JWT_EXPIRATION_MILLISECONDS must be positive, got: %d", Env.JWTExpirationMilliseconds)
	}

	return nil
}

func checkRange(key string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, value)
	}
	return nil
}
