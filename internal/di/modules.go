package di

import (
	"context"
	"log"
	"time"

	"go.uber.org/dig"

	"mongoscan/config"
	"mongoscan/internal/apis/handlers"
	"mongoscan/internal/catalog"
	"mongoscan/internal/services"
	"mongoscan/internal/utils"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/redis"
	"mongoscan/pkg/scan"
	"mongoscan/pkg/schema"
)

var DiContainer *dig.Container

// Initialize wires the engine from config.Env. It dials nothing except Redis
// when the persistent schema tier is enabled.
func Initialize() {
	DiContainer = dig.New()

	// Provide DB Manager
	if err := DiContainer.Provide(func() *dbmanager.Manager {
		return dbmanager.NewManager(dbmanager.NewMongoDBDriver(), config.Env.PoolOptions())
	}); err != nil {
		log.Fatalf("Failed to provide DB manager: %v", err)
	}

	// Persistent schema tier, optional
	if err := DiContainer.Provide(func() schema.Store {
		if !config.Env.RedisEnabled {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		redisClient, err := redis.RedisClient(ctx, redis.Options{
			Host:     config.Env.RedisHost,
			Port:     config.Env.RedisPort,
			Password: config.Env.RedisPassword,
		})
		if err != nil {
			log.Printf("Warning: Redis unavailable, schema cache stays in memory: %v", err)
			return nil
		}
		return schema.NewRedisStore(redis.NewRedisRepositories(redisClient))
	}); err != nil {
		log.Fatalf("Failed to provide schema store: %v", err)
	}

	if err := DiContainer.Provide(func(manager *dbmanager.Manager, store schema.Store) *schema.Registries {
		return schema.NewRegistries(manager, store, config.Env.SchemaOptions())
	}); err != nil {
		log.Fatalf("Failed to provide schema registries: %v", err)
	}

	if err := DiContainer.Provide(func(manager *dbmanager.Manager, registries *schema.Registries) *scan.Engine {
		return scan.NewEngine(manager, registries, config.Env.EngineOptions())
	}); err != nil {
		log.Fatalf("Failed to provide scan engine: %v", err)
	}

	if err := DiContainer.Provide(func() *catalog.Catalog {
		cat, err := catalog.Load(config.Env.CatalogPath)
		if err != nil {
			log.Fatalf("Failed to load table catalog: %v", err)
		}
		return cat
	}); err != nil {
		log.Fatalf("Failed to provide table catalog: %v", err)
	}

	if err := DiContainer.Provide(func() utils.JWTService {
		return utils.NewJWTService(
			config.Env.JWTSecret,
			time.Millisecond*time.Duration(config.Env.JWTExpirationMilliseconds),
		)
	}); err != nil {
		log.Fatalf("Failed to provide JWT service: %v", err)
	}

	// Provide services
	if err := DiContainer.Provide(func(engine *scan.Engine, cat *catalog.Catalog) services.TableService {
		return services.NewTableService(engine, cat)
	}); err != nil {
		log.Fatalf("Failed to provide table service: %v", err)
	}

	// Provide handlers
	if err := DiContainer.Provide(func(tableService services.TableService) *handlers.TableHandler {
		return handlers.NewTableHandler(tableService)
	}); err != nil {
		log.Fatalf("Failed to provide table handler: %v", err)
	}
}

// GetTableHandler retrieves the TableHandler from the DI container
func GetTableHandler() (*handlers.TableHandler, error) {
	var handler *handlers.TableHandler
	err := DiContainer.Invoke(func(h *handlers.TableHandler) {
		handler = h
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

// GetTableService retrieves the TableService from the DI container
func GetTableService() (services.TableService, error) {
	var service services.TableService
	err := DiContainer.Invoke(func(s services.TableService) {
		service = s
	})
	if err != nil {
		return nil, err
	}
	return service, nil
}

// GetJWTService retrieves the JWTService from the DI container
func GetJWTService() (utils.JWTService, error) {
	var service utils.JWTService
	err := DiContainer.Invoke(func(s utils.JWTService) {
		service = s
	})
	if err != nil {
		return nil, err
	}
	return service, nil
}

// Shutdown closes every pool of the DB manager, if one was built.
func Shutdown() {
	if DiContainer == nil {
		return
	}
	if err := DiContainer.Invoke(func(manager *dbmanager.Manager) {
		if err := manager.Stop(); err != nil {
			log.Printf("Warning: Failed to stop DB manager: %v", err)
		}
	}); err != nil {
		log.Printf("Warning: DB manager unavailable at shutdown: %v", err)
	}
}
