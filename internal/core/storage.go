package core

import (
	"fmt"
	"os"

	"homeworkcore/internal/infra/persistence/memory"
	"homeworkcore/internal/infra/persistence/postgres"
	"homeworkcore/internal/infra/persistence/sqlite"
	"homeworkcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects a document store backend explicitly. Zero-valued
// fields fall back to the backend defaults.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenDocumentStoreConfig opens the backend named by cfg.
func OpenDocumentStoreConfig(cfg StorageConfig) (domain.DocumentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenDocumentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	HOMEWORKCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	HOMEWORKCORE_SQLITE_PATH: path to sqlite file (default ./homeworkcore.db)
//	HOMEWORKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenDocumentStore() (domain.DocumentStore, error) {
	return OpenDocumentStoreConfig(StorageConfig{
		Driver:      StorageDriver(os.Getenv("HOMEWORKCORE_STORAGE_DRIVER")),
		SQLitePath:  os.Getenv("HOMEWORKCORE_SQLITE_PATH"),
		PostgresDSN: os.Getenv("HOMEWORKCORE_POSTGRES_DSN"),
	})
}
