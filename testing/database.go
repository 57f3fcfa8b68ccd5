// Package testing provides test utilities and database setup for the library card system
package testing

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq" // PostgreSQL driver for database/sql
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/virtuallibrarycard/vlc/models"
)

// TestDBConfig holds configuration for test database connections
type TestDBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// GetTestDBConfig loads test database configuration from environment variables
func GetTestDBConfig() *TestDBConfig {
	return &TestDBConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  getEnv("TEST_DB_SSL_MODE", "disable"),
	}
}

// TestDB represents a test database instance. By default tests run against an
// in-memory sqlite database; set TEST_DB_HOST to run the same suite against a
// throwaway PostgreSQL database instead.
type TestDB struct {
	DB       *gorm.DB
	Name     string
	postgres bool
	config   *TestDBConfig
}

// SetupTestDB creates a migrated test database
func SetupTestDB() (*TestDB, error) {
	if os.Getenv("TEST_DB_HOST") != "" {
		return setupPostgresTestDB()
	}
	return setupSQLiteTestDB()
}

func setupSQLiteTestDB() (*TestDB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	testDB := &TestDB{DB: db, Name: ":memory:"}
	if err := testDB.migrate(); err != nil {
		return nil, err
	}
	return testDB, nil
}

func setupPostgresTestDB() (*TestDB, error) {
	config := GetTestDBConfig()

	dbName := fmt.Sprintf("vlc_test_%d_%d", time.Now().Unix(), rand.Intn(10000))

	// Connect to the server without a specific database to create the
	// throwaway one.
	adminDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(adminDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)).Error; err != nil {
		return nil, fmt.Errorf("failed to create test database %s: %w", dbName, err)
	}

	sqlDB, _ := adminDB.DB()
	sqlDB.Close()

	testDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, dbName, config.SSLMode)

	db, err := gorm.Open(postgres.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	testDB := &TestDB{DB: db, Name: dbName, postgres: true, config: config}
	if err := testDB.migrate(); err != nil {
		testDB.Cleanup()
		return nil, err
	}
	return testDB, nil
}

func (t *TestDB) migrate() error {
	if err := t.DB.AutoMigrate(
		&models.Place{},
		&models.Library{},
		&models.LibraryPlace{},
		&models.Patron{},
		&models.LibraryCard{},
		&models.SequenceCounter{},
		&models.BulkUploadJob{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate test schema: %w", err)
	}
	return nil
}

// Cleanup closes the connection and, for PostgreSQL, drops the test database
func (t *TestDB) Cleanup() {
	sqlDB, err := t.DB.DB()
	if err == nil {
		sqlDB.Close()
	}

	if !t.postgres {
		return
	}

	adminDSN := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		t.config.Host, t.config.Port, t.config.User, t.config.Password, t.config.SSLMode)

	adminDB, err := gorm.Open(postgres.Open(adminDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return
	}
	adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", t.Name))
	if sqlDB, err := adminDB.DB(); err == nil {
		sqlDB.Close()
	}
}

// TestWithDB runs fn against a fresh migrated database and cleans up after
func TestWithDB(fn func(*TestDB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return err
	}
	defer testDB.Cleanup()
	return fn(testDB)
}

// Truncate empties the given tables between test cases
func (t *TestDB) Truncate(tables ...string) error {
	for _, table := range tables {
		if err := t.DB.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
