package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQLConfig holds MySQL connection configuration
type MySQLConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// MySQLDatabase represents a MySQL database connection
type MySQLDatabase struct {
	db     *sql.DB
	config MySQLConfig
	logger *logrus.Logger
}

// NewMySQLDatabase creates a new MySQL database connection
func NewMySQLDatabase(config MySQLConfig, logger *logrus.Logger) (*MySQLDatabase, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}

	mysql := &MySQLDatabase{
		db:     db,
		config: config,
		logger: logger,
	}

	logger.WithFields(logrus.Fields{
		"host":     config.Host,
		"port":     config.Port,
		"database": config.Database,
	}).Info("Connected to MySQL database")

	return mysql, nil
}

// Close closes the database connection
func (m *MySQLDatabase) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Health checks database health
func (m *MySQLDatabase) Health() error {
	ctx, cancel := m.getContext()
	defer cancel()

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Migrate runs database migrations
func (m *MySQLDatabase) Migrate() error {
	migrations := []string{
		createCallerProfilesTable,
		createCallerFactsTable,
		createLeadsTable,
		createCallsTable,
		createIntakeEventsTable,
	}

	for i, migration := range migrations {
		m.logger.WithField("migration", i+1).Debug("Running migration")

		if _, err := m.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	m.logger.Info("Database migrations completed successfully")
	return nil
}

// getContext returns a context with the configured query timeout
func (m *MySQLDatabase) getContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.config.QueryTimeout)
}

// Database schema definitions

const createCallerProfilesTable = `
CREATE TABLE IF NOT EXISTS caller_profiles (
    id VARCHAR(36) PRIMARY KEY,
    tenant_id VARCHAR(255) NOT NULL,
    phone_number VARCHAR(32) NOT NULL,
    caller_type ENUM('new_lead', 'existing_client', 'professional') NOT NULL DEFAULT 'new_lead',
    total_calls INT NOT NULL DEFAULT 0,
    first_call_date TIMESTAMP NOT NULL,
    last_call_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_tenant_phone (tenant_id, phone_number),
    INDEX idx_caller_type (caller_type),
    INDEX idx_last_call_date (last_call_date)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createCallerFactsTable = `
CREATE TABLE IF NOT EXISTS caller_facts (
    id VARCHAR(36) PRIMARY KEY,
    caller_id VARCHAR(36) NOT NULL,
    field_name VARCHAR(100) NOT NULL,
    field_value TEXT NOT NULL,
    source_call_id VARCHAR(255) NOT NULL,
    confidence DECIMAL(3,2) NOT NULL DEFAULT 1.00,
    recorded_at TIMESTAMP NOT NULL,
    valid_until TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (caller_id) REFERENCES caller_profiles(id) ON DELETE CASCADE,
    INDEX idx_caller_field (caller_id, field_name),
    INDEX idx_valid_until (valid_until),
    INDEX idx_source_call_id (source_call_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createLeadsTable = `
CREATE TABLE IF NOT EXISTS leads (
    id VARCHAR(36) PRIMARY KEY,
    caller_id VARCHAR(36) NOT NULL,
    tenant_id VARCHAR(255) NOT NULL,
    phone_number VARCHAR(32) NOT NULL,
    category VARCHAR(50) NOT NULL,
    status ENUM('Pending', 'InProgress', 'Approved', 'Denied') NOT NULL DEFAULT 'Pending',
    conversion_detected BOOLEAN NOT NULL DEFAULT FALSE,
    conversion_call_id VARCHAR(255) NULL,
    first_call_date TIMESTAMP NOT NULL,
    last_call_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_tenant_phone (tenant_id, phone_number),
    INDEX idx_caller_id (caller_id),
    INDEX idx_status (status),
    INDEX idx_conversion (conversion_detected)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createCallsTable = `
CREATE TABLE IF NOT EXISTS calls (
    id VARCHAR(36) PRIMARY KEY,
    call_id VARCHAR(255) NOT NULL,
    tenant_id VARCHAR(255) NOT NULL,
    phone_number VARCHAR(32) NOT NULL DEFAULT '',
    category VARCHAR(50) NOT NULL DEFAULT '',
    start_time TIMESTAMP NOT NULL,
    transcript_turns INT NOT NULL DEFAULT 0,
    claim_number VARCHAR(64) NULL,
    extraction_status ENUM('completed', 'partial', 'skipped') NOT NULL DEFAULT 'completed',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_call_id (call_id),
    INDEX idx_tenant_phone (tenant_id, phone_number),
    INDEX idx_start_time (start_time)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const createIntakeEventsTable = `
CREATE TABLE IF NOT EXISTS intake_events (
    id VARCHAR(36) PRIMARY KEY,
    call_id VARCHAR(255) NULL,
    caller_id VARCHAR(36) NULL,
    type VARCHAR(100) NOT NULL,
    level ENUM('info', 'warning', 'error') NOT NULL DEFAULT 'info',
    message TEXT NOT NULL,
    metadata JSON NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_call_id (call_id),
    INDEX idx_caller_id (caller_id),
    INDEX idx_type (type),
    INDEX idx_created_at (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
