package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`
		CREATE TABLE IF NOT EXISTS campaigns (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			reference VARCHAR(36) NOT NULL UNIQUE,
			subject VARCHAR(500) NOT NULL,
			sender_email VARCHAR(320) NOT NULL,
			sender_name VARCHAR(200) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			total_recipients INT NOT NULL DEFAULT 0,
			total_sent INT NOT NULL DEFAULT 0,
			total_failed INT NOT NULL DEFAULT 0,
			duplicates_removed INT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_campaigns_status (status),
			INDEX idx_campaigns_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		`
		CREATE TABLE IF NOT EXISTS campaign_messages (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			campaign_id BIGINT NOT NULL,
			to_email VARCHAR(320) NOT NULL,
			to_name VARCHAR(200) NOT NULL DEFAULT '',
			subject VARCHAR(500) NOT NULL,
			body TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			message_id VARCHAR(200),
			last_error TEXT,
			sent_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_messages_campaign (campaign_id),
			INDEX idx_messages_status (status),
			INDEX idx_messages_sent_at (sent_at),
			CONSTRAINT fk_messages_campaign FOREIGN KEY (campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM campaigns")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d campaigns, skipping seed", count)
		return nil
	}

	result, err := db.Exec(
		"INSERT INTO campaigns (reference, subject, sender_email, sender_name, status, total_recipients) VALUES (?, ?, ?, ?, 'draft', ?)",
		uuid.NewString(), "Welcome aboard", "team@example.com", "The Team", 5,
	)
	if err != nil {
		return fmt.Errorf("failed to seed campaign: %w", err)
	}

	campaignID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get seeded campaign id: %w", err)
	}

	testMessages := []struct {
		email string
		name  string
	}{
		{"alice@example.com", "Alice"},
		{"bob@example.com", "Bob"},
		{"carol@example.com", "Carol"},
		{"dave@example.com", "Dave"},
		{"erin@example.com", "Erin"},
	}

	for _, msg := range testMessages {
		_, err := db.Exec(
			"INSERT INTO campaign_messages (campaign_id, to_email, to_name, subject, body, status) VALUES (?, ?, ?, ?, ?, 'pending')",
			campaignID, msg.email, msg.name, "Welcome aboard",
			fmt.Sprintf("Hi %s,\n\nWelcome to the platform!", msg.name),
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded 1 campaign with %d messages", len(testMessages))
	return nil
}
