package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// MySQLStore is a MySQL implementation of the core.HistoryStore interface
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore opens a MySQL-backed history store
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_history (
			id VARCHAR(36) PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL,
			subject TEXT,
			rule_id VARCHAR(36) NOT NULL,
			rule_name VARCHAR(255) NOT NULL,
			target_folder_id VARCHAR(255) NOT NULL,
			target_folder_name VARCHAR(255),
			confidence DOUBLE NOT NULL,
			classified_at DATETIME(6) NOT NULL,
			INDEX idx_classified_at (classified_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// Append stores a new history entry
func (s *MySQLStore) Append(ctx context.Context, entry *core.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_history
			(id, message_id, subject, rule_id, rule_name, target_folder_id,
			 target_folder_name, confidence, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.MessageID, entry.Subject, entry.RuleID, entry.RuleName,
		entry.TargetFolderID, entry.TargetFolderName, entry.Confidence,
		entry.ClassifiedAt.UTC().Format("2006-01-02 15:04:05.000000"))

	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recent first
func (s *MySQLStore) Recent(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, subject, rule_id, rule_name, target_folder_id,
		       target_folder_name, confidence, classified_at
		FROM classification_history
		ORDER BY classified_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var entry core.HistoryEntry
		var classifiedAt string
		if err := rows.Scan(&entry.ID, &entry.MessageID, &entry.Subject,
			&entry.RuleID, &entry.RuleName, &entry.TargetFolderID,
			&entry.TargetFolderName, &entry.Confidence, &classifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if entry.ClassifiedAt, err = time.Parse("2006-01-02 15:04:05.000000", classifiedAt); err != nil {
			return nil, fmt.Errorf("failed to parse classified_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return entries, nil
}

// Stats derives aggregate counts from the stored entries
func (s *MySQLStore) Stats(ctx context.Context) (*core.Stats, error) {
	stats := &core.Stats{}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM classification_history
	`).Scan(&stats.TotalClassified); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	ruleRows, err := s.db.QueryContext(ctx, `
		SELECT rule_name, COUNT(*) AS n
		FROM classification_history
		GROUP BY rule_name
		ORDER BY n DESC, rule_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by rule: %w", err)
	}
	defer ruleRows.Close()
	for ruleRows.Next() {
		var rc core.RuleCount
		if err := ruleRows.Scan(&rc.Rule, &rc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan rule count: %w", err)
		}
		stats.ByRule = append(stats.ByRule, rc)
	}
	if err := ruleRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule counts: %w", err)
	}

	folderRows, err := s.db.QueryContext(ctx, `
		SELECT target_folder_name, COUNT(*) AS n
		FROM classification_history
		GROUP BY target_folder_name
		ORDER BY n DESC, target_folder_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by folder: %w", err)
	}
	defer folderRows.Close()
	for folderRows.Next() {
		var fc core.FolderCount
		if err := folderRows.Scan(&fc.Folder, &fc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan folder count: %w", err)
		}
		stats.ByFolder = append(stats.ByFolder, fc)
	}
	if err := folderRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folder counts: %w", err)
	}

	return stats, nil
}

// Close closes the database connection
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
