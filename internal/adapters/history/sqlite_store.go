package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// SQLiteStore is a SQLite implementation of the core.HistoryStore interface.
// Entries are append-only; nothing ever updates or deletes them, so history
// survives later rule edits and deletions.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens a SQLite-backed history store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_history (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			subject TEXT,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			target_folder_id TEXT NOT NULL,
			target_folder_name TEXT,
			confidence REAL NOT NULL,
			classified_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	// Index on classified_at for the recency queries
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_classified_at ON classification_history(classified_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Append stores a new history entry
func (s *SQLiteStore) Append(ctx context.Context, entry *core.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classification_history
			(id, message_id, subject, rule_id, rule_name, target_folder_id,
			 target_folder_name, confidence, classified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.MessageID, entry.Subject, entry.RuleID, entry.RuleName,
		entry.TargetFolderID, entry.TargetFolderName, entry.Confidence,
		entry.ClassifiedAt.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, most recent first
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]core.HistoryEntry, error) {
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
		if entry.ClassifiedAt, err = time.Parse(time.RFC3339Nano, classifiedAt); err != nil {
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
func (s *SQLiteStore) Stats(ctx context.Context) (*core.Stats, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
