package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-sorter/internal/core"
)

// SQLiteStore is a SQLite implementation of the core.RuleStore interface.
// Rule CRUD is owned by the management frontend; this service only reads.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens a SQLite-backed rule store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS classification_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			target_folder_id TEXT NOT NULL,
			target_folder_name TEXT,
			keywords TEXT,
			ai_prompt TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rules table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// ListActive returns active rules, optionally restricted to the given ids.
// Unknown ids yield a ValidationError.
func (s *SQLiteStore) ListActive(ctx context.Context, ids []string) ([]core.Rule, error) {
	query := `
		SELECT id, name, description, target_folder_id, target_folder_name,
		       keywords, ai_prompt, is_active, created_at
		FROM classification_rules
	`
	var args []interface{}
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		query += " WHERE id IN (" + placeholders + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	var active []core.Rule
	for rows.Next() {
		var rule core.Rule
		// The frontend owns this table and leaves optional columns NULL
		var description, folderName, aiPrompt, keywordsJSON sql.NullString
		var createdAt string
		if err := rows.Scan(&rule.ID, &rule.Name, &description,
			&rule.TargetFolderID, &folderName,
			&keywordsJSON, &aiPrompt, &rule.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Description = description.String
		rule.TargetFolderName = folderName.String
		rule.AIPrompt = aiPrompt.String

		if keywordsJSON.Valid && keywordsJSON.String != "" {
			if err := json.Unmarshal([]byte(keywordsJSON.String), &rule.Keywords); err != nil {
				s.logger.Warn("Malformed keywords column",
					zap.String("rule_id", rule.ID),
					zap.Error(err))
			}
		}
		if rule.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for rule %s: %w", rule.ID, err)
		}

		found[rule.ID] = true
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	for _, id := range ids {
		if !found[id] {
			return nil, core.NewValidationError("unknown rule id: %s", id)
		}
	}

	return active, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
