// Package auditlog persists every AI request/response cycle to sqlite and
// supports querying, export, retention cleanup, and privacy scrubbing.
package auditlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/001_audit_schema.sql
var auditSchema string

var (
	ErrLogNotFound     = errors.New("interaction log not found")
	ErrLoggingDisabled = errors.New("interaction logging is disabled")
)

// Store is the sqlite-backed interaction log store.
type Store struct {
	path   string
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the audit database at path and applies pending
// migrations. The logging config row is created with defaults on first open.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{path: path, db: db, logger: logger.With("component", "auditlog")}
	if err := store.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	createMigrationsTable := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := s.db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{1, extractUpStatements(auditSchema)},
	}

	for _, migration := range migrations {
		if applied[migration.version] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		for _, stmt := range migration.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to execute migration %d: %w", migration.version, err)
			}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.version, err)
		}
	}
	return nil
}

// extractUpStatements pulls the UP statements out of a goose-format
// migration file, one per StatementBegin/StatementEnd pair.
func extractUpStatements(content string) []string {
	var statements []string
	var current []string
	inUp := false
	inStatement := false

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.Contains(line, "-- +goose Up"):
			inUp = true
		case strings.Contains(line, "-- +goose Down"):
			return statements
		case strings.Contains(line, "-- +goose StatementBegin"):
			inStatement = true
			current = current[:0]
		case strings.Contains(line, "-- +goose StatementEnd"):
			inStatement = false
			if inUp && len(current) > 0 {
				statements = append(statements, strings.Join(current, "\n"))
			}
		default:
			if inUp && inStatement {
				current = append(current, line)
			}
		}
	}
	return statements
}

// LogInteraction persists one interaction and its tool execution children in
// a single transaction. The record is classified before write when the
// caller left DataClassification empty. Returns ErrLoggingDisabled when the
// config row has logging off.
func (s *Store) LogInteraction(ctx context.Context, log *InteractionLog) error {
	config, err := s.LoadConfig(ctx)
	if err != nil {
		return err
	}
	if !config.Enabled {
		return ErrLoggingDisabled
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Actions == "" {
		log.Actions = "[]"
	}
	if log.Suggestions == "" {
		log.Suggestions = "[]"
	}
	if log.DataClassification == "" {
		log.DataClassification = ClassifyContent(log.UserMessage + "\n" + log.AIResponse)
	}
	log.ContainsSensitiveData = log.ContainsSensitiveData || log.DataClassification == ClassConfidential

	applyLevel(log, config)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO interaction_logs (
			id, session_id, model_type, model_info, user_message, system_prompt,
			context_snapshot, ai_response, actions, suggestions, reasoning,
			response_time_ms, token_count, error, error_code,
			contains_sensitive_data, data_classification, redacted, anonymized, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.SessionID, log.ModelType, log.ModelInfo, log.UserMessage,
		log.SystemPrompt, log.ContextSnapshot, log.AIResponse, log.Actions,
		log.Suggestions, log.Reasoning, log.ResponseTimeMs, log.TokenCount,
		log.Error, log.ErrorCode, log.ContainsSensitiveData,
		log.DataClassification, log.Redacted, log.Anonymized, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interaction log: %w", err)
	}

	if config.IncludeToolExecutions {
		for i := range log.ToolExecutions {
			te := &log.ToolExecutions[i]
			if te.ID == "" {
				te.ID = uuid.New().String()
			}
			te.InteractionID = log.ID
			if te.CreatedAt.IsZero() {
				te.CreatedAt = log.CreatedAt
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO tool_execution_logs (
					id, interaction_id, tool_name, arguments, output,
					success, error, error_code, execution_time_ms, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				te.ID, te.InteractionID, te.ToolName, te.Arguments, te.Output,
				te.Success, te.Error, te.ErrorCode, te.ExecutionTimeMs, te.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert tool execution log: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if config.AutoCleanup {
		if _, err := s.CleanupOldLogs(ctx); err != nil {
			s.logger.Warn("auto cleanup failed", "error", err)
		}
	}
	return nil
}

// applyLevel strips fields the configured log level excludes.
func applyLevel(log *InteractionLog, config LoggingConfig) {
	if !config.IncludeSystemPrompts {
		log.SystemPrompt = ""
	}
	if !config.IncludePerformanceMetrics {
		log.ResponseTimeMs = 0
		log.TokenCount = 0
	}
	switch config.LogLevel {
	case LevelMinimal:
		log.ContextSnapshot = ""
		log.Reasoning = ""
		log.Suggestions = "[]"
	case LevelDetailed, LevelStandard:
	}
}

// GetInteractionLog loads one interaction with its tool executions.
func (s *Store) GetInteractionLog(ctx context.Context, id string) (*InteractionLog, error) {
	var log InteractionLog
	err := sqlscan.Get(ctx, s.db, &log,
		`SELECT id, session_id, model_type, model_info, user_message, system_prompt,
			context_snapshot, ai_response, actions, suggestions, reasoning,
			response_time_ms, token_count, error, error_code,
			contains_sensitive_data, data_classification, redacted, anonymized, created_at
		FROM interaction_logs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}

	err = sqlscan.Select(ctx, s.db, &log.ToolExecutions,
		`SELECT id, interaction_id, tool_name, arguments, output, success,
			error, error_code, execution_time_ms, created_at
		FROM tool_execution_logs WHERE interaction_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// QueryInteractionLogs returns interactions matching the filter, newest
// first. Tool executions are loaded per row.
func (s *Store) QueryInteractionLogs(ctx context.Context, filter Filter) ([]InteractionLog, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, session_id, model_type, model_info, user_message, system_prompt,
		context_snapshot, ai_response, actions, suggestions, reasoning,
		response_time_ms, token_count, error, error_code,
		contains_sensitive_data, data_classification, redacted, anonymized, created_at
	FROM interaction_logs WHERE 1=1`)
	var args []any

	if !filter.From.IsZero() {
		query.WriteString(" AND created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query.WriteString(" AND created_at <= ?")
		args = append(args, filter.To)
	}
	if filter.SessionID != "" {
		query.WriteString(" AND session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ModelType != "" {
		query.WriteString(" AND model_type = ?")
		args = append(args, filter.ModelType)
	}
	if filter.HasErrors != nil {
		if *filter.HasErrors {
			query.WriteString(" AND error != ''")
		} else {
			query.WriteString(" AND error = ''")
		}
	}
	if filter.WithToolCalls != nil {
		if *filter.WithToolCalls {
			query.WriteString(" AND EXISTS (SELECT 1 FROM tool_execution_logs t WHERE t.interaction_id = interaction_logs.id)")
		} else {
			query.WriteString(" AND NOT EXISTS (SELECT 1 FROM tool_execution_logs t WHERE t.interaction_id = interaction_logs.id)")
		}
	}
	if filter.Search != "" {
		query.WriteString(" AND (user_message LIKE ? OR ai_response LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	query.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := int64(filter.Limit)
		if limit <= 0 {
			limit = -1 // no limit, offset still applies
		}
		query.WriteString(" LIMIT ?")
		args = append(args, limit)
		if filter.Offset > 0 {
			query.WriteString(" OFFSET ?")
			args = append(args, filter.Offset)
		}
	}

	var logs []InteractionLog
	if err := sqlscan.Select(ctx, s.db, &logs, query.String(), args...); err != nil {
		return nil, err
	}
	for i := range logs {
		err := sqlscan.Select(ctx, s.db, &logs[i].ToolExecutions,
			`SELECT id, interaction_id, tool_name, arguments, output, success,
				error, error_code, execution_time_ms, created_at
			FROM tool_execution_logs WHERE interaction_id = ? ORDER BY created_at, id`, logs[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return logs, nil
}

// UpdateInteractionLog rewrites the mutable correction fields of an existing
// record. Identity and timing fields never change.
func (s *Store) UpdateInteractionLog(ctx context.Context, log *InteractionLog) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interaction_logs SET
			user_message = ?, system_prompt = ?, context_snapshot = ?,
			ai_response = ?, actions = ?, suggestions = ?, reasoning = ?,
			error = ?, contains_sensitive_data = ?, data_classification = ?,
			redacted = ?, anonymized = ?, session_id = ?
		WHERE id = ?`,
		log.UserMessage, log.SystemPrompt, log.ContextSnapshot, log.AIResponse,
		log.Actions, log.Suggestions, log.Reasoning, log.Error,
		log.ContainsSensitiveData, log.DataClassification, log.Redacted,
		log.Anonymized, log.SessionID, log.ID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLogNotFound
	}
	return nil
}

// DeleteInteractionLog removes one interaction and its tool executions.
func (s *Store) DeleteInteractionLog(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM interaction_logs WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLogNotFound
	}
	return nil
}

// ClearAllLogs deletes every interaction and tool execution record.
func (s *Store) ClearAllLogs(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM tool_execution_logs"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM interaction_logs"); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanupOldLogs removes interactions older than the configured retention
// window and, when a max count is set, trims the oldest rows beyond it.
// Returns the number of interaction rows removed.
func (s *Store) CleanupOldLogs(ctx context.Context) (int64, error) {
	config, err := s.LoadConfig(ctx)
	if err != nil {
		return 0, err
	}

	var removed int64
	if config.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -config.RetentionDays)
		result, err := s.db.ExecContext(ctx,
			"DELETE FROM interaction_logs WHERE created_at < ?", cutoff)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += n
	}

	if config.MaxLogCount > 0 {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM interaction_logs WHERE id IN (
				SELECT id FROM interaction_logs
				ORDER BY created_at DESC, id DESC
				LIMIT -1 OFFSET ?
			)`, config.MaxLogCount)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += n
	}

	if removed > 0 {
		s.logger.Info("cleaned up old interaction logs", "removed", removed)
	}
	return removed, nil
}

// StorageStats reports totals, bounds, and averages across the stored logs.
func (s *Store) StorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{PerModelCounts: map[string]int64{}}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(LENGTH(user_message) + LENGTH(ai_response) + LENGTH(context_snapshot) + LENGTH(system_prompt)), 0),
			COALESCE(AVG(response_time_ms), 0)
		FROM interaction_logs`)
	if err := row.Scan(&stats.TotalLogs, &stats.TotalSizeBytes, &stats.AvgResponseTimeMs); err != nil {
		return nil, err
	}

	if stats.TotalLogs > 0 {
		var oldest, newest time.Time
		err := s.db.QueryRowContext(ctx,
			"SELECT created_at FROM interaction_logs ORDER BY created_at ASC LIMIT 1").Scan(&oldest)
		if err != nil {
			return nil, err
		}
		err = s.db.QueryRowContext(ctx,
			"SELECT created_at FROM interaction_logs ORDER BY created_at DESC LIMIT 1").Scan(&newest)
		if err != nil {
			return nil, err
		}
		stats.OldestLog = &oldest
		stats.NewestLog = &newest
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT model_type, COUNT(*) FROM interaction_logs GROUP BY model_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var modelType string
		var count int64
		if err := rows.Scan(&modelType, &count); err != nil {
			return nil, err
		}
		stats.PerModelCounts[modelType] = count
	}
	return stats, rows.Err()
}

// LoadConfig reads the single logging config row.
func (s *Store) LoadConfig(ctx context.Context) (LoggingConfig, error) {
	var config LoggingConfig
	err := sqlscan.Get(ctx, s.db, &config,
		`SELECT enabled, log_level, retention_days, max_log_count,
			include_system_prompts, include_tool_executions,
			include_performance_metrics, auto_cleanup, export_format, updated_at
		FROM logging_config WHERE id = 1`)
	return config, err
}

// UpdateConfig applies a partial patch and returns the resulting full config.
func (s *Store) UpdateConfig(ctx context.Context, patch ConfigPatch) (LoggingConfig, error) {
	config, err := s.LoadConfig(ctx)
	if err != nil {
		return config, err
	}
	if patch.Enabled != nil {
		config.Enabled = *patch.Enabled
	}
	if patch.LogLevel != nil {
		config.LogLevel = *patch.LogLevel
	}
	if patch.RetentionDays != nil {
		config.RetentionDays = *patch.RetentionDays
	}
	if patch.MaxLogCount != nil {
		config.MaxLogCount = *patch.MaxLogCount
	}
	if patch.IncludeSystemPrompts != nil {
		config.IncludeSystemPrompts = *patch.IncludeSystemPrompts
	}
	if patch.IncludeToolExecutions != nil {
		config.IncludeToolExecutions = *patch.IncludeToolExecutions
	}
	if patch.IncludePerformanceMetrics != nil {
		config.IncludePerformanceMetrics = *patch.IncludePerformanceMetrics
	}
	if patch.AutoCleanup != nil {
		config.AutoCleanup = *patch.AutoCleanup
	}
	if patch.ExportFormat != nil {
		config.ExportFormat = *patch.ExportFormat
	}
	config.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE logging_config SET
			enabled = ?, log_level = ?, retention_days = ?, max_log_count = ?,
			include_system_prompts = ?, include_tool_executions = ?,
			include_performance_metrics = ?, auto_cleanup = ?,
			export_format = ?, updated_at = ?
		WHERE id = 1`,
		config.Enabled, config.LogLevel, config.RetentionDays, config.MaxLogCount,
		config.IncludeSystemPrompts, config.IncludeToolExecutions,
		config.IncludePerformanceMetrics, config.AutoCleanup,
		config.ExportFormat, config.UpdatedAt)
	return config, err
}
