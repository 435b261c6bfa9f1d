package auditlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportLogs serializes the interactions matching the filter. JSON exports
// carry the full records including tool executions; CSV exports flatten to
// one row per interaction.
func (s *Store) ExportLogs(ctx context.Context, filter Filter, format string) ([]byte, error) {
	logs, err := s.QueryInteractionLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(logs, "", "  ")
	case FormatCSV:
		return exportCSV(logs)
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

var csvHeader = []string{
	"id", "created_at", "session_id", "model_type", "model_info",
	"user_message", "ai_response", "response_time_ms", "token_count",
	"error", "error_code", "data_classification", "tool_call_count",
}

func exportCSV(logs []InteractionLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, log := range logs {
		record := []string{
			log.ID,
			log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			log.SessionID,
			log.ModelType,
			log.ModelInfo,
			log.UserMessage,
			log.AIResponse,
			strconv.FormatInt(log.ResponseTimeMs, 10),
			strconv.Itoa(log.TokenCount),
			log.Error,
			log.ErrorCode,
			log.DataClassification,
			strconv.Itoa(len(log.ToolExecutions)),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
