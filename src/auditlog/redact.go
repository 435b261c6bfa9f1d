package auditlog

import (
	"context"
	"regexp"
)

// redactionPattern pairs a secret-matching regex with a labeled replacement
// so a log reader can tell what was removed without seeing the value.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: more specific prefixes must precede the generic ones so a
// longer key is not partially rewritten by a shorter pattern.
var redactionPatterns = []redactionPattern{
	{regexp.MustCompile(`sk-ant-api03-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`), "[REDACTED:api_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:google_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`), "[REDACTED:bearer_token]"},
	{regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*[A-Za-z0-9._-]{10,}`), "api_key=[REDACTED]"},
	{regexp.MustCompile(`(?i)password\s*[:=]\s*[^\s&"]{3,}`), "password=[REDACTED]"},
	{regexp.MustCompile(`(postgres|mysql|mongodb)://[^\s]+@`), "${1}://[REDACTED]@"},
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`), "[REDACTED:private_key]"},
}

// internalPatterns mark content as internal rather than public: identifiers
// and locations that should not leave the organization but are not secrets.
var internalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`(?i)\b(internal|confidential|do not distribute)\b`),
	regexp.MustCompile(`/(home|Users)/[A-Za-z0-9._-]+/`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// RedactText rewrites every recognized secret in text with its label.
func RedactText(text string) string {
	for _, p := range redactionPatterns {
		text = p.pattern.ReplaceAllString(text, p.replacement)
	}
	return text
}

// ContainsSecrets reports whether text matches any secret pattern.
func ContainsSecrets(text string) bool {
	for _, p := range redactionPatterns {
		if p.pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifyContent assigns a data classification from content alone: secrets
// make it confidential, internal identifiers make it internal, anything else
// is public.
func ClassifyContent(text string) string {
	if ContainsSecrets(text) {
		return ClassConfidential
	}
	for _, p := range internalPatterns {
		if p.MatchString(text) {
			return ClassInternal
		}
	}
	return ClassPublic
}

// RedactSensitiveData irreversibly scrubs secrets from one interaction and
// its tool executions, then marks the row redacted.
func (s *Store) RedactSensitiveData(ctx context.Context, id string) error {
	log, err := s.GetInteractionLog(ctx, id)
	if err != nil {
		return err
	}

	log.UserMessage = RedactText(log.UserMessage)
	log.SystemPrompt = RedactText(log.SystemPrompt)
	log.ContextSnapshot = RedactText(log.ContextSnapshot)
	log.AIResponse = RedactText(log.AIResponse)
	log.Reasoning = RedactText(log.Reasoning)
	log.Error = RedactText(log.Error)
	log.Redacted = true
	if err := s.UpdateInteractionLog(ctx, log); err != nil {
		return err
	}

	for _, te := range log.ToolExecutions {
		_, err := s.db.ExecContext(ctx,
			"UPDATE tool_execution_logs SET arguments = ?, output = ?, error = ? WHERE id = ?",
			RedactText(te.Arguments), RedactText(te.Output), RedactText(te.Error), te.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

const anonymizedPlaceholder = "[ANONYMIZED]"

// AnonymizeLogs irreversibly strips user-identifying content from the given
// interactions. The records remain for aggregate statistics.
func (s *Store) AnonymizeLogs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		result, err := s.db.ExecContext(ctx, `
			UPDATE interaction_logs SET
				session_id = 'anonymous',
				user_message = ?,
				system_prompt = '',
				context_snapshot = '',
				reasoning = '',
				anonymized = 1
			WHERE id = ?`, anonymizedPlaceholder, id)
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
		_, err = s.db.ExecContext(ctx,
			"UPDATE tool_execution_logs SET arguments = ?, output = ? WHERE interaction_id = ?",
			anonymizedPlaceholder, anonymizedPlaceholder, id)
		if err != nil {
			return err
		}
	}
	return nil
}
