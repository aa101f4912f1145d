// Package logging provides zerolog helpers that keep credentials out of logs.
//
// taskreview handles bearer tokens, JWT signing secrets, database DSNs and
// object storage keys. None of them may reach a console or a rotated log file.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// sensitivePatterns match credential shapes that can show up inside free text.
var sensitivePatterns = []*regexp.Regexp{ //nolint:gochecknoglobals // Package-level patterns for reuse
	// Compact JWS tokens (header.payload.signature, base64url JSON header)
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{16,}`),

	// AWS access key ids
	regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),

	// Passwords embedded in connection URLs (postgres://user:pw@host, redis://:pw@host)
	regexp.MustCompile(`([a-z][a-z0-9+.-]*://[^:/@\s]*:)[^@\s]+@`),

	// key=value DSN passwords (lib/pq style)
	regexp.MustCompile(`(?i)\bpassword\s*=\s*[^\s]+`),

	// Generic secret assignments
	regexp.MustCompile(`(?i)(secret|credential|passwd|pwd|jwt_secret|secret_access_key)\s*[:=]\s*["']?[^\s"']{8,}["']?`),

	// Authorization headers
	regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[^\s"']{16,}["']?`),
}

// sensitiveFieldNames contains field names whose values are always redacted.
// Matching is case-insensitive and by substring.
var sensitiveFieldNames = []string{ //nolint:gochecknoglobals // Package-level patterns for reuse
	"password",
	"passwd",
	"secret",
	"credential",
	"token",
	"bearer",
	"authorization",
	"dsn",
	"private_key",
	"access_key",
}

// SensitiveDataHook is a zerolog hook that flags events whose message carries
// something that looks like a credential. Zerolog does not allow a hook to
// rewrite the message, so the rewrite happens in FilteringWriter.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements the zerolog.Hook interface.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData reports whether s matches any credential pattern.
func ContainsSensitiveData(s string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces every credential-looking match in value with [REDACTED].
// Connection URLs keep their scheme and user so the target stays recognizable.
func FilterSensitiveValue(value string) string {
	result := value
	for i, pattern := range sensitivePatterns {
		if i == urlPasswordPattern {
			result = pattern.ReplaceAllString(result, "${1}"+RedactedValue+"@")
			continue
		}
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// urlPasswordPattern is the index of the connection URL pattern in sensitivePatterns.
const urlPasswordPattern = 3

// IsSensitiveFieldName reports whether a field name indicates sensitive data.
func IsSensitiveFieldName(fieldName string) bool {
	lowerName := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFieldNames {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// SafeValue returns [REDACTED] when fieldName is sensitive and the pattern
// filtered value otherwise.
//
// Usage:
//
//	log.Info().Str("dsn", logging.SafeValue("dsn", cfg.Store.DSN)).Msg("opening store")
func SafeValue(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// FilteringWriter wraps an io.Writer and filters sensitive data from output.
// The CLI wraps both the console and the rotating log file with it.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter creates a new FilteringWriter that wraps the given writer.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer, filtering sensitive data before writing.
// It reports len(p) on success so callers never see a short write.
func (fw *FilteringWriter) Write(p []byte) (n int, err error) {
	filtered := FilterSensitiveValue(string(p))
	if _, err = fw.w.Write([]byte(filtered)); err != nil {
		return 0, err
	}
	return len(p), nil
}
