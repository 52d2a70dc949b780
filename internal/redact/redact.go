// Package redact scrubs secrets from strings before they reach logs or
// error responses: provider API keys, bearer tokens, signing secrets, and
// local file paths from the artifact directories.
package redact

import "regexp"

// Redaction placeholders.
const (
	RedactedKeyPlaceholder  = "[REDACTED_KEY]"
	RedactedPathPlaceholder = "[REDACTED_PATH]"
)

var (
	// API keys and secrets passed as key=value or header-style pairs.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|x-api-key|token|secret|authorization)(['"\s:=]+)(Bearer\s+)?[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Three-part base64url JWTs.
	jwtRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// Connection strings with embedded credentials.
	dsnRegex = regexp.MustCompile(`(?i)[a-z][a-z0-9+]*://[^@\s]+@`)

	// Absolute unix paths, which leak the artifact and database layout.
	unixPathRegex = regexp.MustCompile(`(/[\w.-]+){2,}`)

	placeholders = []struct {
		pattern     *regexp.Regexp
		replacement string
	}{
		{dsnRegex, RedactedKeyPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{jwtRegex, "[REDACTED_JWT]"},
		{unixPathRegex, RedactedPathPlaceholder},
	}
)

// String redacts sensitive information from the input string.
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, p := range placeholders {
		result = p.pattern.ReplaceAllString(result, p.replacement)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
