package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// SensitiveDataPatterns contains regex patterns for sensitive data that should be redacted in logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// Auth tokens (Bearer, JWT)
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),

	// API keys, tokens and secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// SensitiveKeywords are keywords that indicate fields may contain sensitive data
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"apikey", "authorization", "dsn",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1"+redacted)
	}

	return input
}

// isSensitiveKey reports whether a field key names a credential.
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}
