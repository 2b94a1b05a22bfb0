// Package privacy scrubs failure reports before they leave the process.
// URLs are replaced by stable anonymous tokens, e-mail addresses and
// credentials are redacted.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/tphakala/toastd/internal/logger"
)

const (
	redacted      = "[REDACTED]"
	redactedEmail = "[EMAIL]"
)

var (
	urlPattern   = regexp.MustCompile(`\b(?:https?|wss?|blob)://\S+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ipv4Pattern  = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// ScrubMessage anonymizes URLs and redacts e-mail addresses and credentials in message
func ScrubMessage(message string) string {
	if message == "" {
		return message
	}
	message = urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	message = emailPattern.ReplaceAllString(message, redactedEmail)
	return logger.RedactSensitiveData(message)
}

// ScrubContext returns a copy of md with every string value scrubbed and the
// values of credential-like keys replaced. Nested maps and slices are walked.
func ScrubContext(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		if sensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch val := v.(type) {
	case string:
		return ScrubMessage(val)
	case map[string]any:
		return ScrubContext(val)
	case []any:
		s := make([]any, len(val))
		for i := range val {
			s[i] = scrubValue(val[i])
		}
		return s
	case []string:
		s := make([]string, len(val))
		for i := range val {
			s[i] = ScrubMessage(val[i])
		}
		return s
	default:
		return v
	}
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, kw := range logger.SensitiveKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

// AnonymizeURL replaces a URL with a token that is stable for the same host
// category, port and path shape. Asset file extensions survive so reports about
// "a .frag shader on a .com host" stay comparable.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := make([]string, 0, 4)
	if parsed.Scheme != "" {
		parts = append(parts, parsed.Scheme)
	}
	if host := parsed.Hostname(); host != "" {
		parts = append(parts, categorizeHost(host))
	}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	shape := ""
	if parsed.Path != "" && parsed.Path != "/" {
		shape = anonymizePath(parsed.Path)
		parts = append(parts, shape)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, ":")))
	token := fmt.Sprintf("url-%x", hash[:12])
	if ext := path.Ext(parsed.Path); ext != "" && len(ext) <= 6 {
		token += ext
	}
	return token
}

// categorizeHost keeps only what kind of host it was
func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case isIPAddress(host):
		return "public-ip"
	}

	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}

// anonymizePath hashes each segment, keeping the depth and numeric segments
func anonymizePath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "root"
	}

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch {
		case segment == "":
			continue
		case isNumeric(segment):
			out = append(out, "numeric")
		default:
			hash := sha256.Sum256([]byte(segment))
			out = append(out, fmt.Sprintf("seg-%x", hash[:4]))
		}
	}
	return strings.Join(out, "/")
}

var privatePrefixes = []string{
	"10.", "192.168.", "169.254.",
	"172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.", "172.22.", "172.23.",
	"172.24.", "172.25.", "172.26.", "172.27.", "172.28.", "172.29.", "172.30.", "172.31.",
	"fc00:", "fd00:", "fe80:",
}

func isPrivateIP(host string) bool {
	host = strings.ToLower(host)
	for _, prefix := range privatePrefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func isIPAddress(host string) bool {
	return ipv4Pattern.MatchString(host) || strings.Contains(host, ":")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
