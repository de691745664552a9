package logger

import (
	"net/url"
	"regexp"
)

// sensitiveDataPatterns match credentials that may appear in broker URLs,
// DSNs and error strings.
var sensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((password|passwd|secret|token)[\s:=]+)([^;,\s]{3,})`),
	regexp.MustCompile(`(?i)(https?://)([^:@/\s]+@)`),
}

// RedactSensitiveData replaces credentials in free text with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return input
}

// RedactURL removes user info from a URL such as an MQTT broker address.
// Unparseable input is passed through RedactSensitiveData.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return RedactSensitiveData(raw)
	}
	if u.User != nil {
		u.User = url.User("[REDACTED]")
	}
	return u.String()
}
