package logger

import (
	"log/slog"
	"strings"
)

// credentialPrefixes mark DocRelay backup credentials wherever they
// appear as values: drbt_ session tokens and drak_ app-key secrets.
var credentialPrefixes = []string{"drbt_", "drak_"}

// secretKeyHints flag attribute keys whose string values must never be
// logged in full.
var secretKeyHints = []string{
	"password", "secret", "token", "key", "credential", "auth", "bearer",
}

const redacted = "***REDACTED***"

// redact rewrites a single attribute before it is emitted. Credential
// values keep their prefix plus a few hint characters; secret-keyed
// values are replaced entirely. Groups are walked recursively.
func redact(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, redactString(a.Key, a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, inner := range attrs {
			out[i] = redact(inner)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	default:
		return a
	}
}

func redactString(key, val string) string {
	for _, p := range credentialPrefixes {
		if strings.HasPrefix(val, p) {
			return mask(val, p)
		}
	}
	if val == "" {
		return val
	}
	lower := strings.ToLower(key)
	for _, hint := range secretKeyHints {
		if strings.Contains(lower, hint) {
			return redacted
		}
	}
	return val
}

// mask keeps the credential prefix plus the first and last three body
// characters, enough to correlate log lines without exposing the value.
func mask(val, prefix string) string {
	body := val[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}
