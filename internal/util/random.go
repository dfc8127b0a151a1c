// Package util provides id generation and environment parsing helpers for CareConcierge.
package util

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes.
const (
	SessionIDPrefix = "s_"
	TaskIDPrefix    = "t_"
	InsightIDPrefix = "i_"
	ScriptIDPrefix  = "cs_"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateUUID returns prefix followed by a random v4 UUID without dashes.
func GenerateUUID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateSessionID generates a unique session ID with "s_" prefix.
func GenerateSessionID() string {
	return GenerateUUID(SessionIDPrefix)
}

// GenerateTaskID generates a unique task ID with "t_" prefix.
func GenerateTaskID() string {
	return GenerateUUID(TaskIDPrefix)
}

// GenerateInsightID generates a short insight card ID with "i_" prefix.
func GenerateInsightID() string {
	return GenerateRandomID(InsightIDPrefix, 12)
}

// GenerateScriptID generates a unique call script ID with "cs_" prefix.
func GenerateScriptID() string {
	return GenerateUUID(ScriptIDPrefix)
}
