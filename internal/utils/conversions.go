package utils

import "strings"

// TokenPrefix shortens a secret for log output.
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..."
}

// SplitScope splits an OAuth2 space delimited scope string, dropping empty entries.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}

// JoinScope is the inverse of SplitScope.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}
