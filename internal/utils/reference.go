package utils

import (
	"fmt"
	"strings"
)

// FormatReference renders a human-readable reference such as BK-000042.
// Sequences beyond six digits keep growing rather than wrapping.
func FormatReference(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", strings.ToUpper(prefix), seq)
}

// NewChatToken returns an opaque token that grants access to a booking's
// chat channel.
func NewChatToken() (string, error) {
	return randomHex(24)
}
