package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier for logs and lock tokens, e.g.
// "run_3f0c...". The UUID is written without dashes.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
