package scopus

import (
	"fmt"
	"strings"
)

// ParseScopusID normalizes "SCOPUS_ID:85...", "2-s2.0-85..." (an EID) and
// bare numeric forms to the bare digits.
func ParseScopusID(s string) (string, error) {
	id := strings.TrimSpace(s)
	id = strings.TrimPrefix(id, "SCOPUS_ID:")
	id = strings.TrimPrefix(id, "2-s2.0-")

	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
	}
	return id, nil
}
