package utils

import "github.com/google/uuid"

// UUID will generate a random v4 unique identifier.
func UUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s is a canonical, hyphenated UUID.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
