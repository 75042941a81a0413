package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Unique-violation markers per backend: postgres 23505, mysql 1062,
// sqlite 2067. Gorm only translates some of these, so match messages too.
var duplicateKeyMarkers = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation on
// any of the supported backends.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
