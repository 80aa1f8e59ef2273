package storage

import (
	"errors"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("storage: record already exists")
)

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func normalizeApp(app string) string {
	return strings.TrimSpace(app)
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
