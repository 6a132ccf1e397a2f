package store

import "strconv"

// Placeholders are written $1..$N in ascending order so the same SQL
// binds correctly under both pgx and sqlite.
func itoa(n int) string {
	return strconv.Itoa(n)
}
