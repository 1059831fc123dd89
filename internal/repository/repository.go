// Package repository holds one database/sql-backed repository per aggregate
// in the data model (§3), following the teacher's raw-SQL + RETURNING idiom.
package repository

import "errors"

var (
	ErrNotFound = errors.New("repository: not found")
	ErrConflict = errors.New("repository: conflict")
)
