package repository

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrDanglingReference marks a row whose foreign key no longer resolves.
	ErrDanglingReference = errors.New("dangling reference")
	// ErrCommitFailed marks a transaction whose work ran but could not be committed.
	ErrCommitFailed = errors.New("commit failed")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// validID reports whether id is a canonical UUID. Every primary key is one,
// so anything else cannot match a row and is never sent to the database.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

func normalisePage(page, size int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size, (page - 1) * size
}

func sortDirection(order, fallback string) string {
	switch order {
	case "asc", "ASC":
		return "ASC"
	case "desc", "DESC":
		return "DESC"
	}
	return fallback
}
