package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/quorum/internal/domain/campaign"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel kinds for store errors.
var (
	ErrPathRequired  = errors.New("storage path is required")
	ErrNotConfigured = errors.New("storage is not configured")
)

// classify maps driver lock errors to campaign.ErrBusy. Other errors pass
// through unchanged.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", campaign.ErrBusy, err)
		}
	}
	return err
}

// notFound turns sql.ErrNoRows into campaign.ErrNotFound.
func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, campaign.ErrNotFound)
	}
	return fmt.Errorf("load %s %v: %w", what, id, err)
}
