// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/ritual-archive/internal/model"
)

// ArchiveRepository stores archives. Every method is scoped by owner: a
// record that belongs to another user behaves exactly like a missing one.
type ArchiveRepository interface {
	// Create inserts a new archive and fills in ID and timestamps.
	// day is the local calendar day ("YYYY-MM-DD") the archive counts toward.
	Create(ctx context.Context, archive *model.Archive, day string) error

	// GetByID returns (nil, false, nil) when the id is unknown or foreign.
	GetByID(ctx context.Context, userID, id string) (*model.Archive, bool, error)

	// Replace overwrites every mutable field in one transaction.
	// Returns apperror.ErrNotFound for unknown or foreign ids.
	Replace(ctx context.Context, userID, id string, fields model.ArchiveFields) (*model.Archive, error)

	// Delete removes the archive if the user owns it and reports whether a
	// row was removed.
	Delete(ctx context.Context, userID, id string) (bool, error)

	// List returns one page of archives matching filter plus the total count.
	List(ctx context.Context, filter *ArchiveFilter, page PageRequest) ([]model.Archive, int64, error)

	// Random returns an archive drawn uniformly from the user's archives.
	Random(ctx context.Context, userID string) (*model.Archive, bool, error)

	// CreationMarkers returns one "YYYY-MM" marker per archive, oldest first.
	CreationMarkers(ctx context.Context, userID string) ([]string, error)

	Count(ctx context.Context, userID string) (int64, error)

	// CountBooks counts distinct non-empty authors, compared case-sensitively.
	CountBooks(ctx context.Context, userID string) (int64, error)

	// PostedDays returns the distinct local days with at least one archive,
	// not later than until, newest first.
	PostedDays(ctx context.Context, userID, until string) ([]string, error)
}

// UserRepository stores accounts.
type UserRepository interface {
	// Upsert inserts or refreshes a GitHub user keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error

	// CreateLocal inserts a login/password account.
	// Returns apperror.ErrConflict when the login is taken.
	CreateLocal(ctx context.Context, user *model.User) error

	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// GetByLogin looks up a local account by login.
	GetByLogin(ctx context.Context, login string) (*model.User, error)
}
