package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ritual-archive/internal/apperror"
	"github.com/sakif/ritual-archive/internal/model"
	"github.com/sakif/ritual-archive/internal/repository"
)

// compile-time check that *DB implements repository.ArchiveRepository
var _ repository.ArchiveRepository = (*DB)(nil)

const archiveColumns = `id, user_id, title, author, content, image_size, background_color,
	font_style, font_color, thumbnail, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(s rowScanner) (*model.Archive, error) {
	var (
		a                    model.Archive
		createdAt, updatedAt string
	)
	err := s.Scan(
		&a.ID, &a.UserID, &a.Title, &a.Author, &a.Content,
		&a.ImageSize, &a.BackgroundColor, &a.FontStyle, &a.FontColor, &a.Thumbnail,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new archive. ID is generated here; CreatedAt is kept when
// the caller already set it so that it agrees with day.
func (db *DB) Create(ctx context.Context, archive *model.Archive, day string) error {
	archive.ID = xid.New().String()
	if archive.CreatedAt.IsZero() {
		archive.CreatedAt = time.Now()
	}
	archive.CreatedAt = archive.CreatedAt.UTC()
	archive.UpdatedAt = archive.CreatedAt

	err := db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO archives (id, user_id, title, author, content, image_size, background_color,
			                       font_style, font_color, thumbnail, created_day, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			archive.ID,
			archive.UserID,
			archive.Title,
			archive.Author,
			archive.Content,
			archive.ImageSize,
			archive.BackgroundColor,
			archive.FontStyle,
			archive.FontColor,
			archive.Thumbnail,
			day,
			formatTime(archive.CreatedAt),
			formatTime(archive.UpdatedAt),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: creating archive: %w", err)
	}

	return nil
}

// GetByID returns the archive only if userID owns it. An unknown id and a
// foreign id both return (nil, false, nil).
func (db *DB) GetByID(ctx context.Context, userID, id string) (*model.Archive, bool, error) {
	a, err := getArchive(ctx, db.conn, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlite: getting archive %s: %w", id, err)
	}
	return a, true, nil
}

func getArchive(ctx context.Context, q querier, userID, id string) (*model.Archive, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+archiveColumns+`
		 FROM archives
		 WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	return scanArchive(row)
}

// Replace looks the archive up and overwrites all mutable fields within one
// transaction, so a concurrent delete cannot slip in between.
func (db *DB) Replace(ctx context.Context, userID, id string, fields model.ArchiveFields) (*model.Archive, error) {
	var archive *model.Archive

	err := db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		a, err := getArchive(ctx, q, userID, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("archive", id)
			}
			return err
		}

		fields.Apply(a)
		a.UpdatedAt = time.Now().UTC()

		_, err = q.ExecContext(ctx,
			`UPDATE archives
			 SET title = ?, author = ?, content = ?, image_size = ?, background_color = ?,
			     font_style = ?, font_color = ?, thumbnail = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			a.Title,
			a.Author,
			a.Content,
			a.ImageSize,
			a.BackgroundColor,
			a.FontStyle,
			a.FontColor,
			a.Thumbnail,
			formatTime(a.UpdatedAt),
			a.ID,
			userID,
		)
		if err != nil {
			return err
		}

		archive = a
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: replacing archive %s: %w", id, err)
	}

	return archive, nil
}

// Delete removes the archive if userID owns it.
func (db *DB) Delete(ctx context.Context, userID, id string) (bool, error) {
	var deleted bool

	err := db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		result, err := q.ExecContext(ctx,
			`DELETE FROM archives WHERE id = ? AND user_id = ?`,
			id, userID,
		)
		if err != nil {
			return err
		}

		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting archive %s: %w", id, err)
	}

	return deleted, nil
}

// List returns one page of matching archives and the total match count.
// Both queries share a transaction so the count agrees with the page.
func (db *DB) List(ctx context.Context, filter *repository.ArchiveFilter, page repository.PageRequest) ([]model.Archive, int64, error) {
	page = page.Normalize()
	orderBy, err := page.OrderBy()
	if err != nil {
		return nil, 0, err
	}
	where, args := filter.Where()

	var (
		archives []model.Archive
		total    int64
	)

	err = db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM archives WHERE `+where, args...,
		).Scan(&total); err != nil {
			return fmt.Errorf("counting: %w", err)
		}

		rows, err := q.QueryContext(ctx,
			`SELECT `+archiveColumns+`
			 FROM archives
			 WHERE `+where+`
			 ORDER BY `+orderBy+`
			 LIMIT ? OFFSET ?`,
			append(args, page.Size, page.Offset())...,
		)
		if err != nil {
			return fmt.Errorf("querying: %w", err)
		}
		defer rows.Close()

		archives = make([]model.Archive, 0, page.Size)
		for rows.Next() {
			a, err := scanArchive(rows)
			if err != nil {
				return fmt.Errorf("scanning: %w", err)
			}
			archives = append(archives, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing archives: %w", err)
	}

	return archives, total, nil
}

// Random picks a uniformly random archive owned by userID.
//
// Every archive gets probability 1/N: we count the user's archives and fetch
// the row at a uniformly drawn offset in a stable order. ORDER BY RANDOM()
// would also be uniform but sorts the whole set on every call.
func (db *DB) Random(ctx context.Context, userID string) (*model.Archive, bool, error) {
	var archive *model.Archive

	err := db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		var n int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM archives WHERE user_id = ?`, userID,
		).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		a, err := scanArchive(q.QueryRowContext(ctx,
			`SELECT `+archiveColumns+`
			 FROM archives
			 WHERE user_id = ?
			 ORDER BY id
			 LIMIT 1 OFFSET ?`,
			userID, db.intn(n),
		))
		if err != nil {
			return err
		}
		archive = a
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: picking random archive: %w", err)
	}

	return archive, archive != nil, nil
}

// CreationMarkers returns a "YYYY-MM" marker for every archive of userID,
// oldest first. Duplicates are kept: two archives in January give two markers.
func (db *DB) CreationMarkers(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT substr(created_day, 1, 7)
		 FROM archives
		 WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing creation markers: %w", err)
	}
	return scanStrings(rows)
}

// Count returns how many archives userID owns.
func (db *DB) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archives WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting archives: %w", err)
	}
	return n, nil
}

// CountBooks counts distinct non-empty authors. "Han Kang" and "han kang"
// count as two books.
func (db *DB) CountBooks(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT author) FROM archives WHERE user_id = ? AND author <> ''`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting books: %w", err)
	}
	return n, nil
}

// PostedDays returns the distinct days (YYYY-MM-DD) on which userID created
// archives, up to and including until, newest first.
func (db *DB) PostedDays(ctx context.Context, userID, until string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT created_day
		 FROM archives
		 WHERE user_id = ? AND created_day <= ?
		 ORDER BY created_day DESC`,
		userID, until,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posted days: %w", err)
	}
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: scanning row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rows: %w", err)
	}
	return out, nil
}
