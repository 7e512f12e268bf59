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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url, password_hash, created_at, updated_at`

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u                    model.User
		githubID             sql.NullInt64
		createdAt, updatedAt string
	)
	err := s.Scan(&u.ID, &githubID, &u.Login, &u.Email, &u.AvatarURL, &u.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	u.GitHubID = githubID.Int64
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert inserts or updates a GitHub user keyed by GitHub ID.
//
// An existing user keeps their internal ID; only the profile fields that
// GitHub may have changed (login, email, avatar) are refreshed.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	return db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		var existingID, createdAt string
		err := q.QueryRowContext(ctx,
			`SELECT id, created_at FROM users WHERE github_id = ?`, user.GitHubID,
		).Scan(&existingID, &createdAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
		}

		now := time.Now().UTC()
		user.UpdatedAt = now

		if existingID != "" {
			user.ID = existingID
			if user.CreatedAt, err = parseTime(createdAt); err != nil {
				return err
			}
			_, err = q.ExecContext(ctx,
				`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
				 WHERE id = ?`,
				user.Login,
				user.Email,
				user.AvatarURL,
				formatTime(user.UpdatedAt),
				user.ID,
			)
			if err != nil {
				return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
			}
			return nil
		}

		user.ID = xid.New().String()
		user.CreatedAt = now
		_, err = q.ExecContext(ctx,
			`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.GitHubID,
			user.Login,
			user.Email,
			user.AvatarURL,
			formatTime(user.CreatedAt),
			formatTime(user.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
		}
		return nil
	})
}

// CreateLocal inserts a login/password account. github_id stays NULL.
func (db *DB) CreateLocal(ctx context.Context, user *model.User) error {
	return db.withTx(ctx, nil, func(ctx context.Context, q querier) error {
		var taken int
		err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE login = ? AND password_hash <> ''`, user.Login,
		).Scan(&taken)
		if err != nil {
			return fmt.Errorf("sqlite: checking login %q: %w", user.Login, err)
		}
		if taken > 0 {
			return apperror.Conflict("user", user.Login)
		}

		now := time.Now().UTC()
		user.ID = xid.New().String()
		user.GitHubID = 0
		user.CreatedAt = now
		user.UpdatedAt = now

		_, err = q.ExecContext(ctx,
			`INSERT INTO users (id, github_id, login, email, avatar_url, password_hash, created_at, updated_at)
			 VALUES (?, NULL, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.PasswordHash,
			formatTime(user.CreatedAt),
			formatTime(user.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting local user %q: %w", user.Login, err)
		}
		return nil
	})
}

// GetUserByID returns apperror.ErrNotFound when the user does not exist.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByLogin returns the local account with the given login.
func (db *DB) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = ? AND password_hash <> ''`, login,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", login)
		}
		return nil, fmt.Errorf("sqlite: getting user by login %q: %w", login, err)
	}
	return u, nil
}
