// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes to the database
//
// Services take repository interfaces, never *sqlite.DB, so tests can pass
// an in-memory fake. They return apperror values and know nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/ritual-archive/internal/apperror"
	"github.com/sakif/ritual-archive/internal/metrics"
	"github.com/sakif/ritual-archive/internal/model"
	"github.com/sakif/ritual-archive/internal/repository"
)

// Validation limits, counted in characters (runes), not bytes.
const (
	MaxTitleLength   = 100
	MaxAuthorLength  = 100
	MaxContentLength = 10000
)

// dayLayout is the calendar-day format stored alongside every archive.
const dayLayout = "2006-01-02"

// ListQuery holds the optional filters of an archive listing. A nil Year or
// Month and a blank Search each mean "do not filter on this".
type ListQuery struct {
	Page   int
	Size   int
	Sort   string
	Search string
	Year   *int
	Month  *int
}

// ArchiveService handles archive CRUD and the aggregate reports built on
// top of a user's archives.
type ArchiveService struct {
	repo   repository.ArchiveRepository
	logger *slog.Logger

	// loc decides which calendar day "now" falls on. Archive days, streaks
	// and year/month filters all use it.
	loc *time.Location
	now func() time.Time
}

// NewArchiveService creates an ArchiveService. loc must not be nil.
func NewArchiveService(repo repository.ArchiveRepository, loc *time.Location, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		repo:   repo,
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
}

// CreationDates groups the creation month of every archive under its year.
//
// Months keep the order the store returns them in (oldest first) and are
// not deduplicated: two archives in January 2024 give {2024: [1, 1]}.
// A malformed stored marker fails the whole call with apperror.ErrDataFormat.
func (s *ArchiveService) CreationDates(ctx context.Context, userID string) (map[int][]int, error) {
	markers, err := s.repo.CreationMarkers(ctx, userID)
	if err != nil {
		s.record("dates", err)
		return nil, fmt.Errorf("listing creation dates: %w", err)
	}

	dates := make(map[int][]int)
	for _, marker := range markers {
		ym, err := model.ParseYearMonth(marker)
		if err != nil {
			s.logger.Error("malformed creation marker",
				slog.String("userID", userID),
				slog.String("marker", marker),
			)
			s.record("dates", err)
			return nil, err
		}
		dates[ym.Year] = append(dates[ym.Year], ym.Month)
	}

	s.record("dates", nil)
	return dates, nil
}

// List returns one page of the user's archives matching q.
func (s *ArchiveService) List(ctx context.Context, userID string, q ListQuery) (model.Page[model.Archive], error) {
	if q.Month != nil && (*q.Month < 1 || *q.Month > 12) {
		s.record("list", apperror.ErrValidation)
		return model.Page[model.Archive]{}, apperror.ValidationFailed("month", "month must be between 1 and 12")
	}
	if q.Year != nil && (*q.Year < 1 || *q.Year > 9999) {
		s.record("list", apperror.ErrValidation)
		return model.Page[model.Archive]{}, apperror.ValidationFailed("year", "year must be between 1 and 9999")
	}

	page := repository.PageRequest{Page: q.Page, Size: q.Size, Sort: q.Sort}.Normalize()
	filter := repository.NewArchiveFilter(userID).
		Search(q.Search).
		Year(q.Year).
		Month(q.Month)

	archives, total, err := s.repo.List(ctx, filter, page)
	s.record("list", err)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			return model.Page[model.Archive]{}, err
		}
		s.logger.Error("failed to list archives",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return model.Page[model.Archive]{}, fmt.Errorf("listing archives: %w", err)
	}

	return model.NewPage(archives, page.Pageable(), total), nil
}

// Random returns a uniformly chosen archive, or false when the user has none.
func (s *ArchiveService) Random(ctx context.Context, userID string) (*model.Archive, bool, error) {
	a, ok, err := s.repo.Random(ctx, userID)
	s.record("random", err)
	if err != nil {
		return nil, false, fmt.Errorf("picking random archive: %w", err)
	}
	return a, ok, nil
}

// Get returns the archive if the user owns it. A missing archive and
// someone else's archive both return false.
func (s *ArchiveService) Get(ctx context.Context, userID, id string) (*model.Archive, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.record("get", nil)
		return nil, false, nil
	}

	a, ok, err := s.repo.GetByID(ctx, userID, id)
	switch {
	case err != nil:
		s.record("get", err)
		return nil, false, fmt.Errorf("getting archive: %w", err)
	case !ok:
		s.record("get", apperror.ErrNotFound)
	default:
		s.record("get", nil)
	}
	return a, ok, nil
}

// Create validates fields and stores a new archive owned by userID.
func (s *ArchiveService) Create(ctx context.Context, userID string, fields model.ArchiveFields) (string, error) {
	fields, err := normalizeFields(fields)
	if err != nil {
		s.record("create", err)
		return "", err
	}

	now := s.now()
	archive := &model.Archive{UserID: userID, CreatedAt: now}
	fields.Apply(archive)

	if err := s.repo.Create(ctx, archive, now.In(s.loc).Format(dayLayout)); err != nil {
		s.record("create", err)
		s.logger.Error("failed to create archive",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("creating archive: %w", err)
	}

	s.record("create", nil)
	s.logger.Info("archive created",
		slog.String("id", archive.ID),
		slog.String("userID", userID),
	)
	return archive.ID, nil
}

// Replace overwrites every mutable field of an archive the user owns.
// Returns apperror.ErrNotFound for a missing or foreign id.
func (s *ArchiveService) Replace(ctx context.Context, userID, id string, fields model.ArchiveFields) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		s.record("replace", apperror.ErrNotFound)
		return "", apperror.NotFound("archive", id)
	}

	fields, err := normalizeFields(fields)
	if err != nil {
		s.record("replace", err)
		return "", err
	}

	archive, err := s.repo.Replace(ctx, userID, id, fields)
	s.record("replace", err)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", err
		}
		s.logger.Error("failed to replace archive",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("replacing archive: %w", err)
	}

	s.logger.Info("archive replaced", slog.String("id", archive.ID))
	return archive.ID, nil
}

// Delete removes an archive the user owns. Deleting something that is not
// there (or not theirs) succeeds without doing anything.
func (s *ArchiveService) Delete(ctx context.Context, userID, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		s.record("delete", nil)
		return nil
	}

	deleted, err := s.repo.Delete(ctx, userID, id)
	s.record("delete", err)
	if err != nil {
		s.logger.Error("failed to delete archive",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting archive: %w", err)
	}

	if deleted {
		s.logger.Info("archive deleted", slog.String("id", id))
	}
	return nil
}

// Ritual summarizes the user's habit: how many archives, how many distinct
// books, and how many consecutive days up to today have at least one archive.
func (s *ArchiveService) Ritual(ctx context.Context, userID string) (model.RitualSummary, error) {
	var summary model.RitualSummary

	count, err := s.repo.Count(ctx, userID)
	if err != nil {
		s.record("ritual", err)
		return summary, fmt.Errorf("counting archives: %w", err)
	}

	books, err := s.repo.CountBooks(ctx, userID)
	if err != nil {
		s.record("ritual", err)
		return summary, fmt.Errorf("counting books: %w", err)
	}

	today := s.now().In(s.loc)
	days, err := s.repo.PostedDays(ctx, userID, today.Format(dayLayout))
	if err != nil {
		s.record("ritual", err)
		return summary, fmt.Errorf("listing posted days: %w", err)
	}

	s.record("ritual", nil)
	summary.TotalArchiveCount = count
	summary.TotalBookCount = books
	summary.ContinuityPostDay = continuityStreak(days, today)
	return summary, nil
}

// continuityStreak counts consecutive calendar days ending today that appear
// in days. days must be distinct "YYYY-MM-DD" values, newest first, none
// after today. Nothing posted today means a streak of 0.
func continuityStreak(days []string, today time.Time) int {
	// Walk civil dates in UTC so DST transitions in the user's zone cannot
	// skip or repeat a day.
	want := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	streak := 0
	for _, d := range days {
		if d != want.Format(dayLayout) {
			break
		}
		streak++
		want = want.AddDate(0, 0, -1)
	}
	return streak
}

// normalizeFields trims title and author and checks the length limits.
func normalizeFields(f model.ArchiveFields) (model.ArchiveFields, error) {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)

	if f.Title == "" {
		return f, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(f.Title) > MaxTitleLength {
		return f, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(f.Author) > MaxAuthorLength {
		return f, apperror.ValidationFailed("author",
			fmt.Sprintf("author must be %d characters or less", MaxAuthorLength))
	}
	if utf8.RuneCountInString(f.Content) > MaxContentLength {
		return f, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}
	return f, nil
}

func (s *ArchiveService) record(operation string, err error) {
	metrics.RecordArchiveOperation(operation, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, apperror.ErrValidation):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
