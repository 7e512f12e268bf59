package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ritual-archive/internal/apperror"
	"github.com/sakif/ritual-archive/internal/metrics"
	"github.com/sakif/ritual-archive/internal/model"
	"github.com/sakif/ritual-archive/internal/repository"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================

type storedArchive struct {
	archive model.Archive
	day     string
}

// fakeArchiveRepo keeps archives in insertion order, which doubles as
// creation order. Set an *Err field to make the matching call fail.
type fakeArchiveRepo struct {
	archives []storedArchive
	nextID   int

	// markers, when non-nil, replaces the markers derived from archives.
	markers []string

	lastFilter *repository.ArchiveFilter
	lastPage   repository.PageRequest

	createErr error
	listErr   error
	countErr  error
}

func newFakeArchiveRepo() *fakeArchiveRepo {
	return &fakeArchiveRepo{}
}

func (f *fakeArchiveRepo) Create(_ context.Context, a *model.Archive, day string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	a.ID = fmt.Sprintf("a%03d", f.nextID)
	a.UpdatedAt = a.CreatedAt
	f.archives = append(f.archives, storedArchive{archive: *a, day: day})
	return nil
}

func (f *fakeArchiveRepo) find(userID, id string) int {
	for i, s := range f.archives {
		if s.archive.ID == id && s.archive.UserID == userID {
			return i
		}
	}
	return -1
}

func (f *fakeArchiveRepo) GetByID(_ context.Context, userID, id string) (*model.Archive, bool, error) {
	i := f.find(userID, id)
	if i < 0 {
		return nil, false, nil
	}
	a := f.archives[i].archive
	return &a, true, nil
}

func (f *fakeArchiveRepo) Replace(_ context.Context, userID, id string, fields model.ArchiveFields) (*model.Archive, error) {
	i := f.find(userID, id)
	if i < 0 {
		return nil, apperror.NotFound("archive", id)
	}
	fields.Apply(&f.archives[i].archive)
	a := f.archives[i].archive
	return &a, nil
}

func (f *fakeArchiveRepo) Delete(_ context.Context, userID, id string) (bool, error) {
	i := f.find(userID, id)
	if i < 0 {
		return false, nil
	}
	f.archives = append(f.archives[:i], f.archives[i+1:]...)
	return true, nil
}

func (f *fakeArchiveRepo) owned(userID string) []storedArchive {
	var out []storedArchive
	for _, s := range f.archives {
		if s.archive.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeArchiveRepo) List(_ context.Context, filter *repository.ArchiveFilter, page repository.PageRequest) ([]model.Archive, int64, error) {
	f.lastFilter = filter
	f.lastPage = page
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []model.Archive
	for _, s := range f.owned(filter.UserID()) {
		out = append(out, s.archive)
	}
	return out, int64(len(out)), nil
}

func (f *fakeArchiveRepo) Random(_ context.Context, userID string) (*model.Archive, bool, error) {
	owned := f.owned(userID)
	if len(owned) == 0 {
		return nil, false, nil
	}
	a := owned[0].archive
	return &a, true, nil
}

func (f *fakeArchiveRepo) CreationMarkers(_ context.Context, userID string) ([]string, error) {
	if f.markers != nil {
		return f.markers, nil
	}
	var out []string
	for _, s := range f.owned(userID) {
		out = append(out, s.day[:7])
	}
	return out, nil
}

func (f *fakeArchiveRepo) Count(_ context.Context, userID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.owned(userID))), nil
}

func (f *fakeArchiveRepo) CountBooks(_ context.Context, userID string) (int64, error) {
	authors := map[string]bool{}
	for _, s := range f.owned(userID) {
		if s.archive.Author != "" {
			authors[s.archive.Author] = true
		}
	}
	return int64(len(authors)), nil
}

func (f *fakeArchiveRepo) PostedDays(_ context.Context, userID, until string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, s := range f.owned(userID) {
		if s.day <= until && !seen[s.day] {
			seen[s.day] = true
			out = append(out, s.day)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

var seoul = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func newTestArchiveService(t *testing.T) (*ArchiveService, *fakeArchiveRepo) {
	t.Helper()
	repo := newFakeArchiveRepo()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewArchiveService(repo, seoul, logger), repo
}

// setNow pins the service clock to the given local wall time in Seoul.
func setNow(svc *ArchiveService, layout, value string) {
	tm, err := time.ParseInLocation(layout, value, seoul)
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return tm }
}

func createOn(t *testing.T, svc *ArchiveService, userID, day string, fields model.ArchiveFields) string {
	t.Helper()
	setNow(svc, "2006-01-02 15:04", day+" 10:00")
	id, err := svc.Create(context.Background(), userID, fields)
	require.NoError(t, err)
	return id
}

func fields(title, author string) model.ArchiveFields {
	return model.ArchiveFields{Title: title, Author: author}
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreate_StoresLocalDay(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	// 23:30 UTC on Jan 4 is already Jan 5 in Seoul.
	utc := time.Date(2024, 1, 4, 23, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return utc }

	id, err := svc.Create(context.Background(), "u1", fields("  Demian  ", "Hesse"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, repo.archives, 1)
	assert.Equal(t, "2024-01-05", repo.archives[0].day)
	assert.Equal(t, "Demian", repo.archives[0].archive.Title, "title is trimmed")
	assert.Equal(t, "u1", repo.archives[0].archive.UserID)
	assert.True(t, utc.Equal(repo.archives[0].archive.CreatedAt))
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name  string
		f     model.ArchiveFields
		field string
	}{
		{"empty title", fields("", "a"), "title"},
		{"blank title", fields("   ", "a"), "title"},
		{"long title", fields(strings.Repeat("t", MaxTitleLength+1), "a"), "title"},
		{"long author", fields("t", strings.Repeat("a", MaxAuthorLength+1)), "author"},
		{"long content", model.ArchiveFields{Title: "t", Content: strings.Repeat("c", MaxContentLength+1)}, "content"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestArchiveService(t)

			_, err := svc.Create(context.Background(), "u1", tc.f)

			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.field, appErr.Field)
			assert.Empty(t, repo.archives, "nothing must be stored")
		})
	}
}

func TestCreate_TitleLimitCountsCharacters(t *testing.T) {
	svc, _ := newTestArchiveService(t)

	// 100 Hangul syllables are 300 bytes but only 100 characters.
	_, err := svc.Create(context.Background(), "u1", fields(strings.Repeat("책", MaxTitleLength), ""))
	assert.NoError(t, err)
}

func TestCreate_RepositoryError(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	repo.createErr = errors.New("disk full")

	_, err := svc.Create(context.Background(), "u1", fields("t", "a"))

	assert.ErrorContains(t, err, "disk full")
}

// =========================================================================
// GET / REPLACE / DELETE
// =========================================================================

func TestGet_MissingAndForeign(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("t", "a"))

	a, ok, err := svc.Get(context.Background(), "owner", id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, a.ID)

	for _, tc := range []struct{ user, id string }{
		{"stranger", id},
		{"owner", "missing"},
		{"owner", "  "},
	} {
		a, ok, err := svc.Get(context.Background(), tc.user, tc.id)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, a)
	}
}

func TestReplace(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("old", "old"))

	newFields := model.ArchiveFields{
		Title: "new", Author: "author", Content: "body",
		ImageSize: "LARGE", BackgroundColor: "#000", FontStyle: "serif", FontColor: "#fff", Thumbnail: "t.png",
	}
	got, err := svc.Replace(context.Background(), "owner", id, newFields)
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, newFields, repo.archives[0].archive.Fields())
}

func TestReplace_NotFound(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("t", "a"))

	_, err := svc.Replace(context.Background(), "stranger", id, fields("x", "y"))
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Replace(context.Background(), "owner", "missing", fields("x", "y"))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestReplace_ValidatesBeforeLookup(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("t", "a"))

	_, err := svc.Replace(context.Background(), "owner", id, fields("", "a"))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDelete_TwiceIsFine(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("t", "a"))

	require.NoError(t, svc.Delete(context.Background(), "owner", id))
	require.NoError(t, svc.Delete(context.Background(), "owner", id))
	assert.Empty(t, repo.archives)
}

func TestDelete_ForeignIsNoop(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	id := createOn(t, svc, "owner", "2024-01-01", fields("t", "a"))

	require.NoError(t, svc.Delete(context.Background(), "stranger", id))
	assert.Len(t, repo.archives, 1)
}

// =========================================================================
// LIST
// =========================================================================

func TestList_ComposesOnlyPresentFilters(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	year := 2024

	_, err := svc.List(context.Background(), "u1", ListQuery{Search: "foo", Year: &year})
	require.NoError(t, err)

	preds := repo.lastFilter.Predicates()
	require.Len(t, preds, 3, "owner, search and year; no month")
	assert.Equal(t, "user_id = ?", preds[0].Clause)
	assert.Equal(t, []any{"u1"}, preds[0].Args)
	assert.Contains(t, preds[1].Clause, "LIKE")
	assert.Equal(t, []any{"2024"}, preds[2].Args)
}

func TestList_NoFiltersOnlyOwner(t *testing.T) {
	svc, repo := newTestArchiveService(t)

	_, err := svc.List(context.Background(), "u1", ListQuery{Search: "   "})
	require.NoError(t, err)
	assert.Len(t, repo.lastFilter.Predicates(), 1)
}

func TestList_PageMetadata(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	for i := 0; i < 3; i++ {
		createOn(t, svc, "u1", "2024-01-01", fields("t", "a"))
	}
	createOn(t, svc, "u2", "2024-01-01", fields("t", "a"))

	page, err := svc.List(context.Background(), "u1", ListQuery{Size: 2})
	require.NoError(t, err)

	assert.EqualValues(t, 3, page.TotalElements)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 2, page.Pageable.Size)
	assert.Equal(t, repository.DefaultSort, page.Pageable.Sort)
	assert.Equal(t, repository.DefaultSort, repo.lastPage.Sort)
	for _, a := range page.Content {
		assert.Equal(t, "u1", a.UserID)
	}
}

func TestList_InvalidMonthAndYear(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	zero, thirteen, tooBig := 0, 13, 10000

	for _, q := range []ListQuery{{Month: &zero}, {Month: &thirteen}, {Year: &tooBig}} {
		_, err := svc.List(context.Background(), "u1", q)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	}
	assert.Nil(t, repo.lastFilter, "repository must not be queried")
}

func TestList_SortErrorStaysValidation(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	repo.listErr = apperror.ValidationFailed("sort", "cannot sort by \"x\"")

	_, err := svc.List(context.Background(), "u1", ListQuery{Sort: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// RANDOM
// =========================================================================

func TestRandom(t *testing.T) {
	svc, _ := newTestArchiveService(t)

	_, ok, err := svc.Random(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	id := createOn(t, svc, "u1", "2024-01-01", fields("t", "a"))
	a, ok, err := svc.Random(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, a.ID)
}

// =========================================================================
// CREATION DATES
// =========================================================================

func TestCreationDates_GroupsByYearKeepingDuplicates(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	for _, day := range []string{"2023-12-30", "2024-01-05", "2024-01-20", "2024-03-02"} {
		createOn(t, svc, "u1", day, fields("t", "a"))
	}
	createOn(t, svc, "u2", "2022-02-02", fields("t", "a"))

	dates, err := svc.CreationDates(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, map[int][]int{
		2024: {1, 1, 3},
		2023: {12},
	}, dates)
}

func TestCreationDates_Empty(t *testing.T) {
	svc, _ := newTestArchiveService(t)

	dates, err := svc.CreationDates(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestCreationDates_MalformedMarker(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	repo.markers = []string{"2024-01", "2024-xx"}
	before := metrics.ArchiveOperationCount("dates", metrics.OutcomeError)

	_, err := svc.CreationDates(context.Background(), "u1")

	assert.ErrorIs(t, err, apperror.ErrDataFormat)
	assert.Equal(t, before+1, metrics.ArchiveOperationCount("dates", metrics.OutcomeError))
}

// =========================================================================
// RITUAL
// =========================================================================

func TestRitual_Summary(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	createOn(t, svc, "u1", "2024-06-10", fields("a", "Han Kang"))
	createOn(t, svc, "u1", "2024-06-09", fields("b", "Han Kang"))
	createOn(t, svc, "u1", "2024-06-07", fields("c", "han kang"))
	createOn(t, svc, "u1", "2024-06-07", fields("d", ""))

	setNow(svc, "2006-01-02 15:04", "2024-06-10 21:00")
	summary, err := svc.Ritual(context.Background(), "u1")
	require.NoError(t, err)

	assert.EqualValues(t, 4, summary.TotalArchiveCount)
	assert.EqualValues(t, 2, summary.TotalBookCount)
	// today, yesterday, then a gap: 2.
	assert.Equal(t, 2, summary.ContinuityPostDay)
}

func TestRitual_NothingToday(t *testing.T) {
	svc, _ := newTestArchiveService(t)
	createOn(t, svc, "u1", "2024-06-09", fields("a", "x"))

	setNow(svc, "2006-01-02 15:04", "2024-06-10 08:00")
	summary, err := svc.Ritual(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ContinuityPostDay)
}

func TestRitual_RepositoryError(t *testing.T) {
	svc, repo := newTestArchiveService(t)
	repo.countErr = errors.New("boom")

	_, err := svc.Ritual(context.Background(), "u1")
	assert.ErrorContains(t, err, "boom")
}

func TestContinuityStreak(t *testing.T) {
	today := time.Date(2024, 3, 1, 9, 0, 0, 0, seoul)

	cases := []struct {
		name string
		days []string
		want int
	}{
		{"none", nil, 0},
		{"only today", []string{"2024-03-01"}, 1},
		{"across month boundary in a leap year", []string{"2024-03-01", "2024-02-29", "2024-02-28"}, 3},
		{"gap after yesterday", []string{"2024-03-01", "2024-02-29", "2024-02-27"}, 2},
		{"nothing today", []string{"2024-02-29", "2024-02-28"}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, continuityStreak(tc.days, today))
		})
	}
}

func TestContinuityStreak_AcrossDST(t *testing.T) {
	berlin := mustLoadLocation("Europe/Berlin")
	// Clocks jump forward on 2024-03-31 in Berlin.
	today := time.Date(2024, 4, 1, 0, 30, 0, 0, berlin)

	got := continuityStreak([]string{"2024-04-01", "2024-03-31", "2024-03-30"}, today)
	assert.Equal(t, 3, got)
}
