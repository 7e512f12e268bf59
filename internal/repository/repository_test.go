package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ritual-archive/internal/apperror"
)

func intPtr(v int) *int { return &v }

func TestArchiveFilter_OwnerOnly(t *testing.T) {
	where, args := NewArchiveFilter("u1").Search("   ").Year(nil).Month(nil).Where()

	assert.Equal(t, "user_id = ?", where)
	assert.Equal(t, []any{"u1"}, args)
}

func TestArchiveFilter_SearchAndYearWithoutMonth(t *testing.T) {
	f := NewArchiveFilter("u1").Search("foo").Year(intPtr(2024)).Month(nil)
	where, args := f.Where()

	assert.Len(t, f.Predicates(), 3)
	assert.Contains(t, where, "title LIKE ?")
	assert.Contains(t, where, "substr(created_day, 1, 4) = ?")
	assert.NotContains(t, where, "substr(created_day, 6, 2)", "an omitted month must not filter by month")
	assert.Equal(t, []any{"u1", "%foo%", "%foo%", "%foo%", "2024"}, args)
}

func TestArchiveFilter_MonthIsZeroPadded(t *testing.T) {
	_, args := NewArchiveFilter("u1").Month(intPtr(3)).Where()
	assert.Equal(t, []any{"u1", "03"}, args)
}

func TestArchiveFilter_SearchEscapesWildcards(t *testing.T) {
	_, args := NewArchiveFilter("u1").Search(`50%_off\`).Where()
	assert.Equal(t, `%50\%\_off\\%`, args[1])
}

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   PageRequest
		want PageRequest
	}{
		{"defaults", PageRequest{}, PageRequest{Page: 0, Size: DefaultPageSize, Sort: DefaultSort}},
		{"negative page", PageRequest{Page: -3, Size: 5, Sort: "title"}, PageRequest{Page: 0, Size: 5, Sort: "title"}},
		{"oversized", PageRequest{Page: 2, Size: 1000, Sort: "author,asc"}, PageRequest{Page: 2, Size: MaxPageSize, Sort: "author,asc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestPageRequest_Offset(t *testing.T) {
	assert.Equal(t, 40, PageRequest{Page: 2, Size: 20}.Offset())
}

func TestPageRequest_OrderBy(t *testing.T) {
	tests := []struct {
		sort string
		want string
	}{
		{"createdAt,desc", "created_at DESC, id DESC"},
		{"title", "title ASC, id ASC"},
		{"author, ASC", "author ASC, id ASC"},
		{"updatedAt,desc", "updated_at DESC, id DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			got, err := PageRequest{Sort: tt.sort}.OrderBy()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPageRequest_OrderByRejectsUnknown(t *testing.T) {
	for _, sort := range []string{"password_hash", "title; DROP TABLE archives", "title,sideways"} {
		_, err := PageRequest{Sort: sort}.OrderBy()
		assert.ErrorIs(t, err, apperror.ErrValidation, sort)
	}
}
