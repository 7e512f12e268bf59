package repository

import (
	"fmt"
	"strings"

	"github.com/sakif/ritual-archive/internal/apperror"
	"github.com/sakif/ritual-archive/internal/model"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultSort     = "createdAt,desc"
)

// sortColumns whitelists the sort keys callers may use. Anything else would
// end up in ORDER BY verbatim, so unknown keys are rejected.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"author":    "author",
}

// PageRequest selects one page of a listing. Page is zero-based.
// Sort has the form "field" or "field,asc|desc".
type PageRequest struct {
	Page int
	Size int
	Sort string
}

// Normalize clamps Page and Size into range and fills in the default sort.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if strings.TrimSpace(p.Sort) == "" {
		p.Sort = DefaultSort
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Pageable echoes the request back in responses.
func (p PageRequest) Pageable() model.Pageable {
	return model.Pageable{Page: p.Page, Size: p.Size, Sort: p.Sort}
}

// OrderBy renders the ORDER BY clause. The id tie-breaker keeps the order
// stable across pages when the sort key has duplicates.
func (p PageRequest) OrderBy() (string, error) {
	field, dir, _ := strings.Cut(p.Sort, ",")
	field = strings.TrimSpace(field)
	dir = strings.ToLower(strings.TrimSpace(dir))

	column, ok := sortColumns[field]
	if !ok {
		return "", apperror.ValidationFailed("sort", fmt.Sprintf("cannot sort by %q", field))
	}

	switch dir {
	case "", "asc":
		dir = "ASC"
	case "desc":
		dir = "DESC"
	default:
		return "", apperror.ValidationFailed("sort", fmt.Sprintf("unknown sort direction %q", dir))
	}

	return fmt.Sprintf("%s %s, id %s", column, dir, dir), nil
}
