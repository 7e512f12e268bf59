package repository

import (
	"fmt"
	"strings"
)

// Predicate is one SQL condition with its positional arguments.
type Predicate struct {
	Clause string
	Args   []any
}

// ArchiveFilter composes the WHERE clause of an archive listing.
//
// The owner predicate is always present. Search, Year and Month each add a
// predicate only when their argument is present, so an omitted month never
// filters by month at all. All predicates are ANDed.
//
//	f := repository.NewArchiveFilter(userID).Search("foo").Year(&year)
//	where, args := f.Where()
type ArchiveFilter struct {
	userID     string
	predicates []Predicate
}

// NewArchiveFilter starts a filter scoped to userID.
func NewArchiveFilter(userID string) *ArchiveFilter {
	return &ArchiveFilter{
		userID: userID,
		predicates: []Predicate{
			{Clause: "user_id = ?", Args: []any{userID}},
		},
	}
}

// UserID returns the owner the filter is scoped to.
func (f *ArchiveFilter) UserID() string {
	return f.userID
}

// Search matches text as a substring of title, author or content.
// Blank text adds nothing.
func (f *ArchiveFilter) Search(text string) *ArchiveFilter {
	text = strings.TrimSpace(text)
	if text == "" {
		return f
	}
	pattern := "%" + escapeLike(text) + "%"
	f.predicates = append(f.predicates, Predicate{
		Clause: `(title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`,
		Args:   []any{pattern, pattern, pattern},
	})
	return f
}

// Year keeps archives created in the given year. nil adds nothing.
func (f *ArchiveFilter) Year(year *int) *ArchiveFilter {
	if year == nil {
		return f
	}
	f.predicates = append(f.predicates, Predicate{
		Clause: "substr(created_day, 1, 4) = ?",
		Args:   []any{fmt.Sprintf("%04d", *year)},
	})
	return f
}

// Month keeps archives created in the given month (1-12) of any year.
// nil adds nothing.
func (f *ArchiveFilter) Month(month *int) *ArchiveFilter {
	if month == nil {
		return f
	}
	f.predicates = append(f.predicates, Predicate{
		Clause: "substr(created_day, 6, 2) = ?",
		Args:   []any{fmt.Sprintf("%02d", *month)},
	})
	return f
}

// Predicates returns the composed predicates, owner first.
func (f *ArchiveFilter) Predicates() []Predicate {
	return f.predicates
}

// Where renders the predicates joined by AND, without the WHERE keyword.
func (f *ArchiveFilter) Where() (string, []any) {
	clauses := make([]string, 0, len(f.predicates))
	var args []any
	for _, p := range f.predicates {
		clauses = append(clauses, p.Clause)
		args = append(args, p.Args...)
	}
	return strings.Join(clauses, " AND "), args
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
