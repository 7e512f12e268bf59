package model

import (
	"strconv"
	"strings"

	"github.com/sakif/ritual-archive/internal/apperror"
)

// YearMonth is a calendar month in the archive timezone.
type YearMonth struct {
	Year  int
	Month int
}

// ParseYearMonth parses a "YYYY-MM" creation marker as returned by the store.
//
// The marker is split on the first "-": the first segment is the year, the
// second the month. A marker without the separator, or with a segment that is
// not an integer (month outside 1-12 included), yields apperror.ErrDataFormat.
// This is the only place marker strings are interpreted.
func ParseYearMonth(marker string) (YearMonth, error) {
	yearPart, monthPart, ok := strings.Cut(marker, "-")
	if !ok {
		return YearMonth{}, apperror.DataFormat("year-month marker", marker)
	}

	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return YearMonth{}, apperror.DataFormat("year-month marker", marker)
	}

	// "2024-01-05" style markers carry a day; only the month segment matters.
	monthPart, _, _ = strings.Cut(monthPart, "-")
	month, err := strconv.Atoi(monthPart)
	if err != nil || month < 1 || month > 12 {
		return YearMonth{}, apperror.DataFormat("year-month marker", marker)
	}

	return YearMonth{Year: year, Month: month}, nil
}
