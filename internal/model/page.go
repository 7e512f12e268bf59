package model

// Pageable echoes the page request that produced a Page.
type Pageable struct {
	Page int    `json:"page"` // zero-based
	Size int    `json:"size"`
	Sort string `json:"sort"`
}

// Page is one slice of a larger, stably ordered result set.
type Page[T any] struct {
	Content       []T      `json:"content"`
	Pageable      Pageable `json:"pageable"`
	TotalElements int64    `json:"totalElements"`
	TotalPages    int      `json:"totalPages"`
}

// NewPage builds a Page and derives TotalPages from the element count.
func NewPage[T any](content []T, pageable Pageable, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if pageable.Size > 0 {
		pages = int((total + int64(pageable.Size) - 1) / int64(pageable.Size))
	}
	return Page[T]{
		Content:       content,
		Pageable:      pageable,
		TotalElements: total,
		TotalPages:    pages,
	}
}
