// Package pagination provides pagination utilities.
package pagination

// Default and maximum page sizes.
const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// Pagination holds pagination parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// New creates a normalized Pagination.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset returns the zero-based item offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Result is a paginated result set.
type Result[T any] struct {
	Items      []T
	Total      int
	Page       int
	PerPage    int
	TotalPages int
}

// Paginate slices an in-memory list into a page.
func Paginate[T any](items []T, p Pagination) Result[T] {
	total := len(items)
	totalPages := (total + p.PerPage - 1) / p.PerPage

	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}

	return Result[T]{
		Items:      items[start:end],
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
	}
}
