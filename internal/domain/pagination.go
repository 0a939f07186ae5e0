package domain

// PaginationParams holds offset-based pagination parameters for catalog list queries.
type PaginationParams struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the current page (0-based).
func (p PaginationParams) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Window returns the [start, end) slice bounds of the page within total items.
func (p PaginationParams) Window(total int) (int, int) {
	start := min(p.Offset(), total)
	if p.PageSize < 1 {
		return start, total
	}
	return start, min(start+p.PageSize, total)
}
