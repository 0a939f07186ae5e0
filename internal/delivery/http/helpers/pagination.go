package helpers

import (
	"fmt"
	"net/http"
	"strconv"

	"eventregistration/internal/domain"
)

// Catalog paging limits.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePagination reads ?page and ?page_size for the event catalog. Missing
// values take the defaults and page_size above MaxPageSize is capped; a value
// that is not a positive integer is rejected with ErrInvalidInput.
func ParsePagination(r *http.Request) (domain.PaginationParams, error) {
	q := r.URL.Query()
	page, err := positiveParam(q.Get("page"), "page", DefaultPage)
	if err != nil {
		return domain.PaginationParams{}, err
	}
	size, err := positiveParam(q.Get("page_size"), "page_size", DefaultPageSize)
	if err != nil {
		return domain.PaginationParams{}, err
	}
	return domain.PaginationParams{Page: page, PageSize: min(size, MaxPageSize)}, nil
}

func positiveParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, name)
	}
	return v, nil
}

// PaginationMeta describes one page of the published catalog.
// swagger:model PaginationMeta
type PaginationMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NewPaginationMeta describes page p of a listing holding total events.
func NewPaginationMeta(p domain.PaginationParams, total int) PaginationMeta {
	meta := PaginationMeta{Page: p.Page, PageSize: p.PageSize, Total: total}
	if p.PageSize > 0 {
		meta.TotalPages = (total + p.PageSize - 1) / p.PageSize
	}
	meta.HasNext = p.Page < meta.TotalPages
	return meta
}
