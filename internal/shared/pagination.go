package shared

import (
	"math"
	"net/http"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PaginationFromRequest reads page and per_page query parameters.
func PaginationFromRequest(r *http.Request, total int) Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return NewPagination(page, perPage, total)
}

// Bounds returns the slice window [start, end) of the current page.
// Pages past the last one yield an empty window.
func (p Pagination) Bounds() (int, int) {
	if p.Page < 1 || p.PerPage < 1 || p.Page > p.TotalPages {
		return p.Total, p.Total
	}
	start := (p.Page - 1) * p.PerPage
	end := start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}
